package converterutil

// GetString safely retrieves a string value from a map.
// Returns empty string if key not found or value is not a string.
func GetString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
