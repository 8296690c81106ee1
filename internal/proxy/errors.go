package proxy

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the Anthropic-style error envelope.
type ErrorResponse struct {
	Type  string   `json:"type"`
	Error APIError `json:"error"`
}

// APIError is the error object inside an Anthropic-style error response.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorTypeForStatus maps HTTP status codes to Anthropic error type strings.
func errorTypeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusRequestEntityTooLarge:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusInternalServerError, http.StatusBadGateway:
		return "api_error"
	case http.StatusServiceUnavailable:
		return "server_error"
	case http.StatusGatewayTimeout:
		return "timeout_error"
	default:
		if statusCode >= 500 {
			return "api_error"
		}
		return "invalid_request_error"
	}
}

// WriteJSONError writes an Anthropic-style JSON error response. The error
// type is derived from the status code.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Type: "error",
		Error: APIError{
			Type:    errorTypeForStatus(statusCode),
			Message: message,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteErrorBadRequest writes a 400 Bad Request JSON error.
func WriteErrorBadRequest(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusBadRequest, message)
}

// WriteErrorUnauthorized writes a 401 Unauthorized JSON error.
func WriteErrorUnauthorized(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusUnauthorized, message)
}

// WriteErrorNotFound writes a 404 Not Found JSON error.
func WriteErrorNotFound(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusNotFound, message)
}

// WriteErrorUnprocessable writes a 422 Unprocessable Entity JSON error.
func WriteErrorUnprocessable(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusUnprocessableEntity, message)
}

// WriteErrorInternal writes a 500 Internal Server Error JSON error.
func WriteErrorInternal(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusInternalServerError, message)
}

// WriteErrorBadGateway writes a 502 Bad Gateway JSON error.
func WriteErrorBadGateway(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusBadGateway, message)
}

// WriteErrorServiceUnavailable writes a 503 Service Unavailable JSON error.
func WriteErrorServiceUnavailable(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusServiceUnavailable, message)
}

// WriteErrorGatewayTimeout writes a 504 Gateway Timeout JSON error.
func WriteErrorGatewayTimeout(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusGatewayTimeout, message)
}
