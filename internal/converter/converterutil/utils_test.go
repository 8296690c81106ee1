package converterutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetString(t *testing.T) {
	m := map[string]interface{}{
		"name":  "calculator",
		"count": 3,
	}

	assert.Equal(t, "calculator", GetString(m, "name"))
	assert.Equal(t, "", GetString(m, "count"))
	assert.Equal(t, "", GetString(m, "missing"))
}
