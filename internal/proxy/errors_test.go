package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, "invalid_request_error"},
		{http.StatusMethodNotAllowed, "invalid_request_error"},
		{http.StatusRequestEntityTooLarge, "invalid_request_error"},
		{http.StatusUnauthorized, "authentication_error"},
		{http.StatusForbidden, "permission_error"},
		{http.StatusNotFound, "not_found_error"},
		{http.StatusUnprocessableEntity, "validation_error"},
		{http.StatusTooManyRequests, "rate_limit_error"},
		{http.StatusInternalServerError, "api_error"},
		{http.StatusBadGateway, "api_error"},
		{http.StatusServiceUnavailable, "server_error"},
		{http.StatusGatewayTimeout, "timeout_error"},
		// Unmapped codes fall back by class.
		{http.StatusInsufficientStorage, "api_error"},
		{http.StatusTeapot, "invalid_request_error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorTypeForStatus(tt.status), "status %d", tt.status)
	}
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusTooManyRequests, "slow down")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "rate_limit_error", resp.Error.Type)
	assert.Equal(t, "slow down", resp.Error.Message)
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		write    func(http.ResponseWriter, string)
		status   int
		wantType string
	}{
		{"bad request", WriteErrorBadRequest, http.StatusBadRequest, "invalid_request_error"},
		{"unauthorized", WriteErrorUnauthorized, http.StatusUnauthorized, "authentication_error"},
		{"not found", WriteErrorNotFound, http.StatusNotFound, "not_found_error"},
		{"unprocessable", WriteErrorUnprocessable, http.StatusUnprocessableEntity, "validation_error"},
		{"internal", WriteErrorInternal, http.StatusInternalServerError, "api_error"},
		{"bad gateway", WriteErrorBadGateway, http.StatusBadGateway, "api_error"},
		{"service unavailable", WriteErrorServiceUnavailable, http.StatusServiceUnavailable, "server_error"},
		{"gateway timeout", WriteErrorGatewayTimeout, http.StatusGatewayTimeout, "timeout_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, "boom")

			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Error.Type)
			assert.Equal(t, "boom", resp.Error.Message)
		})
	}
}
