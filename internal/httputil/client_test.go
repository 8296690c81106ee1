package httputil

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_Defaults(t *testing.T) {
	client := NewHTTPClient(nil)
	require.NotNil(t, client)

	assert.Equal(t, time.Duration(0), client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, defaultResponseHeaderTimeout, transport.ResponseHeaderTimeout)
	assert.Equal(t, defaultMaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, transport.IdleConnTimeout)
}

func TestNewHTTPClient_CustomConfig(t *testing.T) {
	client := NewHTTPClient(&HTTPClientConfig{
		ResponseHeaderTimeout: 5 * time.Second,
		MaxIdleConns:          42,
		MaxIdleConnsPerHost:   7,
		IdleConnTimeout:       time.Minute,
	})

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 42, transport.MaxIdleConns)
	assert.Equal(t, 7, transport.MaxIdleConnsPerHost)
	assert.Equal(t, time.Minute, transport.IdleConnTimeout)
}

func TestNewHTTPClient_ZeroFieldsFallBack(t *testing.T) {
	client := NewHTTPClient(&HTTPClientConfig{})

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, defaultResponseHeaderTimeout, transport.ResponseHeaderTimeout)
	assert.Equal(t, defaultMaxIdleConns, transport.MaxIdleConns)
}

func TestNewHTTPClient_NoRedirectFollowing(t *testing.T) {
	client := NewHTTPClient(nil)
	require.NotNil(t, client.CheckRedirect)

	err := client.CheckRedirect(nil, nil)
	assert.Equal(t, http.ErrUseLastResponse, err)
}
