package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHopByHopHeader(t *testing.T) {
	for _, key := range []string{
		"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"TE", "Trailer", "Transfer-Encoding", "Upgrade",
	} {
		assert.True(t, isHopByHopHeader(key), key)
	}

	assert.False(t, isHopByHopHeader("Content-Type"))
	assert.False(t, isHopByHopHeader("User-Agent"))
}

func TestCopyRequestHeaders(t *testing.T) {
	src := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	src.Header.Set("User-Agent", "anthropic-sdk")
	src.Header.Set("X-Custom", "value")
	src.Header.Add("X-Multi", "a")
	src.Header.Add("X-Multi", "b")
	src.Header.Set("Connection", "keep-alive")
	src.Header.Set("Authorization", "Bearer client-secret")
	src.Header.Set("X-Api-Key", "client-secret")
	src.Header.Set("Content-Type", "application/json")
	src.Header.Set("Content-Length", "42")
	src.Header.Set("Accept-Encoding", "gzip")

	dst := httptest.NewRequest(http.MethodPost, "http://upstream/chat/completions", nil)
	copyRequestHeaders(dst, src)

	assert.Equal(t, "anthropic-sdk", dst.Header.Get("User-Agent"))
	assert.Equal(t, "value", dst.Header.Get("X-Custom"))
	assert.Equal(t, []string{"a", "b"}, dst.Header.Values("X-Multi"))

	// Hop-by-hop, client credentials, and body framing headers stay behind.
	for _, key := range []string{
		"Connection", "Authorization", "X-Api-Key",
		"Content-Type", "Content-Length", "Accept-Encoding",
	} {
		assert.Empty(t, dst.Header.Get(key), key)
	}
}
