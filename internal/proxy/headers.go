package proxy

import (
	"net/http"
)

// hopByHopHeaders are headers that should not be proxied.
// These are hop-by-hop headers as defined in RFC 7230 Section 6.1.
// They are meant for single HTTP connection and must not be forwarded to the next hop.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"TE":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// isHopByHopHeader checks if a header should not be proxied.
// RFC 7230: https://tools.ietf.org/html/rfc7230#section-6.1
func isHopByHopHeader(key string) bool {
	return hopByHopHeaders[key]
}

// copyRequestHeaders copies headers from the client request to the upstream
// request, skipping hop-by-hop headers, the client's credentials, and body
// framing headers (the body is rewritten). Upstream auth is set separately.
func copyRequestHeaders(dst *http.Request, src *http.Request) {
	for key, values := range src.Header {
		if isHopByHopHeader(key) {
			continue
		}
		switch key {
		case "Authorization", "X-Api-Key", "Host", "Content-Length", "Content-Type", "Accept-Encoding":
			continue
		}
		for _, value := range values {
			dst.Header.Add(key, value)
		}
	}
}
