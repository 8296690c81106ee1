package router

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mixaill76/claude_bridge/internal/config"
	"github.com/mixaill76/claude_bridge/internal/proxy"
	"github.com/mixaill76/claude_bridge/internal/tokens"
)

type Router struct {
	proxy    *proxy.Proxy
	provider *config.Provider
	cache    *tokens.Cache
	logger   *slog.Logger
}

func New(p *proxy.Proxy, provider *config.Provider, cache *tokens.Cache, logger *slog.Logger) *Router {
	return &Router{
		proxy:    p,
		provider: provider,
		cache:    cache,
		logger:   logger,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := req.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set("X-Request-ID", requestID)
	}
	w.Header().Set("X-Request-ID", requestID)

	switch req.URL.Path {
	case "/health":
		if req.Method != http.MethodGet {
			proxy.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rt.handleHealth(w, req)

	case "/v1/messages":
		if req.Method != http.MethodPost {
			proxy.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !rt.authorized(req) {
			rt.logger.Warn("Rejected unauthenticated request", "request_id", requestID, "path", req.URL.Path)
			proxy.WriteErrorUnauthorized(w, "invalid or missing API key")
			return
		}

		start := time.Now()
		rec := newStatusRecorder(w)
		rt.proxy.HandleMessages(rec, req)
		rt.logger.Info("Request completed",
			"request_id", requestID,
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)

	default:
		proxy.WriteErrorNotFound(w, "not found")
	}
}

// authorized checks the client credential against the configured api_key.
// An empty configured key disables client authentication entirely.
func (rt *Router) authorized(req *http.Request) bool {
	cfg := rt.provider.Snapshot()
	if cfg.APIKey == "" {
		return true
	}

	if key := req.Header.Get("X-Api-Key"); key != "" {
		return key == cfg.APIKey
	}
	if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == cfg.APIKey
	}
	return false
}

type healthResponse struct {
	Status         string `json:"status"`
	TokenCacheSize int    `json:"token_cache_size"`
}

func (rt *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := healthResponse{
		Status:         "ok",
		TokenCacheSize: rt.cache.Size(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return
	}
}
