package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mixaill76/claude_bridge/internal/config"
	"github.com/mixaill76/claude_bridge/internal/converter/anthropic"
	"github.com/mixaill76/claude_bridge/internal/converter/openai"
	"github.com/mixaill76/claude_bridge/internal/logger"
)

const (
	// maxResponseSizeBytes caps non-streaming upstream response bodies.
	maxResponseSizeBytes = 10 * 1024 * 1024
	// maxErrorBodySizeBytes caps upstream error bodies relayed to clients.
	maxErrorBodySizeBytes = 64 * 1024
)

// Proxy accepts Anthropic Messages requests, forwards them to the configured
// OpenAI-compatible upstream, and translates responses back.
type Proxy struct {
	provider *config.Provider
	conv     *anthropic.Converter
	client   *http.Client
	logger   *slog.Logger
}

// New creates a proxy. The config provider is snapshotted per request so hot
// reloads apply to subsequent requests without restarts.
func New(provider *config.Provider, conv *anthropic.Converter, client *http.Client, logger *slog.Logger) *Proxy {
	return &Proxy{
		provider: provider,
		conv:     conv,
		client:   client,
		logger:   logger,
	}
}

// HandleMessages serves POST /v1/messages.
func (p *Proxy) HandleMessages(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.logger.Warn("Failed to read request body", "request_id", requestID, "error", err)
		WriteErrorBadRequest(w, "failed to read request body")
		return
	}

	var req anthropic.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		p.logger.Warn("Malformed request body", "request_id", requestID, "error", err)
		WriteErrorUnprocessable(w, fmt.Sprintf("invalid JSON in request body: %v", err))
		return
	}

	if err := anthropic.ValidateRequest(&req); err != nil {
		p.logger.Warn("Request validation failed", "request_id", requestID, "error", err)
		WriteErrorBadRequest(w, err.Error())
		return
	}

	cfg := p.provider.Snapshot()

	openaiReq := p.conv.ConvertRequest(&req, requestID, cfg)

	payload, err := json.Marshal(openaiReq)
	if err != nil {
		p.logger.Error("Failed to serialize upstream request", "request_id", requestID, "error", err)
		WriteErrorInternal(w, "failed to serialize upstream request")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.RequestTimeout())
	defer cancel()

	upstreamURL := cfg.OpenAI.BaseURL + "/chat/completions"
	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(payload))
	if err != nil {
		p.logger.Error("Failed to create upstream request", "request_id", requestID, "error", err)
		WriteErrorInternal(w, "failed to create upstream request")
		return
	}

	copyRequestHeaders(upstreamReq, r)
	upstreamReq.Header.Set("Content-Type", "application/json")
	if cfg.OpenAI.APIKey != "" {
		upstreamReq.Header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
	}
	if openaiReq.Stream {
		upstreamReq.Header.Set("Accept", "text/event-stream")
	}

	p.logger.Debug("Forwarding request to upstream",
		"request_id", requestID,
		"url", upstreamURL,
		"model", openaiReq.Model,
		"stream", openaiReq.Stream,
	)
	if p.logger.Enabled(r.Context(), slog.LevelDebug) {
		p.logger.Debug("Upstream request body",
			"request_id", requestID,
			"body", logger.TruncateLongFields(string(payload), 500),
		)
	}

	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		if isTimeoutError(err) {
			p.logger.Error("Upstream request timed out", "request_id", requestID, "error", err)
			WriteErrorGatewayTimeout(w, "upstream request timed out")
		} else {
			p.logger.Error("Upstream request failed", "request_id", requestID, "error", err)
			WriteErrorBadGateway(w, fmt.Sprintf("upstream request failed: %v", err))
		}
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.relayUpstreamError(w, resp, requestID)
		return
	}

	if openaiReq.Stream {
		p.serveStreaming(w, resp, &req, requestID)
		return
	}

	p.serveNonStreaming(w, resp, &req, requestID)
}

// relayUpstreamError forwards an upstream error status with the upstream body
// as the error message, wrapped in the Anthropic error envelope.
func (p *Proxy) relayUpstreamError(w http.ResponseWriter, resp *http.Response, requestID string) {
	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySizeBytes))
	message := strings.TrimSpace(string(errBody))
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}

	p.logger.Warn("Upstream returned error status",
		"request_id", requestID,
		"status", resp.StatusCode,
		"body_preview", truncate(message, 200),
	)

	WriteJSONError(w, resp.StatusCode, message)
}

func (p *Proxy) serveNonStreaming(w http.ResponseWriter, resp *http.Response, req *anthropic.AnthropicRequest, requestID string) {
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		p.logger.Error("Failed to read upstream response", "request_id", requestID, "error", err)
		WriteErrorBadGateway(w, "failed to read upstream response")
		return
	}

	var openaiResp openai.OpenAIResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		p.logger.Error("Failed to parse upstream response",
			"request_id", requestID,
			"error", err,
			"body_preview", truncate(string(respBody), 200),
		)
		WriteErrorBadGateway(w, "invalid JSON in upstream response")
		return
	}

	anthropicResp, err := p.conv.ConvertResponse(&openaiResp, req.Model, requestID)
	if err != nil {
		p.logger.Error("Failed to convert upstream response", "request_id", requestID, "error", err)
		WriteErrorBadGateway(w, fmt.Sprintf("upstream response conversion failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(anthropicResp); err != nil {
		p.logger.Warn("Failed to write response", "request_id", requestID, "error", err)
	}
}

func (p *Proxy) serveStreaming(w http.ResponseWriter, resp *http.Response, req *anthropic.AnthropicRequest, requestID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sc := p.conv.NewStream(req.Model, requestID)
	// Client-facing errors past this point go in-band; the status line is
	// already on the wire.
	_ = p.handleConvertedStreaming(w, resp.Body, sc, requestID)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
