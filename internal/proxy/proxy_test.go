package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/claude_bridge/internal/config"
	"github.com/mixaill76/claude_bridge/internal/converter/anthropic"
	"github.com/mixaill76/claude_bridge/internal/httputil"
	"github.com/mixaill76/claude_bridge/internal/testhelpers"
	"github.com/mixaill76/claude_bridge/internal/tokens"
)

func newTestProxy(t *testing.T, handler http.HandlerFunc, mutateCfg func(*config.Config)) *Proxy {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testhelpers.NewTestConfig(server.URL)
	if mutateCfg != nil {
		mutateCfg(cfg)
	}
	provider := config.NewStaticProvider(cfg)

	logger := testhelpers.NewTestLogger()
	counter := tokens.NewCounter(logger)
	cache, err := tokens.NewCache(100)
	require.NoError(t, err)

	conv := anthropic.New(counter, cache, logger)
	client := httputil.NewHTTPClient(&httputil.HTTPClientConfig{ResponseHeaderTimeout: 5 * time.Second})

	return New(provider, conv, client, logger)
}

func minimalBody() map[string]interface{} {
	return map[string]interface{}{
		"model":      "claude-3-5-sonnet-20241022",
		"max_tokens": 100,
		"messages": []map[string]interface{}{
			{"role": "user", "content": "hi"},
		},
	}
}

func TestHandleMessages_NonStreaming(t *testing.T) {
	var upstreamBody []byte
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-upstream-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`)
	}, func(cfg *config.Config) {
		cfg.Models.Default = "gpt-4o"
	})

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", minimalBody()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var forwarded map[string]interface{}
	require.NoError(t, json.Unmarshal(upstreamBody, &forwarded))
	assert.Equal(t, "gpt-4o", forwarded["model"])
	assert.Equal(t, false, forwarded["stream"])
	assert.Equal(t, float64(100), forwarded["max_tokens"])

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "message", resp["type"])
	assert.Equal(t, "claude-3-5-sonnet-20241022", resp["model"])
	assert.Equal(t, "end_turn", resp["stop_reason"])

	content := resp["content"].([]interface{})
	require.Len(t, content, 1)
	block := content[0].(map[string]interface{})
	assert.Equal(t, "text", block["type"])
	assert.Equal(t, "hello", block["text"])

	usage := resp["usage"].(map[string]interface{})
	assert.Equal(t, float64(1), usage["input_tokens"])
	assert.Equal(t, float64(1), usage["output_tokens"])
}

func TestHandleMessages_Streaming(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		var forwarded map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &forwarded))
		assert.Equal(t, true, forwarded["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		} {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}, nil)

	body := minimalBody()
	body["stream"] = true

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	for _, eventType := range []string{
		"event: message_start",
		"event: content_block_start",
		"event: ping",
		"event: content_block_delta",
		"event: content_block_stop",
		"event: message_delta",
		"event: message_stop",
	} {
		assert.Contains(t, out, eventType)
	}
	assert.Contains(t, out, `"text":"Hel"`)
	assert.Contains(t, out, `"stop_reason":"end_turn"`)
}

func TestHandleMessages_MalformedJSON(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be contacted")
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp testhelpers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, "validation_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "invalid JSON")
}

func TestHandleMessages_ValidationFailure(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be contacted")
	}, nil)

	body := minimalBody()
	delete(body, "max_tokens")

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp testhelpers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "max_tokens")
}

func TestHandleMessages_UpstreamErrorRelay(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}, nil)

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", minimalBody()))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp testhelpers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "rate limited")
}

func TestHandleMessages_UpstreamTimeout(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	}, func(cfg *config.Config) {
		cfg.RequestTimeoutSeconds = 1
	})

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", minimalBody()))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var resp testhelpers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "timeout_error", resp.Error.Type)
}

func TestHandleMessages_UpstreamInvalidJSON(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "definitely not json")
	}, nil)

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", minimalBody()))

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp testhelpers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "api_error", resp.Error.Type)
}

func TestHandleMessages_UpstreamEmptyChoices(t *testing.T) {
	prx := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"chatcmpl-1","choices":[]}`)
	}, nil)

	rec := httptest.NewRecorder()
	prx.HandleMessages(rec, testhelpers.NewTestRequest(http.MethodPost, "/v1/messages", minimalBody()))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
