package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hlabs/openclaw/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *geminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewGemini(config.GatewayConfig{
		Model:      "gemini-test",
		APIKey:     config.Secret("test-key"),
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RateLimit:  1000,
		Burst:      10,
	})
	require.NoError(t, err)
	g := p.(*geminiProvider)
	g.baseBackoff = time.Millisecond
	return g
}

func TestGemini_RequestShape(t *testing.T) {
	var got map[string]any
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	})

	resp, err := g.Complete(context.Background(), Request{System: "sys", Input: "in", Temperature: 0, Search: true})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text)

	assert.Equal(t, 0.0, got["generationConfig"].(map[string]any)["temperature"])
	assert.Equal(t, "sys", got["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"])
	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Contains(t, tools[0].(map[string]any), "google_search")
}

func TestGemini_NoToolsWithoutSearch(t *testing.T) {
	var got map[string]any
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	resp, err := g.Complete(context.Background(), Request{Input: "in", Temperature: 0.7})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.NotContains(t, got, "tools")
	assert.NotContains(t, got, "systemInstruction")
}

func TestGemini_GroundingSources(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{
			"content":{"parts":[{"text":"copy"}]},
			"groundingMetadata":{"groundingChunks":[
				{"web":{"uri":"https://a.example","title":"A"}},
				{"web":{"uri":""}},
				{}
			]}}]}`))
	})

	resp, err := g.Complete(context.Background(), Request{Input: "in", Search: true})
	require.NoError(t, err)
	assert.Equal(t, []Source{{Title: "A", URI: "https://a.example"}}, resp.Sources)
}

func TestGemini_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})

	resp, err := g.Complete(context.Background(), Request{Input: "in"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGemini_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := g.Complete(context.Background(), Request{Input: "in"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestGemini_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := g.Complete(context.Background(), Request{Input: "in"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(config.GatewayConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.GatewayConfig{Provider: "gemini", Model: "m", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	_, err = NewProvider(config.GatewayConfig{Provider: "palm", Model: "m", APIKey: "k"})
	assert.Error(t, err)
}
