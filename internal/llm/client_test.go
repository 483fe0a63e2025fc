package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatResponseBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "claude-sonnet-4-20250514",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "{\"decision\": true, \"confidence\": 0.85}"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160}
}`

func TestCompleteDecodesResponse(t *testing.T) {
	var gotAuth string
	var gotReq ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponseBody))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	})

	resp, err := client.Complete(context.Background(), []ChatMessage{
		{Role: "user", Content: "Evaluate this change"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, `{"decision": true, "confidence": 0.85}`, resp.Choices[0].Message.Content)
	assert.Equal(t, 160, resp.Usage.TotalTokens)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "claude-sonnet-4-20250514", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestCompleteErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		wantContain string
	}{
		{
			name:        "structured API error",
			statusCode:  http.StatusTooManyRequests,
			body:        `{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`,
			wantContain: "Rate limit exceeded",
		},
		{
			name:        "unstructured error body",
			statusCode:  http.StatusBadGateway,
			body:        `upstream timed out`,
			wantContain: "status 502",
		},
		{
			name:        "malformed success body",
			statusCode:  http.StatusOK,
			body:        `{"choices": [`,
			wantContain: "failed to parse response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(ClientConfig{Endpoint: server.URL, Timeout: 5 * time.Second})

			_, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContain)
		})
	}
}

func TestCompleteWithSystem(t *testing.T) {
	var gotReq ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(chatResponseBody))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Endpoint: server.URL, Timeout: 5 * time.Second})

	content, err := client.CompleteWithSystem(context.Background(), "You are a reviewer.", "Evaluate this.")
	require.NoError(t, err)
	assert.Equal(t, `{"decision": true, "confidence": 0.85}`, content)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "You are a reviewer.", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint:          server.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
		Burst:             10,
	})

	messages := []ChatMessage{{Role: "user", Content: "hi"}}
	for i := 0; i < breakerMinRequests; i++ {
		_, err := client.Complete(context.Background(), messages)
		require.Error(t, err)
	}

	// Breaker is open now; the provider must not see further requests.
	_, err := client.Complete(context.Background(), messages)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, breakerMinRequests, atomic.LoadInt32(&hits))
}

func TestCompleteWithRetryStopsOnOpenBreaker(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		Endpoint:          server.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
		Burst:             10,
	})

	messages := []ChatMessage{{Role: "user", Content: "hi"}}
	for i := 0; i < breakerMinRequests; i++ {
		_, _ = client.Complete(context.Background(), messages)
	}

	start := time.Now()
	_, err := client.CompleteWithRetry(context.Background(), messages, 3)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Less(t, time.Since(start), time.Second, "open breaker should fail fast, not back off")
}

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "plain JSON",
			content: `{"decision": "approve", "confidence": 0.9}`,
		},
		{
			name:    "json fenced block",
			content: "Here you go:\n```json\n{\"decision\": \"approve\", \"confidence\": 0.9}\n```\nLet me know.",
		},
		{
			name:    "bare fenced block",
			content: "```\n{\"decision\": \"approve\", \"confidence\": 0.9}\n```",
		},
	}

	client := NewClient(ClientConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Decision   string  `json:"decision"`
				Confidence float64 `json:"confidence"`
			}
			require.NoError(t, client.ParseJSONResponse(tt.content, &out))
			assert.Equal(t, "approve", out.Decision)
			assert.InDelta(t, 0.9, out.Confidence, 1e-9)
		})
	}

	t.Run("invalid payload", func(t *testing.T) {
		var out map[string]interface{}
		err := client.ParseJSONResponse("not json at all", &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse JSON response")
	})
}
