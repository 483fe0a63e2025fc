package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPLimiterAllow(t *testing.T) {
	l := newIPLimiter(1, 2)

	// Burst of 2, then the bucket is empty.
	assert.True(t, l.allow("192.168.1.1"))
	assert.True(t, l.allow("192.168.1.1"))
	assert.False(t, l.allow("192.168.1.1"))

	// Separate IPs get separate buckets.
	assert.True(t, l.allow("192.168.1.2"))
}

func TestNewRateLimitersDisabled(t *testing.T) {
	assert.Nil(t, newRateLimiters(RateLimitConfig{}))

	var rl *rateLimiters
	assert.NotNil(t, rl.readLimit())
	assert.NotNil(t, rl.evaluateLimit())
}

func TestEvaluateEndpointRateLimited(t *testing.T) {
	s := newTestServer(t, Config{
		Orchestrator: alignedOrchestrator(t),
		RateLimit: RateLimitConfig{
			Enabled:           true,
			ReadPerSecond:     50,
			ReadBurst:         50,
			EvaluatePerSecond: 1,
			EvaluateBurst:     1,
		},
	})

	w := doRequest(s, http.MethodPost, "/api/v1/evaluations", evaluationBody(t, "task-1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/v1/evaluations", evaluationBody(t, "task-2"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp["error"])

	// Reads stay within their own budget.
	w = doRequest(s, http.MethodGet, "/health", nil)
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Greater(t, cfg.ReadPerSecond, cfg.EvaluatePerSecond)
	assert.Greater(t, cfg.ReadBurst, cfg.EvaluateBurst)
}
