package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	server := NewServer(19113, zerolog.Nop())

	assert.NotNil(t, server)
	assert.Equal(t, 19113, server.port)
	assert.Nil(t, server.server) // not started yet
}

func TestServerServesMetricsAndHealth(t *testing.T) {
	port := 19114
	server := NewServer(port, zerolog.Nop())

	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, server.Shutdown(ctx))
	})

	// Give the listener a moment to come up.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	// Touch a collector so the scrape provably includes our namespace.
	EvaluationsStarted.Inc()

	resp2, err := http.Get(fmt.Sprintf("http://localhost:%d/metrics", port))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	metricsBody, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), "agentalign_evaluations_started_total")
}

func TestServerShutdownWithoutStart(t *testing.T) {
	server := NewServer(19115, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}
