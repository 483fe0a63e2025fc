package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/agentalign/internal/hitl"
)

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

// WebhookNotifier POSTs escalation requests as JSON to a review system
// endpoint. Any 2xx response counts as delivered.
type WebhookNotifier struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Send delivers the escalation request.
func (w *WebhookNotifier) Send(ctx context.Context, request *hitl.Request) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.config.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.config.AuthToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(body))
	}

	log.Debug().
		Str("url", w.config.URL).
		Str("request_id", request.RequestID).
		Int("status", resp.StatusCode).
		Msg("Webhook escalation delivered")

	return nil
}

// Name returns the channel name.
func (w *WebhookNotifier) Name() string { return "webhook" }
