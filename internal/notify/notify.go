// Package notify delivers human-in-the-loop escalation requests to review
// channels: webhook, Telegram, and FCM push. Delivery is best-effort fan-out;
// a channel failure is logged and counted but never fails the evaluation that
// produced the escalation.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/hitl"
	"github.com/ajitpratap0/agentalign/internal/metrics"
)

// Notifier delivers one escalation request to one channel.
type Notifier interface {
	Send(ctx context.Context, request *hitl.Request) error
	Name() string
}

// Dispatcher fans escalation requests out to every configured channel.
type Dispatcher struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(logger zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		log:       logger.With().Str("component", "notify").Logger(),
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch sends the request to all channels. It returns an error only when
// every channel failed; partial failures are logged and recorded in metrics.
// A nil request is a no-op so callers can pass the builder output directly.
func (d *Dispatcher) Dispatch(ctx context.Context, request *hitl.Request) error {
	if request == nil {
		return nil
	}
	if len(d.notifiers) == 0 {
		d.log.Debug().
			Str("request_id", request.RequestID).
			Msg("No notification channels configured")
		return nil
	}

	var lastErr error
	sent := 0
	for _, notifier := range d.notifiers {
		if err := notifier.Send(ctx, request); err != nil {
			d.log.Error().
				Err(err).
				Str("channel", notifier.Name()).
				Str("request_id", request.RequestID).
				Str("task_id", request.TaskID).
				Msg("Failed to deliver escalation")
			metrics.RecordNotification(notifier.Name(), false)
			lastErr = err
			continue
		}
		metrics.RecordNotification(notifier.Name(), true)
		sent++
	}

	if sent > 0 {
		d.log.Info().
			Int("sent_count", sent).
			Int("total_channels", len(d.notifiers)).
			Str("request_id", request.RequestID).
			Str("escalation_reason", string(request.EscalationReason)).
			Msg("Delivered escalation to review channels")
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("failed to deliver escalation to any channel: %w", lastErr)
	}
	return nil
}

// LogNotifier writes escalations to the log. It is the default channel when
// nothing else is configured, so escalations are never silently dropped.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-backed channel.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "notify").Logger()}
}

// Send logs the escalation request.
func (l *LogNotifier) Send(ctx context.Context, request *hitl.Request) error {
	l.log.Warn().
		Str("request_id", request.RequestID).
		Str("task_id", request.TaskID).
		Str("alignment_state", request.AlignmentState).
		Float64("alignment_score", request.AlignmentScore).
		Str("escalation_reason", string(request.EscalationReason)).
		Strs("dissenting_agents", request.DissentingAgents).
		Str("summary", request.Summary).
		Msg("Human review required")
	return nil
}

// Name returns the channel name.
func (l *LogNotifier) Name() string { return "log" }
