// Package bus connects the evaluation pipeline to NATS. Evaluation tasks
// arrive on a queue-grouped request subject, results and HITL escalations
// fan out on their own subjects, and pipeline events stream on a per-event
// subject for external consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/hitl"
	"github.com/ajitpratap0/agentalign/internal/metrics"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
)

const (
	// DefaultPrefix namespaces every subject this service touches.
	DefaultPrefix = "agentalign."

	subjectRequests    = "evaluations.requests"
	subjectResults     = "evaluations.results"
	subjectEscalations = "hitl.requests"
	subjectEvents      = "events."

	// taskQueueGroup load-balances task intake across evaluatord replicas.
	taskQueueGroup = "evaluatord"
)

// Config configures the bus connection.
type Config struct {
	URL    string // NATS server URL
	Prefix string // Subject prefix for namespacing
	Name   string // Connection name shown in NATS monitoring
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		URL:    "nats://localhost:4222",
		Prefix: DefaultPrefix,
		Name:   "agentalign-evaluatord",
	}
}

// Bus is a NATS-backed transport for evaluation tasks, results, and
// escalations. It is safe for concurrent use.
type Bus struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Connect establishes the NATS connection with infinite reconnects.
func Connect(cfg Config, logger zerolog.Logger) (*Bus, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Name == "" {
		cfg.Name = "agentalign"
	}

	log := logger.With().Str("component", "bus").Logger()

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("nats_url", cfg.URL).
		Str("prefix", cfg.Prefix).
		Msg("Message bus connected")

	return &Bus{
		nc:     nc,
		prefix: cfg.Prefix,
		log:    log,
	}, nil
}

// RequestsSubject returns the subject evaluation tasks are submitted on.
func (b *Bus) RequestsSubject() string { return b.prefix + subjectRequests }

// ResultsSubject returns the subject completed results are published on.
func (b *Bus) ResultsSubject() string { return b.prefix + subjectResults }

// EscalationsSubject returns the subject HITL requests are published on.
func (b *Bus) EscalationsSubject() string { return b.prefix + subjectEscalations }

// PublishTask submits an evaluation task for processing.
func (b *Bus) PublishTask(ctx context.Context, spec evaluation.TaskSpec) error {
	return b.publish(ctx, b.RequestsSubject(), spec)
}

// PublishResult publishes a completed evaluation result.
func (b *Bus) PublishResult(ctx context.Context, result *orchestrator.Result) error {
	return b.publish(ctx, b.ResultsSubject(), result)
}

// PublishEscalation publishes a HITL escalation request.
func (b *Bus) PublishEscalation(ctx context.Context, request *hitl.Request) error {
	return b.publish(ctx, b.EscalationsSubject(), request)
}

func (b *Bus) publish(ctx context.Context, subject string, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !b.nc.IsConnected() {
		return fmt.Errorf("message bus not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	metrics.NATSMessagesPublished.Inc()

	b.log.Debug().
		Str("subject", subject).
		Int("bytes", len(data)).
		Msg("Published message")

	return nil
}

// SubscribeTasks consumes evaluation tasks. Intake is queue-grouped so
// running multiple evaluatord replicas splits the work instead of
// duplicating it. Malformed payloads are logged and dropped.
func (b *Bus) SubscribeTasks(handler func(evaluation.TaskSpec)) (*Subscription, error) {
	subject := b.RequestsSubject()
	sub, err := b.nc.QueueSubscribe(subject, taskQueueGroup, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.Inc()
		var spec evaluation.TaskSpec
		if err := json.Unmarshal(msg.Data, &spec); err != nil {
			b.log.Warn().Err(err).Str("subject", subject).Msg("Failed to unmarshal task")
			return
		}
		handler(spec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.log.Info().Str("subject", subject).Str("queue", taskQueueGroup).Msg("Subscribed to evaluation tasks")
	return &Subscription{sub: sub, subject: subject}, nil
}

// SubscribeResults delivers every published evaluation result to handler.
func (b *Bus) SubscribeResults(handler func(*orchestrator.Result)) (*Subscription, error) {
	subject := b.ResultsSubject()
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.Inc()
		var result orchestrator.Result
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			b.log.Warn().Err(err).Str("subject", subject).Msg("Failed to unmarshal result")
			return
		}
		handler(&result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.log.Info().Str("subject", subject).Msg("Subscribed to evaluation results")
	return &Subscription{sub: sub, subject: subject}, nil
}

// SubscribeEscalations delivers every published HITL request to handler.
func (b *Bus) SubscribeEscalations(handler func(*hitl.Request)) (*Subscription, error) {
	subject := b.EscalationsSubject()
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.Inc()
		var request hitl.Request
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			b.log.Warn().Err(err).Str("subject", subject).Msg("Failed to unmarshal escalation")
			return
		}
		handler(&request)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.log.Info().Str("subject", subject).Msg("Subscribed to HITL escalations")
	return &Subscription{sub: sub, subject: subject}, nil
}

// SubscribeEvents delivers every pipeline event envelope published under
// the events subject tree to handler, including envelopes published by this
// connection's own sink.
func (b *Bus) SubscribeEvents(handler func(Envelope)) (*Subscription, error) {
	subject := b.prefix + subjectEvents + ">"
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		metrics.NATSMessagesReceived.Inc()
		var envelope Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal event envelope")
			return
		}
		handler(envelope)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.log.Info().Str("subject", subject).Msg("Subscribed to pipeline events")
	return &Subscription{sub: sub, subject: subject}, nil
}

// IsConnected reports whether the underlying connection is up.
func (b *Bus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close closes the bus connection.
func (b *Bus) Close() error {
	if b.nc != nil {
		b.nc.Close()
		b.log.Info().Msg("Message bus closed")
	}
	return nil
}

// Subscription represents an active subscription.
type Subscription struct {
	sub     *nats.Subscription
	subject string
}

// Unsubscribe stops delivery for this subscription.
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", s.subject, err)
	}
	return nil
}

// IsValid reports whether the subscription is still active.
func (s *Subscription) IsValid() bool {
	return s.sub.IsValid()
}
