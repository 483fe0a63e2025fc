package bus

import (
	"encoding/json"
	"time"

	"github.com/ajitpratap0/agentalign/internal/metrics"
)

// Envelope is the wire format for pipeline events streamed over NATS.
type Envelope struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink publishes pipeline events to per-event subjects so external
// consumers can subscribe to "events.>" or a single event name.
// Publishing is fire-and-forget: delivery problems are logged, never
// surfaced to the pipeline.
type Sink struct {
	bus *Bus
}

// NewSink returns a sink that streams events through the bus.
func (b *Bus) NewSink() *Sink {
	return &Sink{bus: b}
}

// Emit implements events.Sink.
func (s *Sink) Emit(event string, payload map[string]interface{}) {
	if !s.bus.nc.IsConnected() {
		return
	}

	data, err := json.Marshal(Envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		s.bus.log.Warn().Err(err).Str("event", event).Msg("Failed to marshal event envelope")
		return
	}

	subject := s.bus.prefix + subjectEvents + event
	if err := s.bus.nc.Publish(subject, data); err != nil {
		s.bus.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
		return
	}
	metrics.NATSMessagesPublished.Inc()
}
