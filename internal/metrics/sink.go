package metrics

import (
	"github.com/ajitpratap0/agentalign/internal/events"
)

// Sink translates pipeline events into Prometheus counters. It implements
// events.Sink and is safe for concurrent use; unrecognised payload shapes
// fall back to the "unknown" label rather than dropping the sample.
type Sink struct{}

// NewSink returns a metrics-backed event sink.
func NewSink() *Sink {
	return &Sink{}
}

// Emit implements events.Sink.
func (s *Sink) Emit(event string, payload map[string]interface{}) {
	PipelineEvents.WithLabelValues(event).Inc()

	switch event {
	case events.EvaluationStarted:
		EvaluationsStarted.Inc()

	case events.EvaluationCompleted:
		state := payloadString(payload, "alignment_state")
		EvaluationsCompleted.WithLabelValues(state).Inc()
		AlignmentStates.WithLabelValues(state).Inc()
		if ms, ok := payloadFloat(payload, "processing_time_ms"); ok {
			EvaluationDuration.Observe(ms)
		}

	case events.EvaluationFailed:
		EvaluationsFailed.WithLabelValues(payloadString(payload, "error_type")).Inc()

	case events.AgentRetry:
		AgentRetries.WithLabelValues(payloadString(payload, "agent_name")).Inc()

	case events.AgentExecutionFailed:
		AgentDecisions.WithLabelValues(payloadString(payload, "agent_name"), "failure").Inc()

	case events.HITLTriggered:
		Escalations.WithLabelValues(payloadString(payload, "escalation_reason")).Inc()
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

func payloadFloat(payload map[string]interface{}, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
