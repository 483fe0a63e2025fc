// Package events defines the observability stream shared by the
// evaluation pipeline. Pipeline stages publish named events with
// structured payloads to a Sink; sink implementations fan the stream
// out to logs, metrics, the message bus, or WebSocket subscribers.
package events

import (
	"github.com/rs/zerolog"
)

// Event names published by the pipeline. The set is closed: downstream
// consumers key dashboards and alert rules off these exact strings.
const (
	// Alignment analysis events
	AnalysisStarted   = "alignment_analysis_started"
	AnalysisCompleted = "alignment_analysis_completed"

	// Disagreement resolution events
	ResolutionStarted   = "disagreement_resolution_started"
	ResolutionCompleted = "disagreement_resolution_completed"

	// Orchestration events
	EvaluationStarted    = "multi_agent_evaluation_started"
	ExecutingAgent       = "executing_agent"
	AgentRetry           = "agent_retry"
	AgentExecutionFailed = "agent_execution_failed"
	PartialAgentFailure  = "partial_agent_failure"
	EvaluationCompleted  = "multi_agent_evaluation_completed"
	EvaluationFailed     = "multi_agent_evaluation_failed"

	// Human-in-the-loop events
	HITLNotRequired = "hitl_escalation_not_required"
	HITLTriggered   = "hitl_escalation_triggered"
)

// Names returns every event name in a stable order. Consumers that
// pre-register per-event state (metric counters, subscriptions) range
// over this instead of hardcoding the list.
func Names() []string {
	return []string{
		AnalysisStarted,
		AnalysisCompleted,
		ResolutionStarted,
		ResolutionCompleted,
		EvaluationStarted,
		ExecutingAgent,
		AgentRetry,
		AgentExecutionFailed,
		PartialAgentFailure,
		EvaluationCompleted,
		EvaluationFailed,
		HITLNotRequired,
		HITLTriggered,
	}
}

// Sink receives pipeline events. Implementations must be safe for
// concurrent use; Emit is called from the orchestrator's worker
// goroutines and must not block them for long.
type Sink interface {
	Emit(event string, payload map[string]interface{})
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event string, payload map[string]interface{})

// Emit implements Sink.
func (f SinkFunc) Emit(event string, payload map[string]interface{}) {
	f(event, payload)
}

// Emit forwards an event to sink. A nil sink discards the event, so
// publishers never need their own nil checks.
func Emit(sink Sink, event string, payload map[string]interface{}) {
	if sink == nil {
		return
	}
	sink.Emit(event, payload)
}

// MultiSink fans every event out to each member sink in order. Nil
// members are skipped.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(event string, payload map[string]interface{}) {
	for _, s := range m {
		if s != nil {
			s.Emit(event, payload)
		}
	}
}

// LogSink writes events to a zerolog logger so the pipeline is
// observable without any external infrastructure.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink. Per-agent chatter logs at debug, partial
// failures at warn, terminal failures at error, everything else at
// info.
func (s *LogSink) Emit(event string, payload map[string]interface{}) {
	var e *zerolog.Event
	switch event {
	case ExecutingAgent, AgentRetry, HITLNotRequired:
		e = s.logger.Debug()
	case PartialAgentFailure:
		e = s.logger.Warn()
	case AgentExecutionFailed, EvaluationFailed:
		e = s.logger.Error()
	default:
		e = s.logger.Info()
	}
	e.Interface("payload", payload).Msg(event)
}
