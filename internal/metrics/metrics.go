// Package metrics defines the service's Prometheus collectors and the HTTP
// server that exposes them. Collectors register once at package init; label
// sets are kept to bounded values (event names, alignment states, roster
// agent names) so series cardinality stays flat.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation pipeline metrics
var (
	// Evaluations started
	EvaluationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentalign_evaluations_started_total",
		Help: "Total number of multi-agent evaluations started",
	})

	// Evaluations completed by alignment state
	EvaluationsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_evaluations_completed_total",
		Help: "Total number of evaluations completed, by alignment state",
	}, []string{"alignment_state"})

	// Evaluations failed by error type
	EvaluationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_evaluations_failed_total",
		Help: "Total number of evaluations that produced no result, by error type",
	}, []string{"error_type"})

	// End-to-end evaluation latency
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentalign_evaluation_duration_ms",
		Help:    "End-to-end evaluation duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	// Alignment states observed
	AlignmentStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_alignment_states_total",
		Help: "Total alignment analyses by resulting state",
	}, []string{"state"})

	// HITL escalations by reason
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_hitl_escalations_total",
		Help: "Total HITL escalation requests built, by escalation reason",
	}, []string{"reason"})

	// Pipeline events by name
	PipelineEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_pipeline_events_total",
		Help: "Total pipeline events emitted, by event name",
	}, []string{"event"})
)

// Agent activity metrics
var (
	// Agent decisions by outcome
	AgentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_agent_decisions_total",
		Help: "Total per-agent evaluation outcomes (success or failure)",
	}, []string{"agent_name", "status"})

	// Agent retries
	AgentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_agent_retries_total",
		Help: "Total transient-failure retries per agent",
	}, []string{"agent_name"})

	// Agent processing duration
	AgentProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentalign_agent_processing_duration_ms",
		Help:    "Per-agent evaluation duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"agent_name"})

	// LLM request duration
	LLMRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentalign_llm_request_duration_ms",
		Help:    "LLM gateway request duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000},
	})
)

// Transport and storage metrics
var (
	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentalign_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentalign_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// Redis operations
	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	// NATS messages
	NATSMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentalign_nats_messages_published_total",
		Help: "Total number of NATS messages published",
	})

	NATSMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentalign_nats_messages_received_total",
		Help: "Total number of NATS messages received",
	})

	// HITL delivery outcomes
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_notifications_sent_total",
		Help: "Total HITL notifications delivered, by channel",
	}, []string{"channel"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_notification_failures_total",
		Help: "Total HITL notification delivery failures, by channel",
	}, []string{"channel"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentalign_errors_total",
		Help: "Total number of errors by type and component",
	}, []string{"type", "component"})
)

// Helper functions to update metrics

// RecordAgentDecision records one successful agent decision with its duration.
func RecordAgentDecision(agentName string, durationMs float64) {
	AgentDecisions.WithLabelValues(agentName, "success").Inc()
	AgentProcessingDuration.WithLabelValues(agentName).Observe(durationMs)
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordLLMRequest records an LLM gateway request duration
func RecordLLMRequest(durationMs float64) {
	LLMRequestDuration.Observe(durationMs)
}

// RecordNotification records a HITL delivery attempt outcome for a channel.
func RecordNotification(channel string, ok bool) {
	if ok {
		NotificationsSent.WithLabelValues(channel).Inc()
		return
	}
	NotificationFailures.WithLabelValues(channel).Inc()
}
