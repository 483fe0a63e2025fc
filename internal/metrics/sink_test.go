package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/agentalign/internal/events"
)

func TestSinkCountsEvaluationLifecycle(t *testing.T) {
	sink := NewSink()

	startedBefore := testutil.ToFloat64(EvaluationsStarted)
	completedBefore := testutil.ToFloat64(EvaluationsCompleted.WithLabelValues("full_alignment"))
	stateBefore := testutil.ToFloat64(AlignmentStates.WithLabelValues("full_alignment"))
	failedBefore := testutil.ToFloat64(EvaluationsFailed.WithLabelValues("all_agents_failed"))

	sink.Emit(events.EvaluationStarted, map[string]interface{}{
		"task_id": "task-1", "agent_count": 3,
	})
	sink.Emit(events.EvaluationCompleted, map[string]interface{}{
		"task_id":            "task-1",
		"alignment_state":    "full_alignment",
		"processing_time_ms": int64(120),
	})
	sink.Emit(events.EvaluationFailed, map[string]interface{}{
		"task_id":    "task-2",
		"error_type": "all_agents_failed",
	})

	assert.Equal(t, startedBefore+1, testutil.ToFloat64(EvaluationsStarted))
	assert.Equal(t, completedBefore+1, testutil.ToFloat64(EvaluationsCompleted.WithLabelValues("full_alignment")))
	assert.Equal(t, stateBefore+1, testutil.ToFloat64(AlignmentStates.WithLabelValues("full_alignment")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(EvaluationsFailed.WithLabelValues("all_agents_failed")))
}

func TestSinkCountsAgentActivity(t *testing.T) {
	sink := NewSink()

	retriesBefore := testutil.ToFloat64(AgentRetries.WithLabelValues("skeptic"))
	failuresBefore := testutil.ToFloat64(AgentDecisions.WithLabelValues("skeptic", "failure"))
	escalationsBefore := testutil.ToFloat64(Escalations.WithLabelValues("hard_disagreement"))

	sink.Emit(events.AgentRetry, map[string]interface{}{"agent_name": "skeptic", "attempt": 1})
	sink.Emit(events.AgentExecutionFailed, map[string]interface{}{"agent_name": "skeptic"})
	sink.Emit(events.HITLTriggered, map[string]interface{}{"escalation_reason": "hard_disagreement"})

	assert.Equal(t, retriesBefore+1, testutil.ToFloat64(AgentRetries.WithLabelValues("skeptic")))
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(AgentDecisions.WithLabelValues("skeptic", "failure")))
	assert.Equal(t, escalationsBefore+1, testutil.ToFloat64(Escalations.WithLabelValues("hard_disagreement")))
}

func TestSinkCountsEveryEventName(t *testing.T) {
	sink := NewSink()

	for _, name := range events.Names() {
		before := testutil.ToFloat64(PipelineEvents.WithLabelValues(name))
		sink.Emit(name, map[string]interface{}{"task_id": "task-3"})
		assert.Equal(t, before+1, testutil.ToFloat64(PipelineEvents.WithLabelValues(name)), name)
	}
}

func TestSinkToleratesMissingPayload(t *testing.T) {
	sink := NewSink()

	before := testutil.ToFloat64(EvaluationsCompleted.WithLabelValues("unknown"))
	assert.NotPanics(t, func() {
		sink.Emit(events.EvaluationCompleted, nil)
	})
	assert.Equal(t, before+1, testutil.ToFloat64(EvaluationsCompleted.WithLabelValues("unknown")))
}

func TestRecordAgentDecision(t *testing.T) {
	before := testutil.ToFloat64(AgentDecisions.WithLabelValues("advocate", "success"))
	RecordAgentDecision("advocate", 87.5)
	assert.Equal(t, before+1, testutil.ToFloat64(AgentDecisions.WithLabelValues("advocate", "success")))
}

func TestRecordNotification(t *testing.T) {
	sentBefore := testutil.ToFloat64(NotificationsSent.WithLabelValues("webhook"))
	failedBefore := testutil.ToFloat64(NotificationFailures.WithLabelValues("telegram"))

	RecordNotification("webhook", true)
	RecordNotification("telegram", false)

	assert.Equal(t, sentBefore+1, testutil.ToFloat64(NotificationsSent.WithLabelValues("webhook")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(NotificationFailures.WithLabelValues("telegram")))
}
