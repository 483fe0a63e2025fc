package record

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/schema"
	"github.com/ajitpratap0/agentalign/internal/store"
)

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (s *captureSink) Emit(event string, _ map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) has(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

func testTask(t *testing.T) *evaluation.Task {
	t.Helper()
	s, err := schema.NewBoolean("", "")
	require.NoError(t, err)
	return &evaluation.Task{
		TaskID:   "task-7",
		TaskType: "content_review",
		Schema:   s,
		Context:  map[string]interface{}{"content": "sample"},
		Criteria: "Is the content appropriate?",
	}
}

func testResult(requiresReview bool) *orchestrator.Result {
	state := alignment.StateFullAlignment
	if requiresReview {
		state = alignment.StateHardDisagreement
	}
	return &orchestrator.Result{
		TaskID:              "task-7",
		SynthesizedDecision: true,
		Confidence:          0.8,
		Reasoning:           "Agents weighed the content against the criteria.",
		AgentDecisions: []*evaluation.AgentDecision{
			{AgentName: "advocate", RoleType: "advocate", DecisionValue: true, Confidence: 0.9},
			{AgentName: "skeptic", RoleType: "skeptic", DecisionValue: !requiresReview, Confidence: 0.7},
		},
		AlignmentSummary: &alignment.Summary{
			State:          state,
			AlignmentScore: 0.4,
			AvgConfidence:  0.8,
		},
		RequiresHumanReview: requiresReview,
		ReviewReason:        "hard disagreement between agents",
		RequestID:           "req-7",
		ProcessingTimeMS:    120,
	}
}

func testHistory(t *testing.T) *history.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return history.NewWithClient(client, "test:history:", time.Hour)
}

func TestRecordPersistsToHistory(t *testing.T) {
	hist := testHistory(t)
	sink := &captureSink{}
	r := &Recorder{History: hist, Sink: sink, Log: zerolog.Nop()}

	request := r.Record(context.Background(), testTask(t), testResult(false))
	assert.Nil(t, request)

	stored, err := hist.Get(context.Background(), "req-7")
	require.NoError(t, err)
	assert.Equal(t, "task-7", stored.TaskID)

	// No review required emits the corresponding event, not an escalation.
	assert.False(t, sink.has(events.HITLTriggered))
}

func TestRecordEmitsNotRequiredEvent(t *testing.T) {
	sink := &captureSink{}
	r := &Recorder{Sink: sink, Log: zerolog.Nop()}

	// Every recorded result passes through the escalation builder, so
	// non-escalating evaluations still announce that review was considered
	// and declined.
	request := r.Record(context.Background(), testTask(t), testResult(false))
	assert.Nil(t, request)
	assert.True(t, sink.has(events.HITLNotRequired))
	assert.False(t, sink.has(events.HITLTriggered))
}

func TestRecordRaisesEscalation(t *testing.T) {
	hist := testHistory(t)
	sink := &captureSink{}
	r := &Recorder{History: hist, Sink: sink, Log: zerolog.Nop()}

	request := r.Record(context.Background(), testTask(t), testResult(true))
	require.NotNil(t, request)
	assert.Equal(t, "task-7", request.TaskID)
	assert.Equal(t, "req-7", request.Metadata["evaluation_request_id"])
	assert.True(t, sink.has(events.HITLTriggered))
}

func TestRecordArchivesEvaluationAndEscalation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO evaluations").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO hitl_requests").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	r := &Recorder{Archive: store.New(mock), Log: zerolog.Nop()}

	request := r.Record(context.Background(), testTask(t), testResult(true))
	require.NotNil(t, request)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordToleratesChannelFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	hist := history.NewWithClient(client, "test:history:", time.Hour)
	mr.Close()

	r := &Recorder{History: hist, Log: zerolog.Nop()}

	// The history write fails but recording carries on.
	request := r.Record(context.Background(), testTask(t), testResult(true))
	assert.NotNil(t, request)
}

func TestRecordSkipsEscalationWithoutSummary(t *testing.T) {
	result := testResult(true)
	result.AlignmentSummary = nil

	r := &Recorder{Log: zerolog.Nop()}
	assert.Nil(t, r.Record(context.Background(), testTask(t), result))
}
