// Package record fans finished evaluations out to the configured stores and
// escalation channels: Redis history, the Postgres archive, the message bus,
// and human review delivery. Both the API server and evaluatord share this
// path so a result is recorded the same way regardless of how it arrived.
package record

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/agentalign/internal/bus"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/hitl"
	"github.com/ajitpratap0/agentalign/internal/notify"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/store"
)

// Recorder holds the destinations a finished evaluation is written to. Every
// field is optional; nil destinations are skipped.
type Recorder struct {
	History    *history.Store
	Archive    *store.Store
	Bus        *bus.Bus
	Dispatcher *notify.Dispatcher
	Sink       events.Sink
	Log        zerolog.Logger
}

// Record persists a finished evaluation and, when the result calls for human
// review, builds and delivers the escalation. It returns the escalation
// request when one was raised. Channel failures are logged, never returned:
// the evaluation already succeeded and the channels are independent of each
// other.
func (r *Recorder) Record(ctx context.Context, task *evaluation.Task, result *orchestrator.Result) *hitl.Request {
	if r.History != nil {
		if err := r.History.Put(ctx, result); err != nil {
			r.Log.Warn().Err(err).Str("request_id", result.RequestID).Msg("Failed to store result in history")
		}
	}

	if r.Archive != nil {
		rec, err := store.NewEvaluationRecord(result, task)
		if err != nil {
			r.Log.Warn().Err(err).Str("request_id", result.RequestID).Msg("Failed to build evaluation record")
		} else if err := r.Archive.InsertEvaluation(ctx, rec); err != nil {
			r.Log.Warn().Err(err).Str("request_id", result.RequestID).Msg("Failed to archive result")
		}
	}

	if r.Bus != nil {
		if err := r.Bus.PublishResult(ctx, result); err != nil {
			r.Log.Warn().Err(err).Str("request_id", result.RequestID).Msg("Failed to publish result")
		}
	}

	if result.AlignmentSummary == nil {
		return nil
	}

	// The builder owns the review gate: it emits hitl_escalation_not_required
	// and returns nil for results that resolve automatically.
	request := hitl.BuildRequest(result, result.AlignmentSummary, r.Sink)
	if request == nil {
		return nil
	}

	r.escalate(ctx, request)
	return request
}

func (r *Recorder) escalate(ctx context.Context, request *hitl.Request) {
	if r.Archive != nil {
		rec, err := store.NewHITLRecord(request)
		if err != nil {
			r.Log.Warn().Err(err).Str("request_id", request.RequestID).Msg("Failed to build review record")
		} else if err := r.Archive.InsertHITLRequest(ctx, rec); err != nil {
			r.Log.Warn().Err(err).Str("request_id", request.RequestID).Msg("Failed to archive review request")
		}
	}

	if r.Bus != nil {
		if err := r.Bus.PublishEscalation(ctx, request); err != nil {
			r.Log.Warn().Err(err).Str("request_id", request.RequestID).Msg("Failed to publish escalation")
		}
	}

	if r.Dispatcher != nil {
		if err := r.Dispatcher.Dispatch(ctx, request); err != nil {
			r.Log.Warn().Err(err).Str("request_id", request.RequestID).Msg("Failed to dispatch review notification")
		}
	}
}
