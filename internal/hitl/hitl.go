// Package hitl builds human-in-the-loop escalation requests from evaluation
// results. The builder is pure: no I/O, no persistence, no scheduling. It
// produces a structured payload that downstream review systems consume;
// delivering it is the notify package's job.
package hitl

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
)

// Reason is the machine-readable cause of an escalation.
type Reason string

const (
	ReasonHardDisagreement     Reason = "hard_disagreement"
	ReasonLowConfidence        Reason = "low_confidence"
	ReasonInconsistentEvidence Reason = "inconsistent_evidence"
	ReasonCustomRule           Reason = "custom_rule"
)

// Reasons returns the closed set of escalation reasons.
func Reasons() []Reason {
	return []Reason{ReasonHardDisagreement, ReasonLowConfidence, ReasonInconsistentEvidence, ReasonCustomRule}
}

// Request is the complete escalation contract handed to review systems. The
// JSON field order and names are stable; consumers key off them.
type Request struct {
	RequestID        string                      `json:"request_id"`
	TaskID           string                      `json:"task_id"`
	AlignmentState   string                      `json:"alignment_state"`
	AlignmentScore   float64                     `json:"alignment_score"`
	EscalationReason Reason                      `json:"escalation_reason"`
	Summary          string                      `json:"summary"`
	AgentDecisions   []*evaluation.AgentDecision `json:"agent_decisions"`
	DissentingAgents []string                    `json:"dissenting_agents"`
	CreatedAt        time.Time                   `json:"created_at"`
	Metadata         map[string]interface{}      `json:"metadata"`
}

// BuildRequest derives an escalation request from an evaluation result, or
// nil when the result does not require human review. It never fails; the
// only observable side effect is the event emitted on the sink.
func BuildRequest(result *orchestrator.Result, summary *alignment.Summary, sink events.Sink) *Request {
	if !result.RequiresHumanReview {
		events.Emit(sink, events.HITLNotRequired, map[string]interface{}{
			"task_id":               result.TaskID,
			"alignment_state":       string(summary.State),
			"requires_human_review": result.RequiresHumanReview,
		})
		return nil
	}

	reason := escalationReason(summary)
	requestID := fmt.Sprintf("hitl-%s-%s", result.TaskID, uuid.NewString()[:8])

	request := &Request{
		RequestID:        requestID,
		TaskID:           result.TaskID,
		AlignmentState:   string(summary.State),
		AlignmentScore:   summary.AlignmentScore,
		EscalationReason: reason,
		Summary:          escalationSummary(summary, reason),
		AgentDecisions:   result.AgentDecisions,
		DissentingAgents: summary.DissentingAgents,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
		Metadata: map[string]interface{}{
			"confidence_spread":     summary.ConfidenceSpread,
			"avg_confidence":        summary.AvgConfidence,
			"disagreement_areas":    summary.DisagreementAreas,
			"consensus_strength":    summary.ConsensusStrength,
			"resolution_rationale":  summary.ResolutionRationale,
			"agent_count":           len(result.AgentDecisions),
			"processing_time_ms":    result.ProcessingTimeMS,
			"evaluation_request_id": result.RequestID,
		},
	}

	events.Emit(sink, events.HITLTriggered, map[string]interface{}{
		"request_id":        requestID,
		"task_id":           result.TaskID,
		"alignment_state":   string(summary.State),
		"escalation_reason": string(reason),
		"alignment_score":   summary.AlignmentScore,
		"dissenting_agents": summary.DissentingAgents,
		"confidence_spread": summary.ConfidenceSpread,
		"avg_confidence":    summary.AvgConfidence,
	})

	return request
}

// escalationReason maps the alignment state onto the escalation taxonomy.
// Soft disagreement splits on whether evidence quality was among the
// conflict areas.
func escalationReason(summary *alignment.Summary) Reason {
	switch summary.State {
	case alignment.StateHardDisagreement:
		return ReasonHardDisagreement
	case alignment.StateInsufficientSignal:
		return ReasonLowConfidence
	case alignment.StateSoftDisagreement:
		if summary.HasArea(alignment.AreaEvidenceQuality) {
			return ReasonInconsistentEvidence
		}
		return ReasonLowConfidence
	default:
		return ReasonCustomRule
	}
}

// escalationSummary renders the fixed per-reason explanation shown to human
// reviewers. The wording is part of the contract; numbers round to two
// decimals.
func escalationSummary(summary *alignment.Summary, reason Reason) string {
	switch reason {
	case ReasonHardDisagreement:
		return fmt.Sprintf("Agents fundamentally disagree on decision (%d/%d dissenting, confidence spread: %.2f)",
			len(summary.DissentingAgents), len(summary.ConfidenceDistribution), summary.ConfidenceSpread)
	case ReasonLowConfidence:
		return fmt.Sprintf("Agents lack sufficient confidence for reliable decision (avg confidence: %.2f, state: %s)",
			summary.AvgConfidence, summary.State)
	case ReasonInconsistentEvidence:
		return fmt.Sprintf("Agents provide inconsistent evidence quality (disagreement areas: %s)",
			strings.Join(summary.DisagreementAreas, ", "))
	default:
		return fmt.Sprintf("Custom escalation rule triggered (alignment state: %s, score: %.2f)",
			summary.State, summary.AlignmentScore)
	}
}

// ValidateRequest reports whether the request satisfies the escalation
// contract: score in range, reason in the closed set, decisions present, and
// every dissenting agent accounted for among the decisions.
func ValidateRequest(request *Request) bool {
	if request == nil {
		return false
	}
	if request.AlignmentScore < 0 || request.AlignmentScore > 1 {
		return false
	}
	switch request.EscalationReason {
	case ReasonHardDisagreement, ReasonLowConfidence, ReasonInconsistentEvidence, ReasonCustomRule:
	default:
		return false
	}
	if len(request.AgentDecisions) == 0 {
		return false
	}
	names := make(map[string]struct{}, len(request.AgentDecisions))
	for _, d := range request.AgentDecisions {
		names[d.AgentName] = struct{}{}
	}
	for _, dissenter := range request.DissentingAgents {
		if _, ok := names[dissenter]; !ok {
			return false
		}
	}
	return true
}
