package orchestrator

import (
	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
)

// Result is the complete outcome of one multi-agent evaluation: the
// synthesised decision, every contributing agent decision in registration
// order, the alignment analysis, and the review verdict. Results are
// immutable once assembled and travel as-is over the bus, into the archive,
// and out of the REST surface.
type Result struct {
	TaskID              string                      `json:"task_id"`
	SynthesizedDecision interface{}                 `json:"synthesized_decision"`
	Confidence          float64                     `json:"confidence"`
	Reasoning           string                      `json:"reasoning"`
	Evidence            []string                    `json:"evidence"`
	AgentDecisions      []*evaluation.AgentDecision `json:"agent_decisions"`
	AlignmentSummary    *alignment.Summary          `json:"alignment_summary"`
	RequiresHumanReview bool                        `json:"requires_human_review"`
	ReviewReason        string                      `json:"review_reason,omitempty"`
	RequestID           string                      `json:"request_id"`
	ProcessingTimeMS    int64                       `json:"processing_time_ms"`
	Metadata            map[string]interface{}      `json:"metadata"`
}

// State is a convenience accessor for the alignment state of the result.
func (r *Result) State() alignment.State {
	if r == nil || r.AlignmentSummary == nil {
		return ""
	}
	return r.AlignmentSummary.State
}
