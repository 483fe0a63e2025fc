package alignment

// State classifies how well a set of agent decisions aligns.
type State string

const (
	StateFullAlignment      State = "full_alignment"      // agents agree with consistent confidence
	StateSoftDisagreement   State = "soft_disagreement"   // minor conflicts, safe to resolve automatically
	StateHardDisagreement   State = "hard_disagreement"   // fundamental conflicts, candidate for human review
	StateInsufficientSignal State = "insufficient_signal" // confidence too low to trust any resolution
)

// Disagreement areas reported by the analyzer, in detection order.
const (
	AreaPrimaryDecision   = "primary_decision"
	AreaConfidenceLevels  = "confidence_levels"
	AreaReasoningApproach = "reasoning_approach"
	AreaEvidenceQuality   = "evidence_quality"
)

// reviewReason is recorded on results whose summary warrants human review.
const reviewReason = "Agents have fundamental disagreements requiring human review"

// Summary is the complete alignment analysis for one evaluation. It is
// immutable once built and serialises to a stable JSON shape consumed by
// archived evaluations and external reviewers.
type Summary struct {
	State                  State                  `json:"state"`
	AlignmentScore         float64                `json:"alignment_score"`
	DecisionAgreement      bool                   `json:"decision_agreement"`
	ConfidenceSpread       float64                `json:"confidence_spread"`
	ConfidenceDistribution map[string]float64     `json:"confidence_distribution"`
	AvgConfidence          float64                `json:"avg_confidence"`
	DissentingAgents       []string               `json:"dissenting_agents"`
	DisagreementAreas      []string               `json:"disagreement_areas"`
	ConsensusStrength      float64                `json:"consensus_strength"`
	ResolutionRationale    string                 `json:"resolution_rationale"`
	Metadata               map[string]interface{} `json:"metadata"`
}

// RequiresHumanReview reports whether the summary warrants escalation to a
// human reviewer, together with the fixed reason recorded on the result.
// Only hard disagreement escalates; everything else resolves automatically.
func (s *Summary) RequiresHumanReview() (bool, string) {
	if s.State == StateHardDisagreement {
		return true, reviewReason
	}
	return false, ""
}

// HasArea reports whether the summary flagged the given disagreement area.
func (s *Summary) HasArea(area string) bool {
	for _, a := range s.DisagreementAreas {
		if a == area {
			return true
		}
	}
	return false
}
