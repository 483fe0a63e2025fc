package alignment

import (
	"fmt"
	"math"
)

// Thresholds holds the tunable boundaries used to classify agent alignment.
// An analyzer reads them at construction and never again, so analysis stays
// deterministic for its lifetime.
type Thresholds struct {
	SoftDisagreementConfidenceSpread float64 `json:"soft_disagreement_confidence_spread" mapstructure:"soft_disagreement_confidence_spread"`
	HardDisagreementConfidenceSpread float64 `json:"hard_disagreement_confidence_spread" mapstructure:"hard_disagreement_confidence_spread"`
	InsufficientSignalAvgConfidence  float64 `json:"insufficient_signal_avg_confidence" mapstructure:"insufficient_signal_avg_confidence"`
	MinConfidenceForConsensus        float64 `json:"min_confidence_for_consensus" mapstructure:"min_confidence_for_consensus"`
	ScalarDecisionToleranceRatio     float64 `json:"scalar_decision_tolerance_ratio" mapstructure:"scalar_decision_tolerance_ratio"`
	ReasoningOverlapThreshold        float64 `json:"reasoning_overlap_threshold" mapstructure:"reasoning_overlap_threshold"`
	EvidenceConsistencyThreshold     float64 `json:"evidence_consistency_threshold" mapstructure:"evidence_consistency_threshold"`
}

// DefaultThresholds returns the standard threshold configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SoftDisagreementConfidenceSpread: 0.2,
		HardDisagreementConfidenceSpread: 0.4,
		InsufficientSignalAvgConfidence:  0.5,
		MinConfidenceForConsensus:        0.7,
		ScalarDecisionToleranceRatio:     0.1,
		ReasoningOverlapThreshold:        0.3,
		EvidenceConsistencyThreshold:     0.5,
	}
}

// Validate checks that every threshold lies in its legal range. All fields
// must fall within [0, 1]; the scalar tolerance ratio must additionally be
// positive.
func (t Thresholds) Validate() error {
	unitFields := []struct {
		name  string
		value float64
	}{
		{"soft_disagreement_confidence_spread", t.SoftDisagreementConfidenceSpread},
		{"hard_disagreement_confidence_spread", t.HardDisagreementConfidenceSpread},
		{"insufficient_signal_avg_confidence", t.InsufficientSignalAvgConfidence},
		{"min_confidence_for_consensus", t.MinConfidenceForConsensus},
		{"reasoning_overlap_threshold", t.ReasoningOverlapThreshold},
		{"evidence_consistency_threshold", t.EvidenceConsistencyThreshold},
	}
	for _, field := range unitFields {
		if math.IsNaN(field.value) || field.value < 0 || field.value > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", field.name, field.value)
		}
	}
	if math.IsNaN(t.ScalarDecisionToleranceRatio) || t.ScalarDecisionToleranceRatio <= 0 || t.ScalarDecisionToleranceRatio > 1 {
		return fmt.Errorf("scalar_decision_tolerance_ratio must be within (0, 1], got %v", t.ScalarDecisionToleranceRatio)
	}
	return nil
}

// snapshot renders the thresholds for embedding in summary metadata.
func (t Thresholds) snapshot() map[string]interface{} {
	return map[string]interface{}{
		"soft_disagreement_confidence_spread": t.SoftDisagreementConfidenceSpread,
		"hard_disagreement_confidence_spread": t.HardDisagreementConfidenceSpread,
		"insufficient_signal_avg_confidence":  t.InsufficientSignalAvgConfidence,
		"min_confidence_for_consensus":        t.MinConfidenceForConsensus,
		"scalar_decision_tolerance_ratio":     t.ScalarDecisionToleranceRatio,
		"reasoning_overlap_threshold":         t.ReasoningOverlapThreshold,
		"evidence_consistency_threshold":      t.EvidenceConsistencyThreshold,
	}
}
