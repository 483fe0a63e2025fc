// Package alignment detects agreement and disagreement across the decisions
// of multiple evaluation agents. The analyzer is deterministic: the same task
// and decisions always produce the same summary, so alignment states can be
// replayed, archived, and audited.
package alignment

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/schema"
)

// ErrInsufficientAgents is returned when fewer than two decisions are given;
// alignment is meaningless for a single voice.
var ErrInsufficientAgents = errors.New("at least 2 agent decisions required for alignment analysis")

// Three or more disagreement areas escalate an otherwise soft conflict to
// hard disagreement.
const hardDisagreementAreaCount = 3

// Analyzer classifies multi-agent alignment using fixed thresholds.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer creates an analyzer with the given thresholds. Callers that
// accept thresholds from configuration should validate them first.
func NewAnalyzer(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// Thresholds returns the thresholds the analyzer was constructed with.
func (a *Analyzer) Thresholds() Thresholds { return a.thresholds }

// Analyze compares agent decisions on a task and produces the alignment
// summary that resolution and escalation key off. The sink may be nil.
func (a *Analyzer) Analyze(task *evaluation.Task, decisions []*evaluation.AgentDecision, sink events.Sink) (*Summary, error) {
	if task == nil || task.Schema == nil {
		return nil, fmt.Errorf("%w: decision schema is required", evaluation.ErrInvalidTask)
	}
	if len(decisions) < 2 {
		return nil, ErrInsufficientAgents
	}

	schemaType := string(task.Schema.Type())

	events.Emit(sink, events.AnalysisStarted, map[string]interface{}{
		"task_id":              task.TaskID,
		"agent_count":          len(decisions),
		"decision_schema_type": schemaType,
	})

	agreement := a.decisionAgreement(task.Schema, decisions)
	avg, spread := confidenceMetrics(decisions)
	dissenters := dissentingAgents(decisions)
	areas := a.disagreementAreas(decisions, spread)
	score := alignmentScore(agreement, spread, len(dissenters))
	state := a.determineState(agreement, avg, spread, len(areas))
	strength := score * avg

	distribution := make(map[string]float64, len(decisions))
	for _, d := range decisions {
		distribution[d.AgentName] = d.Confidence
	}

	summary := &Summary{
		State:                  state,
		AlignmentScore:         score,
		DecisionAgreement:      agreement,
		ConfidenceSpread:       spread,
		ConfidenceDistribution: distribution,
		AvgConfidence:          avg,
		DissentingAgents:       dissenters,
		DisagreementAreas:      areas,
		ConsensusStrength:      strength,
		ResolutionRationale:    rationaleFor(state, agreement, avg, spread, areas),
		Metadata: map[string]interface{}{
			"agent_count":          len(decisions),
			"decision_schema_type": schemaType,
			"thresholds":           a.thresholds.snapshot(),
			"analysis_version":     AnalysisVersion,
		},
	}

	events.Emit(sink, events.AnalysisCompleted, map[string]interface{}{
		"task_id":                 task.TaskID,
		"alignment_state":         string(state),
		"alignment_score":         score,
		"decision_agreement":      agreement,
		"confidence_spread":       spread,
		"avg_confidence":          avg,
		"dissenting_agent_count":  len(dissenters),
		"disagreement_area_count": len(areas),
		"consensus_strength":      strength,
	})

	return summary, nil
}

// decisionAgreement dispatches on the schema to decide whether all decisions
// count as the same answer. Scalars agree when every value lies within the
// schema tolerance of their mean; the other known schemas compare canonical
// keys; unknown schemas fall back to exact string equality.
func (a *Analyzer) decisionAgreement(s schema.Schema, decisions []*evaluation.AgentDecision) bool {
	switch sc := s.(type) {
	case schema.Scalar:
		return a.scalarAgreement(sc, decisions)
	case schema.Boolean, schema.Categorical, schema.FreeForm:
		first := s.Key(decisions[0].DecisionValue)
		for _, d := range decisions[1:] {
			if s.Key(d.DecisionValue) != first {
				return false
			}
		}
		return true
	default:
		first := schema.DecisionString(decisions[0].DecisionValue)
		for _, d := range decisions[1:] {
			if schema.DecisionString(d.DecisionValue) != first {
				return false
			}
		}
		return true
	}
}

func (a *Analyzer) scalarAgreement(sc schema.Scalar, decisions []*evaluation.AgentDecision) bool {
	values := make([]float64, 0, len(decisions))
	var sum float64
	for _, d := range decisions {
		v, ok := schema.AsFloat(d.DecisionValue)
		if !ok {
			return false
		}
		values = append(values, v)
		sum += v
	}

	mean := sum / float64(len(values))
	tolerance := sc.Range() * a.thresholds.ScalarDecisionToleranceRatio
	for _, v := range values {
		if math.Abs(v-mean) > tolerance {
			return false
		}
	}
	return true
}

// confidenceMetrics returns the mean and max-min spread of raw confidences.
func confidenceMetrics(decisions []*evaluation.AgentDecision) (avg, spread float64) {
	lo, hi := decisions[0].Confidence, decisions[0].Confidence
	var sum float64
	for _, d := range decisions {
		sum += d.Confidence
		if d.Confidence < lo {
			lo = d.Confidence
		}
		if d.Confidence > hi {
			hi = d.Confidence
		}
	}
	return sum / float64(len(decisions)), hi - lo
}

// dissentingAgents returns, in input order, the agents whose decision string
// differs from the most frequent one. Frequency ties go to the decision seen
// first.
func dissentingAgents(decisions []*evaluation.AgentDecision) []string {
	counts := make(map[string]int, len(decisions))
	order := make([]string, 0, len(decisions))
	for _, d := range decisions {
		key := schema.DecisionString(d.DecisionValue)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	majority := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[majority] {
			majority = key
		}
	}

	dissenters := make([]string, 0)
	for _, d := range decisions {
		if schema.DecisionString(d.DecisionValue) != majority {
			dissenters = append(dissenters, d.AgentName)
		}
	}
	return dissenters
}

// disagreementAreas collects, in a fixed detection order, the aspects on
// which the agents conflict.
func (a *Analyzer) disagreementAreas(decisions []*evaluation.AgentDecision, spread float64) []string {
	areas := make([]string, 0, 4)

	distinct := make(map[string]struct{}, len(decisions))
	for _, d := range decisions {
		distinct[schema.DecisionString(d.DecisionValue)] = struct{}{}
	}
	if len(distinct) > 1 {
		areas = append(areas, AreaPrimaryDecision)
	}

	if spread > a.thresholds.SoftDisagreementConfidenceSpread {
		areas = append(areas, AreaConfidenceLevels)
	}

	if reasoningOverlap(decisions) < a.thresholds.ReasoningOverlapThreshold {
		areas = append(areas, AreaReasoningApproach)
	}

	if evidenceConsistency(decisions) < a.thresholds.EvidenceConsistencyThreshold {
		areas = append(areas, AreaEvidenceQuality)
	}

	return areas
}

// reasoningOverlap measures shared rationale vocabulary as the Jaccard index
// of the agents' keyword sets: keywords common to every agent over keywords
// used by any agent. An empty union scores zero.
func reasoningOverlap(decisions []*evaluation.AgentDecision) float64 {
	var common map[string]struct{}
	union := make(map[string]struct{})

	for i, d := range decisions {
		keywords := rationaleKeywords(d.Rationale)
		for word := range keywords {
			union[word] = struct{}{}
		}
		if i == 0 {
			common = keywords
			continue
		}
		for word := range common {
			if _, ok := keywords[word]; !ok {
				delete(common, word)
			}
		}
	}

	if len(union) == 0 {
		return 0
	}
	return float64(len(common)) / float64(len(union))
}

// rationaleKeywords extracts the lowercased whitespace-separated tokens
// longer than three characters.
func rationaleKeywords(rationale string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, word := range strings.Fields(rationale) {
		if utf8.RuneCountInString(word) > 3 {
			keywords[strings.ToLower(word)] = struct{}{}
		}
	}
	return keywords
}

// evidenceConsistency scores how evenly agents cite evidence: one minus the
// coefficient of variation of their evidence counts, floored at zero. Agents
// that all cite nothing are fully consistent.
func evidenceConsistency(decisions []*evaluation.AgentDecision) float64 {
	counts := make([]float64, len(decisions))
	var sum float64
	for i, d := range decisions {
		counts[i] = float64(len(d.Evidence))
		sum += counts[i]
	}

	mean := sum / float64(len(counts))
	if mean == 0 {
		return 1
	}

	var squares float64
	for _, c := range counts {
		squares += (c - mean) * (c - mean)
	}
	stddev := math.Sqrt(squares / float64(len(counts)-1))

	return math.Max(0, 1-stddev/mean)
}

// alignmentScore combines decision agreement (weight 0.4), confidence
// consistency (0.3), and consensus breadth (0.3) into a single [0, 1] score.
func alignmentScore(agreement bool, spread float64, dissenters int) float64 {
	score := 0.0
	if agreement {
		score += 0.4
	}

	score += 0.3 * math.Max(0, 1-spread)

	breadth := 1 - float64(dissenters)/float64(dissenters+1)
	score += 0.3 * breadth

	return math.Min(1, math.Max(0, score))
}

// determineState applies the threshold rules in priority order: insufficient
// signal, hard disagreement, soft disagreement, full alignment.
func (a *Analyzer) determineState(agreement bool, avg, spread float64, areaCount int) State {
	switch {
	case avg < a.thresholds.InsufficientSignalAvgConfidence:
		return StateInsufficientSignal
	case !agreement ||
		spread > a.thresholds.HardDisagreementConfidenceSpread ||
		areaCount >= hardDisagreementAreaCount:
		return StateHardDisagreement
	case spread > a.thresholds.SoftDisagreementConfidenceSpread || areaCount >= 1:
		return StateSoftDisagreement
	default:
		return StateFullAlignment
	}
}

// rationaleFor renders the fixed, deterministic explanation of a state.
func rationaleFor(state State, agreement bool, avg, spread float64, areas []string) string {
	switch state {
	case StateFullAlignment:
		return fmt.Sprintf("Full alignment: agents agree on decision with avg confidence %.2f", avg)
	case StateSoftDisagreement:
		joined := "confidence levels"
		if len(areas) > 0 {
			joined = strings.Join(areas, ", ")
		}
		return fmt.Sprintf("Soft disagreement in %s (spread: %.2f)", joined, spread)
	case StateHardDisagreement:
		if !agreement {
			return "Hard disagreement: agents disagree on primary decision"
		}
		return fmt.Sprintf("Hard disagreement: high confidence spread (%.2f) or multiple conflict areas", spread)
	case StateInsufficientSignal:
		return fmt.Sprintf("Insufficient signal: low average confidence (%.2f)", avg)
	default:
		return fmt.Sprintf("Unknown alignment state: %s", state)
	}
}
