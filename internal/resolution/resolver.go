// Package resolution synthesises a single decision from multiple agent
// decisions. Resolution is schema-aware and deterministic: boolean and
// categorical decisions use confidence-weighted voting, scalars use a
// confidence-weighted average, and free-form text defers to the most
// confident agent.
package resolution

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/schema"
)

// ErrNoDecisions is returned when resolution is attempted with no decisions.
var ErrNoDecisions = errors.New("at least 1 agent decision required for resolution")

// Synthesised evidence is clamped to this many items.
const maxEvidence = 5

// Synthesis is the resolver's output: the final decision plus the
// explanation and supporting evidence carried into the evaluation result.
type Synthesis struct {
	Decision   interface{} `json:"decision"`
	Confidence float64     `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
	Evidence   []string    `json:"evidence"`
}

// Resolver synthesises final decisions from agent decisions and their
// alignment summary.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve synthesises the final decision for a task. The summary must come
// from an alignment analysis of the same decisions; the synthesised
// confidence is the summary's consensus strength on every path. The sink may
// be nil.
func (r *Resolver) Resolve(task *evaluation.Task, decisions []*evaluation.AgentDecision, summary *alignment.Summary, sink events.Sink) (*Synthesis, error) {
	if task == nil || task.Schema == nil {
		return nil, fmt.Errorf("%w: decision schema is required", evaluation.ErrInvalidTask)
	}
	if len(decisions) == 0 {
		return nil, ErrNoDecisions
	}
	if summary == nil {
		return nil, errors.New("alignment summary is required for resolution")
	}

	events.Emit(sink, events.ResolutionStarted, map[string]interface{}{
		"task_id":              task.TaskID,
		"agent_count":          len(decisions),
		"alignment_state":      string(summary.State),
		"decision_schema_type": string(task.Schema.Type()),
	})

	var (
		synthesis *Synthesis
		err       error
	)
	switch sc := task.Schema.(type) {
	case schema.Boolean:
		synthesis = resolveBoolean(decisions, summary)
	case schema.Categorical:
		synthesis = resolveCategorical(sc, decisions, summary)
	case schema.Scalar:
		synthesis, err = resolveScalar(decisions, summary)
	case schema.FreeForm:
		synthesis = resolveFreeForm(decisions, summary)
	default:
		synthesis = resolveHighestConfidence(decisions, summary)
	}
	if err != nil {
		return nil, err
	}

	events.Emit(sink, events.ResolutionCompleted, map[string]interface{}{
		"task_id":          task.TaskID,
		"final_decision":   schema.DecisionString(synthesis.Decision),
		"final_confidence": synthesis.Confidence,
		"alignment_state":  string(summary.State),
		"evidence_count":   len(synthesis.Evidence),
	})

	return synthesis, nil
}

// resolveBoolean picks the side with the larger confidence-weighted vote.
// Ties resolve to false.
func resolveBoolean(decisions []*evaluation.AgentDecision, summary *alignment.Summary) *Synthesis {
	var weightedTrue, weightedFalse float64
	for _, d := range decisions {
		v, ok := schema.AsBool(d.DecisionValue)
		if !ok {
			continue
		}
		if v {
			weightedTrue += d.Confidence
		} else {
			weightedFalse += d.Confidence
		}
	}

	decision := weightedTrue > weightedFalse
	winningWeight := weightedFalse
	if decision {
		winningWeight = weightedTrue
	}

	supporting := make([]*evaluation.AgentDecision, 0, len(decisions))
	for _, d := range decisions {
		if v, ok := schema.AsBool(d.DecisionValue); ok && v == decision {
			supporting = append(supporting, d)
		}
	}

	reasoning := fmt.Sprintf(
		"Boolean decision: %t based on confidence-weighted majority (%d/%d agents, weighted score: %.2f)",
		decision, len(supporting), len(decisions), winningWeight,
	)

	return &Synthesis{
		Decision:   decision,
		Confidence: summary.ConsensusStrength,
		Reasoning:  reasoning,
		Evidence:   collectEvidence(supporting, 3, 2),
	}
}

// resolveCategorical picks the category (or category set) with the largest
// summed confidence. Ties go to the category seen first. The returned
// decision is the first supporting agent's value, so multi-select decisions
// keep their original shape.
func resolveCategorical(sc schema.Categorical, decisions []*evaluation.AgentDecision, summary *alignment.Summary) *Synthesis {
	weights := make(map[string]float64, len(decisions))
	order := make([]string, 0, len(decisions))
	firstCarrier := make(map[string]*evaluation.AgentDecision, len(decisions))
	for _, d := range decisions {
		key := sc.Key(d.DecisionValue)
		if _, seen := weights[key]; !seen {
			order = append(order, key)
			firstCarrier[key] = d
		}
		weights[key] += d.Confidence
	}

	winner := order[0]
	for _, key := range order[1:] {
		if weights[key] > weights[winner] {
			winner = key
		}
	}

	supporting := make([]*evaluation.AgentDecision, 0, len(decisions))
	for _, d := range decisions {
		if sc.Key(d.DecisionValue) == winner {
			supporting = append(supporting, d)
		}
	}

	reasoning := fmt.Sprintf(
		"Categorical decision: '%s' selected by confidence-weighted vote (%d/%d agents, weighted score: %.2f)",
		winner, len(supporting), len(decisions), weights[winner],
	)

	return &Synthesis{
		Decision:   firstCarrier[winner].DecisionValue,
		Confidence: summary.ConsensusStrength,
		Reasoning:  reasoning,
		Evidence:   collectEvidence(supporting, 0, 2),
	}
}

// resolveScalar computes the confidence-weighted average of the decision
// values, falling back to the arithmetic mean when all weights are zero.
func resolveScalar(decisions []*evaluation.AgentDecision, summary *alignment.Summary) (*Synthesis, error) {
	values := make([]float64, len(decisions))
	var totalWeight float64
	for i, d := range decisions {
		v, ok := schema.AsFloat(d.DecisionValue)
		if !ok {
			return nil, fmt.Errorf("agent %s: scalar decision %q is not numeric",
				d.AgentName, schema.DecisionString(d.DecisionValue))
		}
		values[i] = v
		totalWeight += d.Confidence
	}

	var decision float64
	if totalWeight == 0 {
		var sum float64
		for _, v := range values {
			sum += v
		}
		decision = sum / float64(len(values))
	} else {
		var weighted float64
		for i, d := range decisions {
			weighted += values[i] * d.Confidence
		}
		decision = weighted / totalWeight
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	reasoning := fmt.Sprintf(
		"Scalar decision: %.3f from confidence-weighted average (range: %.3f-%.3f, total weight: %.2f)",
		decision, lo, hi, totalWeight,
	)

	// Evidence comes from the most confident agents; the sort is stable so
	// equal confidences keep their input order.
	ranked := make([]*evaluation.AgentDecision, len(decisions))
	copy(ranked, decisions)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })

	return &Synthesis{
		Decision:   decision,
		Confidence: summary.ConsensusStrength,
		Reasoning:  reasoning,
		Evidence:   collectEvidence(ranked, 3, 2),
	}, nil
}

// resolveFreeForm adopts the decision of the most confident agent and
// summarises up to two other perspectives in the reasoning.
func resolveFreeForm(decisions []*evaluation.AgentDecision, summary *alignment.Summary) *Synthesis {
	chosen := highestConfidence(decisions)
	decision := schema.DecisionString(chosen.DecisionValue)

	reasoning := fmt.Sprintf(
		"Free-form decision from highest confidence agent (%s: %.2f): %s...",
		chosen.AgentName, chosen.Confidence, truncate(decision, 100),
	)

	var perspectives []string
	for _, d := range decisions {
		if d == chosen || len(perspectives) == 2 {
			continue
		}
		perspectives = append(perspectives, fmt.Sprintf("%s: %s...",
			d.AgentName, truncate(schema.DecisionString(d.DecisionValue), 30)))
	}
	if len(perspectives) > 0 {
		reasoning += " Other perspectives: " + strings.Join(perspectives, "; ")
	}

	return &Synthesis{
		Decision:   decision,
		Confidence: summary.ConsensusStrength,
		Reasoning:  reasoning,
		Evidence:   collectEvidence(decisions, 0, 2),
	}
}

// resolveHighestConfidence is the fallback for unknown schemas: the most
// confident agent's decision passes through unchanged.
func resolveHighestConfidence(decisions []*evaluation.AgentDecision, summary *alignment.Summary) *Synthesis {
	chosen := highestConfidence(decisions)

	reasoning := fmt.Sprintf(
		"Fallback resolution using highest confidence agent (%s: %.2f)",
		chosen.AgentName, chosen.Confidence,
	)

	evidence := chosen.Evidence
	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence]
	}

	return &Synthesis{
		Decision:   chosen.DecisionValue,
		Confidence: summary.ConsensusStrength,
		Reasoning:  reasoning,
		Evidence:   evidence,
	}
}

// highestConfidence returns the first decision carrying the maximum
// confidence.
func highestConfidence(decisions []*evaluation.AgentDecision) *evaluation.AgentDecision {
	chosen := decisions[0]
	for _, d := range decisions[1:] {
		if d.Confidence > chosen.Confidence {
			chosen = d
		}
	}
	return chosen
}

// collectEvidence gathers up to perAgent evidence items from each of the
// first maxAgents decisions, clamped to maxEvidence in total. A maxAgents of
// zero means every decision contributes.
func collectEvidence(decisions []*evaluation.AgentDecision, maxAgents, perAgent int) []string {
	evidence := make([]string, 0, maxEvidence)
	for i, d := range decisions {
		if maxAgents > 0 && i >= maxAgents {
			break
		}
		for j, item := range d.Evidence {
			if j >= perAgent {
				break
			}
			evidence = append(evidence, item)
		}
	}
	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence]
	}
	return evidence
}

// truncate clips s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
