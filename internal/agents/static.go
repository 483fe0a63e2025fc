package agents

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
)

// StaticAgent always answers with a fixed decision. Rosters use it for
// pipeline dry runs and as a deterministic panel member in tests.
type StaticAgent struct {
	role       evaluation.AgentRole
	decision   interface{}
	confidence float64
	rationale  string
	evidence   []string
}

// NewStaticAgent creates an agent with a canned decision.
func NewStaticAgent(role evaluation.AgentRole, decision interface{}, confidence float64, rationale string, evidence []string) (*StaticAgent, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, fmt.Errorf("agent %s: decision is required", role.Name)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("agent %s: confidence %v outside [0, 1]", role.Name, confidence)
	}
	if rationale == "" {
		return nil, fmt.Errorf("agent %s: rationale is required", role.Name)
	}
	return &StaticAgent{
		role:       role,
		decision:   decision,
		confidence: confidence,
		rationale:  rationale,
		evidence:   evidence,
	}, nil
}

// Role returns the agent's role definition.
func (a *StaticAgent) Role() evaluation.AgentRole { return a.role }

// Evaluate returns a fresh copy of the canned decision.
func (a *StaticAgent) Evaluate(ctx context.Context, task *evaluation.Task) (*evaluation.AgentDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, evaluation.TransientFailure(err)
	}
	evidence := make([]string, len(a.evidence))
	copy(evidence, a.evidence)
	return &evaluation.AgentDecision{
		AgentName:     a.role.Name,
		RoleType:      a.role.RoleType,
		DecisionValue: a.decision,
		Confidence:    a.confidence,
		Rationale:     a.rationale,
		Evidence:      evidence,
	}, nil
}
