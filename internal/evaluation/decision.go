package evaluation

import (
	"fmt"
	"math"
	"strings"

	"github.com/ajitpratap0/agentalign/internal/schema"
)

// AgentDecision is the structured output of one agent's evaluation. The
// decision value is opaque to the pipeline; its admissibility is defined
// entirely by the task schema.
type AgentDecision struct {
	AgentName        string                 `json:"agent_name"`
	RoleType         string                 `json:"role_type"`
	DecisionValue    interface{}            `json:"decision_value"`
	Confidence       float64                `json:"confidence"`
	Rationale        string                 `json:"rationale"`
	Evidence         []string               `json:"evidence"`
	ProcessingTimeMS int64                  `json:"processing_time_ms,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Normalize trims identity and rationale fields and drops blank evidence
// entries, mirroring what well-behaved agents should already produce.
func (d *AgentDecision) Normalize() {
	d.AgentName = strings.TrimSpace(d.AgentName)
	d.RoleType = strings.TrimSpace(d.RoleType)
	d.Rationale = strings.TrimSpace(d.Rationale)
	if len(d.Evidence) > 0 {
		kept := d.Evidence[:0]
		for _, item := range d.Evidence {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		d.Evidence = kept
	}
}

// Validate checks the decision against structural rules and, when a schema is
// given, against the task's decision shape. Out-of-range confidence is
// invalid here; clamping is the business of whoever parses raw model output.
func (d *AgentDecision) Validate(s schema.Schema) error {
	if d == nil {
		return fmt.Errorf("decision is nil")
	}
	if strings.TrimSpace(d.AgentName) == "" {
		return fmt.Errorf("agent_name cannot be empty")
	}
	if strings.TrimSpace(d.RoleType) == "" {
		return fmt.Errorf("agent %s: role_type cannot be empty", d.AgentName)
	}
	if strings.TrimSpace(d.Rationale) == "" {
		return fmt.Errorf("agent %s: rationale cannot be empty", d.AgentName)
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("agent %s: confidence %v outside [0, 1]", d.AgentName, d.Confidence)
	}
	if d.ProcessingTimeMS < 0 {
		return fmt.Errorf("agent %s: processing_time_ms cannot be negative", d.AgentName)
	}
	for i, item := range d.Evidence {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("agent %s: evidence[%d] is blank", d.AgentName, i)
		}
	}
	if s != nil && !s.Validate(d.DecisionValue) {
		return fmt.Errorf("agent %s: decision value %q does not satisfy %s schema",
			d.AgentName, schema.DecisionString(d.DecisionValue), s.Type())
	}
	return nil
}
