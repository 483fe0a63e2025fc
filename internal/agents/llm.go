// Package agents provides the built-in agent implementations: LLM-backed
// agents that prompt a chat-completions provider, MCP-backed agents that
// proxy evaluation to a tool on an MCP server, and static agents with fixed
// answers for rosters used in tests and pipeline dry runs. A YAML roster
// loader constructs a panel from configuration.
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/schema"
)

// ChatCompleter is the slice of the LLM client an agent needs.
type ChatCompleter interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ParseJSONResponse(content string, target interface{}) error
}

// LLMAgent evaluates tasks by prompting a chat-completions provider and
// parsing a structured JSON decision out of the reply. The prompt is a
// deterministic function of the role and the task, so identical inputs
// produce identical prompts.
type LLMAgent struct {
	role   evaluation.AgentRole
	client ChatCompleter
}

// NewLLMAgent creates an LLM-backed agent for the given role.
func NewLLMAgent(role evaluation.AgentRole, client ChatCompleter) (*LLMAgent, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("agent %s: LLM client is required", role.Name)
	}
	return &LLMAgent{role: role, client: client}, nil
}

// Role returns the agent's role definition.
func (a *LLMAgent) Role() evaluation.AgentRole { return a.role }

// Evaluate prompts the provider and parses its reply into a decision.
// Provider and parse failures are transient: a retry may reach a healthy
// replica or draw a well-formed sample.
func (a *LLMAgent) Evaluate(ctx context.Context, task *evaluation.Task) (*evaluation.AgentDecision, error) {
	start := time.Now()

	content, err := a.client.CompleteWithSystem(ctx, a.systemPrompt(), userPrompt(task))
	if err != nil {
		return nil, evaluation.TransientFailure(fmt.Errorf("llm completion: %w", err))
	}

	var body decisionBody
	if err := a.client.ParseJSONResponse(content, &body); err != nil {
		return nil, evaluation.TransientFailure(fmt.Errorf("llm response: %w", err))
	}

	decision := body.toDecision(a.role)
	decision.ProcessingTimeMS = time.Since(start).Milliseconds()
	return decision, nil
}

func (a *LLMAgent) systemPrompt() string {
	return fmt.Sprintf(
		"You are %q, evaluating tasks from the %s perspective.\n\nROLE INSTRUCTION:\n%s",
		a.role.Name, a.role.RoleType, a.role.Instruction,
	)
}

// userPrompt renders the task into the evaluation prompt. Context keys are
// emitted in sorted order so the prompt is stable across runs.
func userPrompt(task *evaluation.Task) string {
	var b strings.Builder

	b.WriteString("EVALUATION CRITERIA:\n")
	b.WriteString(task.Criteria)
	b.WriteString("\n\nCONTEXT:\n")
	b.WriteString(formatContext(task.Context))
	b.WriteString("\n\nDECISION SCHEMA:\n")
	b.WriteString(describeSchema(task.Schema))
	b.WriteString("\n\nRespond with JSON only, in this exact format:\n")
	b.WriteString(`{
    "decision": <your decision, conforming to the schema above>,
    "confidence": <number between 0 and 1>,
    "rationale": "<detailed reasoning>",
    "evidence": ["<evidence item>", ...]
}`)

	return b.String()
}

// formatContext renders task context generically: nested maps indent their
// entries, lists become dashed items, scalars print as key: value.
func formatContext(context map[string]interface{}) string {
	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sections := make([]string, 0, len(keys))
	for _, key := range keys {
		switch value := context[key].(type) {
		case map[string]interface{}:
			nestedKeys := make([]string, 0, len(value))
			for nested := range value {
				nestedKeys = append(nestedKeys, nested)
			}
			sort.Strings(nestedKeys)
			lines := make([]string, 0, len(nestedKeys))
			for _, nested := range nestedKeys {
				lines = append(lines, fmt.Sprintf("  %s: %v", nested, value[nested]))
			}
			sections = append(sections, fmt.Sprintf("%s:\n%s", key, strings.Join(lines, "\n")))
		case []interface{}:
			lines := make([]string, 0, len(value))
			for _, item := range value {
				lines = append(lines, fmt.Sprintf("  - %v", item))
			}
			sections = append(sections, fmt.Sprintf("%s:\n%s", key, strings.Join(lines, "\n")))
		default:
			sections = append(sections, fmt.Sprintf("%s: %v", key, value))
		}
	}

	return strings.Join(sections, "\n\n")
}

func describeSchema(s schema.Schema) string {
	spec := schema.SpecOf(s)
	switch spec.Type {
	case schema.TypeBoolean:
		return fmt.Sprintf("- Type: boolean\n- Answer true or false (true = %s, false = %s)",
			spec.PositiveLabel, spec.NegativeLabel)
	case schema.TypeCategorical:
		if spec.AllowMultiple {
			return fmt.Sprintf("- Type: categorical (multi-select)\n- Choose one or more of: %s",
				strings.Join(spec.Categories, ", "))
		}
		return fmt.Sprintf("- Type: categorical\n- Choose exactly one of: %s",
			strings.Join(spec.Categories, ", "))
	case schema.TypeScalar:
		return fmt.Sprintf("- Type: scalar\n- A number between %g and %g", spec.Min, spec.Max)
	case schema.TypeFreeForm:
		return fmt.Sprintf("- Type: freeform\n- Free text between %d and %d characters",
			spec.MinLen, spec.MaxLen)
	default:
		return fmt.Sprintf("- Type: %s", spec.Type)
	}
}

// decisionBody is the JSON shape agents are instructed to reply with. Both
// "rationale" and "reasoning" are accepted; models drift between the two.
type decisionBody struct {
	Decision   interface{} `json:"decision"`
	Confidence interface{} `json:"confidence"`
	Rationale  string      `json:"rationale"`
	Reasoning  string      `json:"reasoning"`
	Evidence   interface{} `json:"evidence"`
}

func (b decisionBody) toDecision(role evaluation.AgentRole) *evaluation.AgentDecision {
	rationale := b.Rationale
	if rationale == "" {
		rationale = b.Reasoning
	}

	evidence, ok := schema.AsStrings(b.Evidence)
	if !ok {
		if b.Evidence != nil {
			evidence = []string{fmt.Sprintf("%v", b.Evidence)}
		} else {
			evidence = nil
		}
	}

	return &evaluation.AgentDecision{
		AgentName:     role.Name,
		RoleType:      role.RoleType,
		DecisionValue: b.Decision,
		Confidence:    parseConfidence(b.Confidence),
		Rationale:     rationale,
		Evidence:      evidence,
	}
}

// parseConfidence clamps numeric confidence into [0, 1] and maps anything
// non-numeric to a neutral 0.5.
func parseConfidence(value interface{}) float64 {
	confidence, ok := schema.AsFloat(value)
	if !ok {
		return 0.5
	}
	return schema.ClampConfidence(confidence)
}
