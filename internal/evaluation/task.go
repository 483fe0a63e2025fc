// Package evaluation defines the core data model of the multi-agent
// evaluation pipeline: the task handed to agents, the decision each agent
// returns, the agent contract itself, and the failure taxonomy the
// orchestrator retries against. Everything here is domain-agnostic; the
// meaning of a decision lives entirely in its schema.
package evaluation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ajitpratap0/agentalign/internal/schema"
)

// Task describes one evaluation to run across all registered agents.
// Context is opaque to the pipeline and passed through to agents verbatim.
type Task struct {
	TaskID   string
	TaskType string
	Schema   schema.Schema
	Context  map[string]interface{}
	Criteria string
	Metadata map[string]interface{}
}

// Validate reports whether the task carries everything an evaluation needs.
// Failures wrap ErrInvalidTask.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}
	if strings.TrimSpace(t.TaskID) == "" {
		return fmt.Errorf("%w: task_id cannot be empty", ErrInvalidTask)
	}
	if strings.TrimSpace(t.TaskType) == "" {
		return fmt.Errorf("%w: task_type cannot be empty", ErrInvalidTask)
	}
	if strings.TrimSpace(t.Criteria) == "" {
		return fmt.Errorf("%w: evaluation criteria cannot be empty", ErrInvalidTask)
	}
	if len(t.Context) == 0 {
		return fmt.Errorf("%w: context cannot be empty", ErrInvalidTask)
	}
	if t.Schema == nil {
		return fmt.Errorf("%w: decision schema is required", ErrInvalidTask)
	}
	return nil
}

// TaskSpec is the wire form of a Task, used on the message bus and the REST
// surface where the decision schema travels as a tagged description.
type TaskSpec struct {
	TaskID   string                 `json:"task_id"`
	TaskType string                 `json:"task_type"`
	Schema   schema.Spec            `json:"decision_schema"`
	Context  map[string]interface{} `json:"context"`
	Criteria string                 `json:"evaluation_criteria"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Build constructs the in-memory Task the spec describes and validates it.
func (s TaskSpec) Build() (*Task, error) {
	built, err := s.Schema.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	task := &Task{
		TaskID:   s.TaskID,
		TaskType: s.TaskType,
		Schema:   built,
		Context:  s.Context,
		Criteria: s.Criteria,
		Metadata: s.Metadata,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// SpecOfTask produces the wire form of a task.
func SpecOfTask(t *Task) TaskSpec {
	return TaskSpec{
		TaskID:   t.TaskID,
		TaskType: t.TaskType,
		Schema:   schema.SpecOf(t.Schema),
		Context:  t.Context,
		Criteria: t.Criteria,
		Metadata: t.Metadata,
	}
}

var roleNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// AgentRole defines the perspective an agent takes on evaluations: a unique
// name, a role type (advocate, skeptic, judge, ...), and the instruction that
// shapes its prompt. MaxTokens and Temperature are tuning hints for LLM-backed
// agents; zero values defer to provider defaults.
type AgentRole struct {
	Name        string                 `json:"name" yaml:"name"`
	RoleType    string                 `json:"role_type" yaml:"role_type"`
	Instruction string                 `json:"instruction" yaml:"instruction"`
	MaxTokens   int                    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the role definition.
func (r AgentRole) Validate() error {
	if !roleNamePattern.MatchString(r.Name) {
		return fmt.Errorf("agent name %q must contain only alphanumerics, underscores, and hyphens", r.Name)
	}
	if strings.TrimSpace(r.RoleType) == "" {
		return fmt.Errorf("agent %s: role_type cannot be empty", r.Name)
	}
	if strings.TrimSpace(r.Instruction) == "" {
		return fmt.Errorf("agent %s: instruction cannot be empty", r.Name)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("agent %s: max_tokens cannot be negative", r.Name)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("agent %s: temperature %v outside [0, 2]", r.Name, r.Temperature)
	}
	return nil
}
