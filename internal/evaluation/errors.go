package evaluation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTask marks task-level validation failures. Invalid tasks are
// never retried.
var ErrInvalidTask = errors.New("invalid evaluation task")

// FailureKind classifies an agent failure for the retry policy.
type FailureKind string

const (
	// FailureTransient failures are retried up to the orchestrator's budget.
	FailureTransient FailureKind = "transient"
	// FailurePermanent failures exclude the agent from the current evaluation.
	FailurePermanent FailureKind = "permanent"
)

// AgentError wraps an agent failure with its retry classification.
type AgentError struct {
	Kind FailureKind
	Err  error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s agent failure: %v", e.Kind, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// TransientFailure marks err as retryable.
func TransientFailure(err error) error {
	return &AgentError{Kind: FailureTransient, Err: err}
}

// PermanentFailure marks err as terminal for the current evaluation.
func PermanentFailure(err error) error {
	return &AgentError{Kind: FailurePermanent, Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr) && agentErr.Kind == FailureTransient
}

// IsPermanent reports whether err is classified as terminal.
func IsPermanent(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr) && agentErr.Kind == FailurePermanent
}

// FailureKindOf renders the classification of err for event payloads.
func FailureKindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTask):
		return "invalid_task"
	case IsTransient(err):
		return string(FailureTransient)
	case IsPermanent(err):
		return string(FailurePermanent)
	default:
		return "unknown"
	}
}

// AgentFailure records one agent's final error after its retry budget was
// spent.
type AgentFailure struct {
	AgentName string `json:"agent_name"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// AllAgentsFailedError reports that no agent produced a usable decision. It
// carries the final error of every agent so callers can see each failure
// reason without replaying the evaluation.
type AllAgentsFailedError struct {
	TaskID   string
	Failures []AgentFailure
}

func (e *AllAgentsFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s): %s", f.AgentName, f.Kind, f.Reason)
	}
	return fmt.Sprintf("task %s: all agents failed to execute: %s", e.TaskID, strings.Join(parts, "; "))
}
