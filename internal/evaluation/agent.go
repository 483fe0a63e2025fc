package evaluation

import "context"

// Agent is anything that can evaluate a task from a fixed perspective. The
// pipeline never inspects how an agent computes its decision; an agent may be
// LLM-backed, tool-backed, rule-based, or a test stub.
//
// Implementations must be safe for concurrent use and must not mutate the
// task. Evaluate should honour context cancellation; the orchestrator imposes
// a deadline per attempt. Failures should be classified with
// TransientFailure or PermanentFailure so the retry policy can distinguish
// them; unclassified errors are treated as terminal.
type Agent interface {
	Role() AgentRole
	Evaluate(ctx context.Context, task *Task) (*AgentDecision, error)
}
