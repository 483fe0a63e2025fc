// Package orchestrator runs one evaluation task across a fixed set of agents
// in parallel, retries transient agent failures, and assembles the alignment
// analysis and synthesised decision into a single Result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/resolution"
)

const (
	// DefaultMaxRetries is the per-agent attempt budget when none is configured.
	DefaultMaxRetries = 3

	// DefaultTimeout bounds a single agent attempt.
	DefaultTimeout = 30 * time.Second

	// backoffStep is the linear retry back-off unit: attempt n sleeps n*backoffStep.
	backoffStep = 500 * time.Millisecond
)

// Options configures an Orchestrator. The zero value is usable: default
// thresholds, default retry budget and timeout, unbounded parallelism,
// HITL disabled, no sink.
type Options struct {
	// Thresholds for the alignment analyser. Nil selects DefaultThresholds.
	Thresholds *alignment.Thresholds

	// Analyzer overrides the analyser built from Thresholds. Mostly for tests.
	Analyzer *alignment.Analyzer

	// Resolver overrides the default disagreement resolver.
	Resolver *resolution.Resolver

	// MaxRetries is the total attempt budget per agent, minimum 1.
	MaxRetries int

	// Timeout is the deadline applied to each individual agent attempt.
	Timeout time.Duration

	// MaxParallel bounds how many agents run concurrently. Zero or negative
	// runs all agents at once.
	MaxParallel int

	// EnableHITL gates requires_human_review on assembled results.
	EnableHITL bool

	// Sink receives orchestration events. Nil discards them.
	Sink events.Sink

	// Logger for orchestration diagnostics. Defaults to a disabled logger.
	Logger *zerolog.Logger
}

// Orchestrator fans an evaluation task out to its registered agents and joins
// their decisions into a Result. Instances hold only immutable configuration
// after construction and are safe for concurrent use; no state is shared
// between evaluations.
type Orchestrator struct {
	agents      []evaluation.Agent
	analyzer    *alignment.Analyzer
	resolver    *resolution.Resolver
	maxRetries  int
	timeout     time.Duration
	maxParallel int
	enableHITL  bool
	sink        events.Sink
	log         zerolog.Logger
}

// New builds an orchestrator over a non-empty set of agents. Agent names must
// be unique; duplicates would collapse entries in the analyser's
// confidence_distribution and mask dissent.
func New(agents []evaluation.Agent, opts Options) (*Orchestrator, error) {
	if len(agents) == 0 {
		return nil, errors.New("orchestrator requires at least one agent")
	}
	seen := make(map[string]struct{}, len(agents))
	for _, agent := range agents {
		role := agent.Role()
		if err := role.Validate(); err != nil {
			return nil, fmt.Errorf("invalid agent role: %w", err)
		}
		if _, dup := seen[role.Name]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", role.Name)
		}
		seen[role.Name] = struct{}{}
	}

	analyzer := opts.Analyzer
	if analyzer == nil {
		thresholds := alignment.DefaultThresholds()
		if opts.Thresholds != nil {
			thresholds = *opts.Thresholds
		}
		if err := thresholds.Validate(); err != nil {
			return nil, fmt.Errorf("invalid thresholds: %w", err)
		}
		analyzer = alignment.NewAnalyzer(thresholds)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = resolution.NewResolver()
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be at least 1, got %d", maxRetries)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Orchestrator{
		agents:      agents,
		analyzer:    analyzer,
		resolver:    resolver,
		maxRetries:  maxRetries,
		timeout:     timeout,
		maxParallel: opts.MaxParallel,
		enableHITL:  opts.EnableHITL,
		sink:        opts.Sink,
		log:         logger,
	}, nil
}

// Agents returns the registered agents in registration order.
func (o *Orchestrator) Agents() []evaluation.Agent { return o.agents }

// HITLEnabled reports whether results from this orchestrator may request
// human review.
func (o *Orchestrator) HITLEnabled() bool { return o.enableHITL }

// Evaluate runs the task across all registered agents and returns the
// assembled result. Per-agent failures are tolerated as long as at least one
// agent succeeds; when every agent fails the error is an
// *evaluation.AllAgentsFailedError carrying each agent's final reason.
// Agent decisions in the result follow registration order, never completion
// order.
func (o *Orchestrator) Evaluate(ctx context.Context, task *evaluation.Task) (*Result, error) {
	requestID := uuid.NewString()[:8]
	start := time.Now()

	registered := len(o.agents)
	events.Emit(o.sink, events.EvaluationStarted, map[string]interface{}{
		"task_id":     taskID(task),
		"task_type":   taskType(task),
		"agent_count": registered,
		"request_id":  requestID,
	})

	if err := task.Validate(); err != nil {
		o.emitFailure(task, err, start, requestID)
		return nil, err
	}

	decisions, failures := o.runAgents(ctx, task, requestID)

	if len(decisions) == 0 {
		err := &evaluation.AllAgentsFailedError{TaskID: task.TaskID, Failures: failures}
		o.emitFailure(task, err, start, requestID)
		return nil, err
	}
	if len(failures) > 0 {
		events.Emit(o.sink, events.PartialAgentFailure, map[string]interface{}{
			"task_id":           task.TaskID,
			"successful_agents": len(decisions),
			"failed_agents":     len(failures),
			"failures":          failures,
			"request_id":        requestID,
		})
	}

	summary, err := o.analyzer.Analyze(task, decisions, o.sink)
	if err != nil {
		o.emitFailure(task, err, start, requestID)
		return nil, fmt.Errorf("alignment analysis: %w", err)
	}

	synthesis, err := o.resolver.Resolve(task, decisions, summary, o.sink)
	if err != nil {
		o.emitFailure(task, err, start, requestID)
		return nil, fmt.Errorf("disagreement resolution: %w", err)
	}

	needsReview, reviewReason := summary.RequiresHumanReview()

	successful := 0
	for _, d := range decisions {
		if d.Confidence > 0 {
			successful++
		}
	}

	result := &Result{
		TaskID:              task.TaskID,
		SynthesizedDecision: synthesis.Decision,
		Confidence:          synthesis.Confidence,
		Reasoning:           synthesis.Reasoning,
		Evidence:            synthesis.Evidence,
		AgentDecisions:      decisions,
		AlignmentSummary:    summary,
		RequiresHumanReview: needsReview && o.enableHITL,
		ReviewReason:        reviewReason,
		RequestID:           requestID,
		ProcessingTimeMS:    time.Since(start).Milliseconds(),
		Metadata: map[string]interface{}{
			"agent_count":       len(decisions),
			"successful_agents": successful,
			"alignment_state":   string(summary.State),
		},
	}

	events.Emit(o.sink, events.EvaluationCompleted, map[string]interface{}{
		"task_id":               result.TaskID,
		"synthesized_decision":  fmt.Sprintf("%v", result.SynthesizedDecision),
		"confidence":            result.Confidence,
		"alignment_state":       string(summary.State),
		"requires_human_review": result.RequiresHumanReview,
		"agent_count":           len(decisions),
		"processing_time_ms":    result.ProcessingTimeMS,
		"request_id":            requestID,
	})
	o.log.Info().
		Str("task_id", result.TaskID).
		Str("request_id", requestID).
		Str("alignment_state", string(summary.State)).
		Float64("confidence", result.Confidence).
		Bool("requires_human_review", result.RequiresHumanReview).
		Int64("processing_time_ms", result.ProcessingTimeMS).
		Msg("Evaluation completed")

	return result, nil
}

// runAgents fans the task out to every agent and joins the outcomes. The
// returned decisions preserve registration order regardless of which agent
// finished first.
func (o *Orchestrator) runAgents(ctx context.Context, task *evaluation.Task, requestID string) ([]*evaluation.AgentDecision, []evaluation.AgentFailure) {
	type outcome struct {
		decision *evaluation.AgentDecision
		err      error
	}
	outcomes := make([]outcome, len(o.agents))

	var sem *semaphore.Weighted
	if o.maxParallel > 0 {
		sem = semaphore.NewWeighted(int64(o.maxParallel))
	}

	var wg sync.WaitGroup
	for i, agent := range o.agents {
		wg.Add(1)
		go func(i int, agent evaluation.Agent) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					outcomes[i].err = evaluation.TransientFailure(err)
					return
				}
				defer sem.Release(1)
			}
			outcomes[i].decision, outcomes[i].err = o.runAgentWithRetry(ctx, agent, task, requestID)
		}(i, agent)
	}
	wg.Wait()

	decisions := make([]*evaluation.AgentDecision, 0, len(o.agents))
	var failures []evaluation.AgentFailure
	for i, agent := range o.agents {
		role := agent.Role()
		if err := outcomes[i].err; err != nil {
			events.Emit(o.sink, events.AgentExecutionFailed, map[string]interface{}{
				"agent_name": role.Name,
				"role_type":  role.RoleType,
				"task_id":    task.TaskID,
				"error_type": evaluation.FailureKindOf(err),
				"error":      truncateErr(err, 200),
				"request_id": requestID,
			})
			o.log.Error().
				Err(err).
				Str("agent_name", role.Name).
				Str("task_id", task.TaskID).
				Str("request_id", requestID).
				Msg("Agent execution failed")
			failures = append(failures, evaluation.AgentFailure{
				AgentName: role.Name,
				Kind:      evaluation.FailureKindOf(err),
				Reason:    truncateErr(err, 200),
			})
			continue
		}
		decisions = append(decisions, outcomes[i].decision)
	}
	return decisions, failures
}

// runAgentWithRetry drives one agent through its attempt budget. Only
// transient failures are retried; the back-off between attempt n and n+1 is
// n*backoffStep with no jitter, so schedules are reproducible.
func (o *Orchestrator) runAgentWithRetry(ctx context.Context, agent evaluation.Agent, task *evaluation.Task, requestID string) (*evaluation.AgentDecision, error) {
	role := agent.Role()
	events.Emit(o.sink, events.ExecutingAgent, map[string]interface{}{
		"agent_name": role.Name,
		"role_type":  role.RoleType,
		"task_id":    task.TaskID,
		"request_id": requestID,
	})

	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		decision, err := o.attempt(ctx, agent, task)
		if err == nil {
			return decision, nil
		}
		lastErr = err
		if !evaluation.IsTransient(err) {
			return nil, err
		}
		if attempt == o.maxRetries {
			break
		}
		events.Emit(o.sink, events.AgentRetry, map[string]interface{}{
			"agent_name":  role.Name,
			"attempt":     attempt,
			"max_retries": o.maxRetries,
			"error":       truncateErr(err, 100),
		})
		select {
		case <-ctx.Done():
			return nil, evaluation.TransientFailure(ctx.Err())
		case <-time.After(time.Duration(attempt) * backoffStep):
		}
	}
	return nil, fmt.Errorf("agent %s failed after %d attempts: %w", role.Name, o.maxRetries, lastErr)
}

// attempt executes a single agent call under the per-attempt deadline and
// validates the returned decision against the task schema. A deadline hit is
// transient; a decision the schema rejects is permanent for this agent.
func (o *Orchestrator) attempt(ctx context.Context, agent evaluation.Agent, task *evaluation.Task) (*evaluation.AgentDecision, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	decision, err := agent.Evaluate(attemptCtx, task)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !evaluation.IsPermanent(err) {
			return nil, evaluation.TransientFailure(err)
		}
		return nil, err
	}
	if decision == nil {
		return nil, evaluation.PermanentFailure(fmt.Errorf("agent %s returned no decision", agent.Role().Name))
	}
	decision.Normalize()
	if err := decision.Validate(task.Schema); err != nil {
		return nil, evaluation.PermanentFailure(err)
	}
	return decision, nil
}

func (o *Orchestrator) emitFailure(task *evaluation.Task, err error, start time.Time, requestID string) {
	elapsed := time.Since(start).Milliseconds()
	events.Emit(o.sink, events.EvaluationFailed, map[string]interface{}{
		"task_id":            taskID(task),
		"task_type":          taskType(task),
		"error_type":         failureType(err),
		"error":              truncateErr(err, 200),
		"processing_time_ms": elapsed,
		"request_id":         requestID,
	})
	o.log.Error().
		Err(err).
		Str("task_id", taskID(task)).
		Str("request_id", requestID).
		Int64("processing_time_ms", elapsed).
		Msg("Evaluation failed")
}

func failureType(err error) string {
	var allFailed *evaluation.AllAgentsFailedError
	switch {
	case errors.As(err, &allFailed):
		return "all_agents_failed"
	case errors.Is(err, evaluation.ErrInvalidTask):
		return "invalid_task"
	case errors.Is(err, alignment.ErrInsufficientAgents):
		return "insufficient_agents"
	default:
		return "internal"
	}
}

// truncateErr clips an error message to at most n runes so payloads stay
// valid UTF-8.
func truncateErr(err error, n int) string {
	msg := err.Error()
	runes := []rune(msg)
	if len(runes) <= n {
		return msg
	}
	return string(runes[:n])
}

func taskID(task *evaluation.Task) string {
	if task == nil {
		return ""
	}
	return task.TaskID
}

func taskType(task *evaluation.Task) string {
	if task == nil {
		return ""
	}
	return task.TaskType
}
