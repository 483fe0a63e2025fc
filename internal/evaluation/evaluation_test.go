package evaluation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/agentalign/internal/schema"
)

func mustBoolean(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.NewBoolean("", "")
	require.NoError(t, err)
	return s
}

func validTask(t *testing.T) *Task {
	t.Helper()
	return &Task{
		TaskID:   "task-001",
		TaskType: "compatibility_check",
		Schema:   mustBoolean(t),
		Context:  map[string]interface{}{"candidate": "v2 rollout"},
		Criteria: "Decide whether the change is safe to ship",
	}
}

func TestTaskValidate(t *testing.T) {
	require.NoError(t, validTask(t).Validate())

	tests := []struct {
		name   string
		mutate func(*Task)
	}{
		{"empty task_id", func(task *Task) { task.TaskID = "  " }},
		{"empty task_type", func(task *Task) { task.TaskType = "" }},
		{"empty criteria", func(task *Task) { task.Criteria = "" }},
		{"empty context", func(task *Task) { task.Context = nil }},
		{"missing schema", func(task *Task) { task.Schema = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := validTask(t)
			tt.mutate(task)
			err := task.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTask)
		})
	}

	var nilTask *Task
	assert.ErrorIs(t, nilTask.Validate(), ErrInvalidTask)
}

func TestTaskSpecRoundTrip(t *testing.T) {
	task := validTask(t)
	spec := SpecOfTask(task)
	assert.Equal(t, "task-001", spec.TaskID)
	assert.Equal(t, schema.TypeBoolean, spec.Schema.Type)

	rebuilt, err := spec.Build()
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, rebuilt.TaskID)
	assert.Equal(t, task.Criteria, rebuilt.Criteria)
	assert.Equal(t, schema.TypeBoolean, rebuilt.Schema.Type())
}

func TestTaskSpecBuildRejectsBadSchema(t *testing.T) {
	spec := TaskSpec{
		TaskID:   "task-002",
		TaskType: "risk_rating",
		Schema:   schema.Spec{Type: schema.TypeScalar, Min: 1, Max: 1},
		Context:  map[string]interface{}{"subject": "x"},
		Criteria: "rate it",
	}
	_, err := spec.Build()
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestAgentRoleValidate(t *testing.T) {
	valid := AgentRole{Name: "risk-advocate_1", RoleType: "advocate", Instruction: "argue for approval"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		role AgentRole
	}{
		{"empty name", AgentRole{RoleType: "advocate", Instruction: "x"}},
		{"name with spaces", AgentRole{Name: "bad name", RoleType: "advocate", Instruction: "x"}},
		{"name with dot", AgentRole{Name: "agent.one", RoleType: "advocate", Instruction: "x"}},
		{"empty role_type", AgentRole{Name: "agent", Instruction: "x"}},
		{"empty instruction", AgentRole{Name: "agent", RoleType: "skeptic"}},
		{"temperature too high", AgentRole{Name: "agent", RoleType: "judge", Instruction: "x", Temperature: 2.5}},
		{"negative max_tokens", AgentRole{Name: "agent", RoleType: "judge", Instruction: "x", MaxTokens: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.role.Validate())
		})
	}
}

func TestAgentDecisionNormalize(t *testing.T) {
	d := &AgentDecision{
		AgentName: "  advocate ",
		RoleType:  " advocate\n",
		Rationale: "  solid reasoning  ",
		Evidence:  []string{" first ", "", "  ", "second"},
	}
	d.Normalize()

	assert.Equal(t, "advocate", d.AgentName)
	assert.Equal(t, "advocate", d.RoleType)
	assert.Equal(t, "solid reasoning", d.Rationale)
	assert.Equal(t, []string{"first", "second"}, d.Evidence)
}

func TestAgentDecisionValidate(t *testing.T) {
	boolSchema := mustBoolean(t)

	valid := func() *AgentDecision {
		return &AgentDecision{
			AgentName:     "advocate",
			RoleType:      "advocate",
			DecisionValue: true,
			Confidence:    0.9,
			Rationale:     "criteria satisfied",
			Evidence:      []string{"metric within bounds"},
		}
	}
	require.NoError(t, valid().Validate(boolSchema))

	tests := []struct {
		name   string
		mutate func(*AgentDecision)
	}{
		{"empty agent_name", func(d *AgentDecision) { d.AgentName = "" }},
		{"empty role_type", func(d *AgentDecision) { d.RoleType = " " }},
		{"empty rationale", func(d *AgentDecision) { d.Rationale = "" }},
		{"confidence above 1", func(d *AgentDecision) { d.Confidence = 1.2 }},
		{"confidence below 0", func(d *AgentDecision) { d.Confidence = -0.1 }},
		{"negative processing time", func(d *AgentDecision) { d.ProcessingTimeMS = -5 }},
		{"blank evidence", func(d *AgentDecision) { d.Evidence = []string{"ok", " "} }},
		{"value fails schema", func(d *AgentDecision) { d.DecisionValue = "yes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			assert.Error(t, d.Validate(boolSchema))
		})
	}

	var nilDecision *AgentDecision
	assert.Error(t, nilDecision.Validate(boolSchema))
}

func TestFailureClassification(t *testing.T) {
	base := errors.New("connection reset")

	transient := TransientFailure(base)
	permanent := PermanentFailure(base)

	assert.True(t, IsTransient(transient))
	assert.False(t, IsPermanent(transient))
	assert.True(t, IsPermanent(permanent))
	assert.False(t, IsTransient(permanent))
	assert.ErrorIs(t, transient, base)

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("agent advocate failed after 3 attempts: %w", transient)
	assert.True(t, IsTransient(wrapped))

	assert.False(t, IsTransient(base))
	assert.False(t, IsPermanent(base))
}

func TestFailureKindOf(t *testing.T) {
	assert.Equal(t, "transient", FailureKindOf(TransientFailure(errors.New("x"))))
	assert.Equal(t, "permanent", FailureKindOf(PermanentFailure(errors.New("x"))))
	assert.Equal(t, "invalid_task", FailureKindOf(fmt.Errorf("%w: missing context", ErrInvalidTask)))
	assert.Equal(t, "unknown", FailureKindOf(errors.New("x")))
	assert.Equal(t, "", FailureKindOf(nil))
}
