package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/schema"
)

type fakeCompleter struct {
	system string
	user   string
	reply  string
	err    error
}

func (f *fakeCompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.system = systemPrompt
	f.user = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) ParseJSONResponse(content string, target interface{}) error {
	return json.Unmarshal([]byte(content), target)
}

func advocateRole() evaluation.AgentRole {
	return evaluation.AgentRole{
		Name:        "advocate",
		RoleType:    "advocate",
		Instruction: "Argue the strongest case for acceptance.",
	}
}

func boolTask(t *testing.T) *evaluation.Task {
	t.Helper()
	boolean, err := schema.NewBoolean("approve", "reject")
	require.NoError(t, err)
	return &evaluation.Task{
		TaskID:   "task-7",
		TaskType: "code_review",
		Schema:   boolean,
		Context: map[string]interface{}{
			"diff":   "func add(a, b int) int { return a + b }",
			"files":  []interface{}{"math.go", "math_test.go"},
			"author": map[string]interface{}{"name": "dev", "team": "core"},
		},
		Criteria: "Is this change safe to merge?",
	}
}

func TestLLMAgentEvaluate(t *testing.T) {
	completer := &fakeCompleter{
		reply: `{"decision": true, "confidence": 0.85, "rationale": "Change is covered by tests", "evidence": ["math_test.go exercises add"]}`,
	}
	agent, err := NewLLMAgent(advocateRole(), completer)
	require.NoError(t, err)

	decision, err := agent.Evaluate(context.Background(), boolTask(t))
	require.NoError(t, err)

	assert.Equal(t, "advocate", decision.AgentName)
	assert.Equal(t, "advocate", decision.RoleType)
	assert.Equal(t, true, decision.DecisionValue)
	assert.InDelta(t, 0.85, decision.Confidence, 1e-9)
	assert.Equal(t, "Change is covered by tests", decision.Rationale)
	assert.Equal(t, []string{"math_test.go exercises add"}, decision.Evidence)

	assert.Contains(t, completer.system, `"advocate"`)
	assert.Contains(t, completer.system, "Argue the strongest case for acceptance.")
	assert.Contains(t, completer.user, "Is this change safe to merge?")
	assert.Contains(t, completer.user, "Answer true or false (true = approve, false = reject)")
	assert.Contains(t, completer.user, `"rationale"`)
}

func TestUserPromptIsDeterministic(t *testing.T) {
	task := boolTask(t)
	first := userPrompt(task)
	second := userPrompt(task)
	assert.Equal(t, first, second)

	// Context keys render sorted regardless of map iteration order.
	authorAt := strings.Index(first, "author:")
	diffAt := strings.Index(first, "diff:")
	filesAt := strings.Index(first, "files:")
	require.NotEqual(t, -1, authorAt)
	assert.Less(t, authorAt, diffAt)
	assert.Less(t, diffAt, filesAt)

	assert.Contains(t, first, "  name: dev")
	assert.Contains(t, first, "  - math.go")
}

func TestLLMAgentConfidenceHandling(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  float64
	}{
		{
			name:  "in range",
			reply: `{"decision": true, "confidence": 0.3, "rationale": "r"}`,
			want:  0.3,
		},
		{
			name:  "above range clamps",
			reply: `{"decision": true, "confidence": 1.7, "rationale": "r"}`,
			want:  1.0,
		},
		{
			name:  "below range clamps",
			reply: `{"decision": true, "confidence": -0.2, "rationale": "r"}`,
			want:  0.0,
		},
		{
			name:  "non-numeric defaults to neutral",
			reply: `{"decision": true, "confidence": "high", "rationale": "r"}`,
			want:  0.5,
		},
		{
			name:  "missing defaults to neutral",
			reply: `{"decision": true, "rationale": "r"}`,
			want:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, err := NewLLMAgent(advocateRole(), &fakeCompleter{reply: tt.reply})
			require.NoError(t, err)

			decision, err := agent.Evaluate(context.Background(), boolTask(t))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, decision.Confidence, 1e-9)
		})
	}
}

func TestLLMAgentAcceptsReasoningKey(t *testing.T) {
	agent, err := NewLLMAgent(advocateRole(), &fakeCompleter{
		reply: `{"decision": false, "confidence": 0.6, "reasoning": "Risk outweighs benefit"}`,
	})
	require.NoError(t, err)

	decision, err := agent.Evaluate(context.Background(), boolTask(t))
	require.NoError(t, err)
	assert.Equal(t, "Risk outweighs benefit", decision.Rationale)
}

func TestLLMAgentProviderFailureIsTransient(t *testing.T) {
	agent, err := NewLLMAgent(advocateRole(), &fakeCompleter{err: errors.New("gateway unavailable")})
	require.NoError(t, err)

	_, err = agent.Evaluate(context.Background(), boolTask(t))
	require.Error(t, err)
	assert.True(t, evaluation.IsTransient(err))
}

func TestLLMAgentMalformedReplyIsTransient(t *testing.T) {
	agent, err := NewLLMAgent(advocateRole(), &fakeCompleter{reply: "I refuse to answer in JSON."})
	require.NoError(t, err)

	_, err = agent.Evaluate(context.Background(), boolTask(t))
	require.Error(t, err)
	assert.True(t, evaluation.IsTransient(err))
}

func TestNewLLMAgentValidation(t *testing.T) {
	_, err := NewLLMAgent(advocateRole(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM client is required")

	bad := advocateRole()
	bad.Instruction = ""
	_, err = NewLLMAgent(bad, &fakeCompleter{})
	require.Error(t, err)
}

func TestDescribeSchema(t *testing.T) {
	boolean, err := schema.NewBoolean("", "")
	require.NoError(t, err)
	single, err := schema.NewCategorical([]string{"low", "medium", "high"}, false)
	require.NoError(t, err)
	multi, err := schema.NewCategorical([]string{"a", "b"}, true)
	require.NoError(t, err)
	scalar, err := schema.NewScalar(1, 10)
	require.NoError(t, err)
	freeform, err := schema.NewFreeForm(10, 500)
	require.NoError(t, err)

	assert.Contains(t, describeSchema(boolean), "true = positive, false = negative")
	assert.Contains(t, describeSchema(single), "Choose exactly one of: low, medium, high")
	assert.Contains(t, describeSchema(multi), "Choose one or more of: a, b")
	assert.Contains(t, describeSchema(scalar), "A number between 1 and 10")
	assert.Contains(t, describeSchema(freeform), "between 10 and 500 characters")
}
