package hitl

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/events"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
)

func splitResult() (*orchestrator.Result, *alignment.Summary) {
	decisions := []*evaluation.AgentDecision{
		{AgentName: "advocate", RoleType: "reviewer", DecisionValue: true, Confidence: 0.8, Rationale: "safe to merge"},
		{AgentName: "skeptic", RoleType: "reviewer", DecisionValue: false, Confidence: 0.7, Rationale: "untested edge cases"},
	}
	summary := &alignment.Summary{
		State:                  alignment.StateHardDisagreement,
		AlignmentScore:         0.3,
		DecisionAgreement:      false,
		ConfidenceSpread:       0.1,
		ConfidenceDistribution: map[string]float64{"advocate": 0.8, "skeptic": 0.7},
		AvgConfidence:          0.75,
		DissentingAgents:       []string{"skeptic"},
		DisagreementAreas:      []string{alignment.AreaPrimaryDecision},
		ConsensusStrength:      0.225,
		ResolutionRationale:    "Hard disagreement: agents disagree on primary decision",
	}
	result := &orchestrator.Result{
		TaskID:              "task-9",
		SynthesizedDecision: true,
		Confidence:          0.225,
		Reasoning:           "Boolean decision: true based on confidence-weighted majority (1/2 agents, weighted score: 0.80)",
		AgentDecisions:      decisions,
		AlignmentSummary:    summary,
		RequiresHumanReview: true,
		ReviewReason:        "Agents have fundamental disagreements requiring human review",
		RequestID:           "ab12cd34",
		ProcessingTimeMS:    120,
	}
	return result, summary
}

func TestBuildRequestNotRequired(t *testing.T) {
	result, summary := splitResult()
	result.RequiresHumanReview = false

	var emitted []string
	sink := events.SinkFunc(func(event string, _ map[string]interface{}) {
		emitted = append(emitted, event)
	})

	request := BuildRequest(result, summary, sink)
	assert.Nil(t, request)
	assert.Equal(t, []string{events.HITLNotRequired}, emitted)
}

func TestBuildRequestHardDisagreement(t *testing.T) {
	result, summary := splitResult()

	var emitted []string
	var payload map[string]interface{}
	sink := events.SinkFunc(func(event string, p map[string]interface{}) {
		emitted = append(emitted, event)
		payload = p
	})

	before := time.Now().UTC()
	request := BuildRequest(result, summary, sink)
	require.NotNil(t, request)

	assert.Regexp(t, regexp.MustCompile(`^hitl-task-9-[0-9a-f]{8}$`), request.RequestID)
	assert.Equal(t, "task-9", request.TaskID)
	assert.Equal(t, "hard_disagreement", request.AlignmentState)
	assert.Equal(t, ReasonHardDisagreement, request.EscalationReason)
	assert.Equal(t, 0.3, request.AlignmentScore)
	assert.Equal(t, "Agents fundamentally disagree on decision (1/2 dissenting, confidence spread: 0.10)", request.Summary)
	assert.Equal(t, []string{"skeptic"}, request.DissentingAgents)
	assert.Len(t, request.AgentDecisions, 2)

	assert.Equal(t, time.UTC, request.CreatedAt.Location())
	assert.Zero(t, request.CreatedAt.Nanosecond())
	assert.WithinDuration(t, before, request.CreatedAt, 2*time.Second)

	assert.Equal(t, map[string]interface{}{
		"confidence_spread":     0.1,
		"avg_confidence":        0.75,
		"disagreement_areas":    []string{alignment.AreaPrimaryDecision},
		"consensus_strength":    0.225,
		"resolution_rationale":  "Hard disagreement: agents disagree on primary decision",
		"agent_count":           2,
		"processing_time_ms":    int64(120),
		"evaluation_request_id": "ab12cd34",
	}, request.Metadata)

	assert.Equal(t, []string{events.HITLTriggered}, emitted)
	assert.Equal(t, request.RequestID, payload["request_id"])
	assert.Equal(t, "hard_disagreement", payload["escalation_reason"])
}

func TestBuildRequestReasonMapping(t *testing.T) {
	cases := []struct {
		name  string
		state alignment.State
		areas []string
		want  Reason
	}{
		{"hard", alignment.StateHardDisagreement, []string{alignment.AreaPrimaryDecision}, ReasonHardDisagreement},
		{"insufficient", alignment.StateInsufficientSignal, nil, ReasonLowConfidence},
		{"soft with evidence conflict", alignment.StateSoftDisagreement, []string{alignment.AreaEvidenceQuality}, ReasonInconsistentEvidence},
		{"soft without evidence conflict", alignment.StateSoftDisagreement, []string{alignment.AreaConfidenceLevels}, ReasonLowConfidence},
		{"full falls back to custom rule", alignment.StateFullAlignment, nil, ReasonCustomRule},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, summary := splitResult()
			summary.State = tc.state
			summary.DisagreementAreas = tc.areas

			request := BuildRequest(result, summary, nil)
			require.NotNil(t, request)
			assert.Equal(t, tc.want, request.EscalationReason)
		})
	}
}

func TestBuildRequestSummaryTemplates(t *testing.T) {
	result, summary := splitResult()

	summary.State = alignment.StateInsufficientSignal
	request := BuildRequest(result, summary, nil)
	require.NotNil(t, request)
	assert.Equal(t, "Agents lack sufficient confidence for reliable decision (avg confidence: 0.75, state: insufficient_signal)", request.Summary)

	summary.State = alignment.StateSoftDisagreement
	summary.DisagreementAreas = []string{alignment.AreaConfidenceLevels, alignment.AreaEvidenceQuality}
	request = BuildRequest(result, summary, nil)
	require.NotNil(t, request)
	assert.Equal(t, "Agents provide inconsistent evidence quality (disagreement areas: confidence_levels, evidence_quality)", request.Summary)

	summary.State = alignment.StateFullAlignment
	summary.AlignmentScore = 0.967
	request = BuildRequest(result, summary, nil)
	require.NotNil(t, request)
	assert.Equal(t, "Custom escalation rule triggered (alignment state: full_alignment, score: 0.97)", request.Summary)
}

func TestRequestJSONShape(t *testing.T) {
	result, summary := splitResult()
	request := BuildRequest(result, summary, nil)
	require.NotNil(t, request)

	raw, err := json.Marshal(request)
	require.NoError(t, err)

	wantOrder := []string{
		"request_id", "task_id", "alignment_state", "alignment_score", "escalation_reason",
		"summary", "agent_decisions", "dissenting_agents", "created_at", "metadata",
	}
	text := string(raw)
	last := -1
	for _, key := range wantOrder {
		idx := strings.Index(text, `"`+key+`"`)
		require.Greater(t, idx, last, "key %s out of order", key)
		last = idx
	}

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "hard_disagreement", decoded["escalation_reason"])

	createdAt, ok := decoded["created_at"].(string)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`), createdAt)
}

func TestValidateRequest(t *testing.T) {
	result, summary := splitResult()
	request := BuildRequest(result, summary, nil)
	require.NotNil(t, request)
	assert.True(t, ValidateRequest(request))

	assert.False(t, ValidateRequest(nil))

	bad := *request
	bad.AlignmentScore = 1.2
	assert.False(t, ValidateRequest(&bad))

	bad = *request
	bad.EscalationReason = Reason("panic")
	assert.False(t, ValidateRequest(&bad))

	bad = *request
	bad.AgentDecisions = nil
	assert.False(t, ValidateRequest(&bad))

	bad = *request
	bad.DissentingAgents = []string{"stranger"}
	assert.False(t, ValidateRequest(&bad))
}
