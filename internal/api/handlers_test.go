package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/agentalign/internal/agents"
	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func staticAgent(t *testing.T, name string, decision interface{}, confidence float64) evaluation.Agent {
	t.Helper()
	agent, err := agents.NewStaticAgent(evaluation.AgentRole{
		Name:        name,
		RoleType:    "reviewer",
		Instruction: "review the change",
	}, decision, confidence, "change matches the review criteria", []string{"tests pass"})
	require.NoError(t, err)
	return agent
}

// alignedOrchestrator agrees unanimously, so results never escalate.
func alignedOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	orch, err := orchestrator.New([]evaluation.Agent{
		staticAgent(t, "advocate", true, 0.9),
		staticAgent(t, "skeptic", true, 0.85),
	}, orchestrator.Options{EnableHITL: true})
	require.NoError(t, err)
	return orch
}

// splitOrchestrator disagrees on the primary decision, forcing escalation.
func splitOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	orch, err := orchestrator.New([]evaluation.Agent{
		staticAgent(t, "advocate", true, 0.9),
		staticAgent(t, "skeptic", false, 0.85),
	}, orchestrator.Options{EnableHITL: true})
	require.NoError(t, err)
	return orch
}

func testHistory(t *testing.T) (*history.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return history.NewWithClient(client, "test:history:", time.Hour), mr
}

func newTestServer(t *testing.T, config Config) *Server {
	t.Helper()
	return NewServer(config, zerolog.Nop())
}

func evaluationBody(t *testing.T, taskID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"task_id":             taskID,
		"task_type":           "code_review",
		"decision_schema":     map[string]interface{}{"type": "boolean"},
		"context":             map[string]interface{}{"diff": "func main() {}"},
		"evaluation_criteria": "Assess whether the change is safe to merge",
	})
	require.NoError(t, err)
	return body
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "agentalign API", resp["service"])
	assert.Equal(t, "running", resp["status"])
}

func TestHandleRunEvaluation(t *testing.T) {
	hist, _ := testHistory(t)
	s := newTestServer(t, Config{
		Orchestrator: alignedOrchestrator(t),
		History:      hist,
	})

	w := doRequest(s, http.MethodPost, "/api/v1/evaluations", evaluationBody(t, "task-42"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "task-42", result.TaskID)
	assert.NotEmpty(t, result.RequestID)
	assert.False(t, result.RequiresHumanReview)
	require.NotNil(t, result.AlignmentSummary)
	assert.Equal(t, alignment.StateFullAlignment, result.AlignmentSummary.State)
	assert.Len(t, result.AgentDecisions, 2)

	// The result must be retrievable from history afterwards.
	w = doRequest(s, http.MethodGet, "/api/v1/evaluations/"+result.RequestID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, result.RequestID, fetched.RequestID)
}

func TestHandleRunEvaluationEscalates(t *testing.T) {
	hist, _ := testHistory(t)
	s := newTestServer(t, Config{
		Orchestrator: splitOrchestrator(t),
		History:      hist,
	})

	w := doRequest(s, http.MethodPost, "/api/v1/evaluations", evaluationBody(t, "task-43"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.RequiresHumanReview)
	assert.NotEmpty(t, result.ReviewReason)
	require.NotNil(t, result.AlignmentSummary)
	assert.Equal(t, alignment.StateHardDisagreement, result.AlignmentSummary.State)
}

func TestHandleRunEvaluationBadRequests(t *testing.T) {
	s := newTestServer(t, Config{Orchestrator: alignedOrchestrator(t)})

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte("{not json")},
		{"missing schema", []byte(`{"task_id":"t1","evaluation_criteria":"x"}`)},
		{"unknown schema type", []byte(`{"task_id":"t1","decision_schema":{"type":"tarot"},"context":{"a":1},"evaluation_criteria":"x"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodPost, "/api/v1/evaluations", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestHandleRunEvaluationNoPipeline(t *testing.T) {
	s := newTestServer(t, Config{})

	w := doRequest(s, http.MethodPost, "/api/v1/evaluations", evaluationBody(t, "task-1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleGetEvaluationNotFound(t *testing.T) {
	hist, _ := testHistory(t)
	s := newTestServer(t, Config{History: hist})

	w := doRequest(s, http.MethodGet, "/api/v1/evaluations/req-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetEvaluationNoStores(t *testing.T) {
	s := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/evaluations/req-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func archivedEvaluationRow(requestID string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "request_id", "task_id", "task_type", "decision", "confidence", "reasoning",
		"alignment_state", "alignment_score", "summary", "agent_decisions",
		"requires_review", "review_reason", "analysis_version",
		"processing_time_ms", "created_at",
	}).AddRow(
		int64(1), requestID, "task-1", "content_review", []byte(`"approve"`), 0.87, "Weighted consensus",
		string(alignment.StateFullAlignment), 0.93, []byte(`{}`), []byte(`[]`),
		false, nil, "2.1.0",
		int64(420), time.Now().UTC(),
	)
}

func TestHandleGetEvaluationArchiveFallback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT(.+)FROM evaluations WHERE request_id").
		WithArgs("req-1").
		WillReturnRows(archivedEvaluationRow("req-1"))

	s := newTestServer(t, Config{Archive: store.New(mock)})

	w := doRequest(s, http.MethodGet, "/api/v1/evaluations/req-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec store.EvaluationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "req-1", rec.RequestID)

	mock.ExpectQuery("SELECT(.+)FROM evaluations WHERE request_id").
		WithArgs("req-missing").
		WillReturnError(pgx.ErrNoRows)

	w = doRequest(s, http.MethodGet, "/api/v1/evaluations/req-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleListEvaluations(t *testing.T) {
	hist, _ := testHistory(t)
	s := newTestServer(t, Config{
		Orchestrator: alignedOrchestrator(t),
		History:      hist,
	})

	for i := 0; i < 3; i++ {
		taskID := fmt.Sprintf("task-%d", i)
		w := doRequest(s, http.MethodPost, "/api/v1/evaluations", evaluationBody(t, taskID))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(s, http.MethodGet, "/api/v1/evaluations?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Evaluations []*orchestrator.Result `json:"evaluations"`
		Count       int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Evaluations, 2)

	// Filter by task id.
	w = doRequest(s, http.MethodGet, "/api/v1/evaluations?task_id=task-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "task-1", resp.Evaluations[0].TaskID)
}

func TestHandleListEvaluationsNoStores(t *testing.T) {
	s := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/evaluations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleListHITLRequests(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "request_id", "evaluation_request_id", "task_id", "alignment_state",
		"alignment_score", "escalation_reason", "summary", "dissenting_agents",
		"agent_decisions", "created_at",
	}).AddRow(
		int64(1), "hitl-task-1-abc12345", "req-1", "task-1", string(alignment.StateHardDisagreement),
		0.22, "hard_disagreement", "Agents fundamentally disagree", []string{"skeptic"},
		[]byte(`[]`), time.Now().UTC(),
	)

	mock.ExpectQuery("SELECT(.+)FROM hitl_requests ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(rows)

	s := newTestServer(t, Config{Archive: store.New(mock)})

	w := doRequest(s, http.MethodGet, "/api/v1/hitl/requests", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Requests []*store.HITLRecord `json:"requests"`
		Count    int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "hitl-task-1-abc12345", resp.Requests[0].RequestID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleListHITLRequestsNoArchive(t *testing.T) {
	s := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/api/v1/hitl/requests", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHealth(t *testing.T) {
	hist, mr := testHistory(t)
	s := newTestServer(t, Config{
		Orchestrator: alignedOrchestrator(t),
		History:      hist,
	})

	w := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status     string                            `json:"status"`
		Components map[string]map[string]interface{} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["orchestrator"]["status"])
	assert.Equal(t, float64(2), resp.Components["orchestrator"]["agents"])
	assert.Equal(t, "healthy", resp.Components["history"]["status"])
	assert.Equal(t, "not_configured", resp.Components["archive"]["status"])

	// A failing configured dependency degrades the endpoint.
	mr.Close()
	w = doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["history"]["status"])
}

func TestHandleHealthNoOrchestrator(t *testing.T) {
	s := newTestServer(t, Config{})

	w := doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
