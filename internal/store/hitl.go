package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/agentalign/internal/hitl"
	"github.com/ajitpratap0/agentalign/internal/metrics"
)

// HITLRecord is one archived escalation row. AgentDecisions holds the JSON
// payload handed to reviewers, stored verbatim. EvaluationRequestID links the
// escalation back to its evaluation row.
type HITLRecord struct {
	ID                  int64     `json:"id"`
	RequestID           string    `json:"request_id"`
	EvaluationRequestID string    `json:"evaluation_request_id,omitempty"`
	TaskID              string    `json:"task_id"`
	AlignmentState      string    `json:"alignment_state"`
	AlignmentScore      float64   `json:"alignment_score"`
	EscalationReason    string    `json:"escalation_reason"`
	Summary             string    `json:"summary"`
	DissentingAgents    []string  `json:"dissenting_agents,omitempty"`
	AgentDecisions      []byte    `json:"agent_decisions,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewHITLRecord converts an escalation request into its archive row.
func NewHITLRecord(request *hitl.Request) (*HITLRecord, error) {
	if request == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	var decisionsJSON []byte
	if len(request.AgentDecisions) > 0 {
		var err error
		decisionsJSON, err = json.Marshal(request.AgentDecisions)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal agent decisions: %w", err)
		}
	}

	evaluationRequestID := ""
	if v, ok := request.Metadata["evaluation_request_id"].(string); ok {
		evaluationRequestID = v
	}

	createdAt := request.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &HITLRecord{
		RequestID:           request.RequestID,
		EvaluationRequestID: evaluationRequestID,
		TaskID:              request.TaskID,
		AlignmentState:      request.AlignmentState,
		AlignmentScore:      request.AlignmentScore,
		EscalationReason:    string(request.EscalationReason),
		Summary:             request.Summary,
		DissentingAgents:    request.DissentingAgents,
		AgentDecisions:      decisionsJSON,
		CreatedAt:           createdAt,
	}, nil
}

// InsertHITLRequest archives an escalation and sets its generated ID.
func (s *Store) InsertHITLRequest(ctx context.Context, rec *HITLRecord) error {
	query := `
		INSERT INTO hitl_requests (
			request_id, evaluation_request_id, task_id, alignment_state,
			alignment_score, escalation_reason, summary, dissenting_agents,
			agent_decisions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	start := time.Now()
	err := s.pool.QueryRow(ctx, query,
		rec.RequestID, rec.EvaluationRequestID, rec.TaskID, rec.AlignmentState,
		rec.AlignmentScore, rec.EscalationReason, rec.Summary, rec.DissentingAgents,
		rec.AgentDecisions, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert hitl request: %w", err)
	}

	metrics.RecordDatabaseQuery("insert_hitl_request", float64(time.Since(start).Milliseconds()))
	return nil
}

const hitlColumns = `
	id, request_id, evaluation_request_id, task_id, alignment_state,
	alignment_score, escalation_reason, summary, dissenting_agents,
	agent_decisions, created_at`

// GetHITLRequest fetches an archived escalation by its request ID.
func (s *Store) GetHITLRequest(ctx context.Context, requestID string) (*HITLRecord, error) {
	query := `SELECT` + hitlColumns + `
		FROM hitl_requests
		WHERE request_id = $1`

	start := time.Now()
	rec, err := scanHITLRequest(s.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get hitl request: %w", err)
	}

	metrics.RecordDatabaseQuery("get_hitl_request", float64(time.Since(start).Milliseconds()))
	return rec, nil
}

// ListHITLRequests returns archived escalations newest first.
func (s *Store) ListHITLRequests(ctx context.Context, limit, offset int) ([]*HITLRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT` + hitlColumns + `
		FROM hitl_requests
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list hitl requests: %w", err)
	}
	defer rows.Close()

	var records []*HITLRecord
	for rows.Next() {
		rec, err := scanHITLRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hitl request: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hitl requests: %w", err)
	}

	metrics.RecordDatabaseQuery("list_hitl_requests", float64(time.Since(start).Milliseconds()))
	return records, nil
}

func scanHITLRequest(row pgx.Row) (*HITLRecord, error) {
	var rec HITLRecord
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.EvaluationRequestID, &rec.TaskID,
		&rec.AlignmentState, &rec.AlignmentScore, &rec.EscalationReason,
		&rec.Summary, &rec.DissentingAgents, &rec.AgentDecisions, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
