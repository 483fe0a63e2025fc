package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ajitpratap0/agentalign/internal/alignment"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/metrics"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
)

// embeddingDimensions matches the vector(1536) column in the evaluations
// table. Criteria embeddings of any other size are rejected before they
// reach the database.
const embeddingDimensions = 1536

// EvaluationRecord is one archived evaluation row. Decision, Summary, and
// AgentDecisions hold the JSON the pipeline produced, stored verbatim so the
// archive never reinterprets past results. SummaryCompatible is derived on
// read: false when the row was written under a different major analysis
// version than the current analyser.
type EvaluationRecord struct {
	ID                int64     `json:"id"`
	RequestID         string    `json:"request_id"`
	TaskID            string    `json:"task_id"`
	TaskType          string    `json:"task_type"`
	Decision          []byte    `json:"decision"`
	Confidence        float64   `json:"confidence"`
	Reasoning         string    `json:"reasoning,omitempty"`
	AlignmentState    string    `json:"alignment_state"`
	AlignmentScore    float64   `json:"alignment_score"`
	Summary           []byte    `json:"summary,omitempty"`
	AgentDecisions    []byte    `json:"agent_decisions,omitempty"`
	RequiresReview    bool      `json:"requires_review"`
	ReviewReason      *string   `json:"review_reason,omitempty"`
	AnalysisVersion   string    `json:"analysis_version"`
	SummaryCompatible bool      `json:"summary_compatible"`
	ProcessingTimeMS  int64     `json:"processing_time_ms"`
	CreatedAt         time.Time `json:"created_at"`

	// CriteriaEmbedding is written on insert when similarity search is in
	// use. Get and list queries never read it back; it only orders the
	// similarity query.
	CriteriaEmbedding *pgvector.Vector `json:"-"`
}

// SimilarEvaluation is an archived evaluation annotated with its cosine
// distance from the query embedding. Lower is more similar.
type SimilarEvaluation struct {
	EvaluationRecord
	Distance float32 `json:"distance"`
}

// NewEvaluationRecord converts a pipeline result into its archive row. The
// analysis version is taken from the summary the analyser stamped; results
// without a summary (total agent failure never archives, but callers may
// construct partial results) fall back to the current version.
func NewEvaluationRecord(result *orchestrator.Result, task *evaluation.Task) (*EvaluationRecord, error) {
	if result == nil {
		return nil, fmt.Errorf("result cannot be nil")
	}

	decisionJSON, err := json.Marshal(result.SynthesizedDecision)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesized decision: %w", err)
	}

	var summaryJSON []byte
	version := alignment.AnalysisVersion
	if result.AlignmentSummary != nil {
		summaryJSON, err = json.Marshal(result.AlignmentSummary)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal alignment summary: %w", err)
		}
		if v, ok := result.AlignmentSummary.Metadata["analysis_version"].(string); ok && v != "" {
			version = v
		}
	}

	var decisionsJSON []byte
	if len(result.AgentDecisions) > 0 {
		decisionsJSON, err = json.Marshal(result.AgentDecisions)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal agent decisions: %w", err)
		}
	}

	taskType := ""
	if task != nil {
		taskType = task.TaskType
	}

	var reviewReason *string
	if result.ReviewReason != "" {
		reason := result.ReviewReason
		reviewReason = &reason
	}

	return &EvaluationRecord{
		RequestID:         result.RequestID,
		TaskID:            result.TaskID,
		TaskType:          taskType,
		Decision:          decisionJSON,
		Confidence:        result.Confidence,
		Reasoning:         result.Reasoning,
		AlignmentState:    string(result.State()),
		AlignmentScore:    alignmentScore(result),
		Summary:           summaryJSON,
		AgentDecisions:    decisionsJSON,
		RequiresReview:    result.RequiresHumanReview,
		ReviewReason:      reviewReason,
		AnalysisVersion:   version,
		SummaryCompatible: alignment.CompatibleVersion(version),
		ProcessingTimeMS:  result.ProcessingTimeMS,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func alignmentScore(result *orchestrator.Result) float64 {
	if result.AlignmentSummary == nil {
		return 0
	}
	return result.AlignmentSummary.AlignmentScore
}

// SetCriteriaEmbedding attaches a criteria embedding to the record. The
// embedding must match the vector column dimensions.
func (r *EvaluationRecord) SetCriteriaEmbedding(embedding []float32) error {
	if len(embedding) != embeddingDimensions {
		return fmt.Errorf("embedding must have %d dimensions, got %d", embeddingDimensions, len(embedding))
	}
	vec := pgvector.NewVector(embedding)
	r.CriteriaEmbedding = &vec
	return nil
}

// InsertEvaluation archives an evaluation record and sets its generated ID.
func (s *Store) InsertEvaluation(ctx context.Context, rec *EvaluationRecord) error {
	query := `
		INSERT INTO evaluations (
			request_id, task_id, task_type, decision, confidence, reasoning,
			alignment_state, alignment_score, summary, agent_decisions,
			requires_review, review_reason, analysis_version,
			processing_time_ms, criteria_embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	var embedding interface{}
	if rec.CriteriaEmbedding != nil {
		embedding = *rec.CriteriaEmbedding
	}

	start := time.Now()
	err := s.pool.QueryRow(ctx, query,
		rec.RequestID, rec.TaskID, rec.TaskType, rec.Decision, rec.Confidence, rec.Reasoning,
		rec.AlignmentState, rec.AlignmentScore, rec.Summary, rec.AgentDecisions,
		rec.RequiresReview, rec.ReviewReason, rec.AnalysisVersion,
		rec.ProcessingTimeMS, embedding, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	metrics.RecordDatabaseQuery("insert_evaluation", float64(time.Since(start).Milliseconds()))
	return nil
}

const evaluationColumns = `
	id, request_id, task_id, task_type, decision, confidence, reasoning,
	alignment_state, alignment_score, summary, agent_decisions,
	requires_review, review_reason, analysis_version,
	processing_time_ms, created_at`

// GetEvaluation fetches an archived evaluation by its request ID.
func (s *Store) GetEvaluation(ctx context.Context, requestID string) (*EvaluationRecord, error) {
	query := `SELECT` + evaluationColumns + `
		FROM evaluations
		WHERE request_id = $1`

	start := time.Now()
	rec, err := scanEvaluation(s.pool.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	metrics.RecordDatabaseQuery("get_evaluation", float64(time.Since(start).Milliseconds()))
	return rec, nil
}

// ListEvaluations returns archived evaluations newest first.
func (s *Store) ListEvaluations(ctx context.Context, limit, offset int) ([]*EvaluationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT` + evaluationColumns + `
		FROM evaluations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	records, err := collectEvaluations(rows)
	if err != nil {
		return nil, err
	}

	metrics.RecordDatabaseQuery("list_evaluations", float64(time.Since(start).Milliseconds()))
	return records, nil
}

// ListEvaluationsByTask returns archived evaluations for one task, newest
// first.
func (s *Store) ListEvaluationsByTask(ctx context.Context, taskID string, limit int) ([]*EvaluationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + evaluationColumns + `
		FROM evaluations
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations by task: %w", err)
	}
	defer rows.Close()

	records, err := collectEvaluations(rows)
	if err != nil {
		return nil, err
	}

	metrics.RecordDatabaseQuery("list_evaluations_by_task", float64(time.Since(start).Milliseconds()))
	return records, nil
}

// FindSimilarEvaluations returns archived evaluations whose criteria
// embeddings are nearest to the query embedding by cosine distance. Rows
// without an embedding are excluded.
func (s *Store) FindSimilarEvaluations(ctx context.Context, embedding []float32, limit int) ([]*SimilarEvaluation, error) {
	if len(embedding) != embeddingDimensions {
		return nil, fmt.Errorf("embedding must have %d dimensions, got %d", embeddingDimensions, len(embedding))
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT
			id, request_id, task_id, task_type, decision, confidence, reasoning,
			alignment_state, alignment_score, summary, agent_decisions,
			requires_review, review_reason, analysis_version,
			processing_time_ms, created_at,
			criteria_embedding <=> $1 as distance
		FROM evaluations
		WHERE criteria_embedding IS NOT NULL
		ORDER BY criteria_embedding <=> $1
		LIMIT $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find similar evaluations: %w", err)
	}
	defer rows.Close()

	var results []*SimilarEvaluation
	for rows.Next() {
		var sim SimilarEvaluation
		err := rows.Scan(
			&sim.ID, &sim.RequestID, &sim.TaskID, &sim.TaskType,
			&sim.Decision, &sim.Confidence, &sim.Reasoning,
			&sim.AlignmentState, &sim.AlignmentScore,
			&sim.Summary, &sim.AgentDecisions,
			&sim.RequiresReview, &sim.ReviewReason,
			&sim.AnalysisVersion, &sim.ProcessingTimeMS, &sim.CreatedAt,
			&sim.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan similar evaluation: %w", err)
		}
		sim.SummaryCompatible = alignment.CompatibleVersion(sim.AnalysisVersion)
		results = append(results, &sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate similar evaluations: %w", err)
	}

	metrics.RecordDatabaseQuery("find_similar_evaluations", float64(time.Since(start).Milliseconds()))
	return results, nil
}

func scanEvaluation(row pgx.Row) (*EvaluationRecord, error) {
	var rec EvaluationRecord
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.TaskID, &rec.TaskType,
		&rec.Decision, &rec.Confidence, &rec.Reasoning,
		&rec.AlignmentState, &rec.AlignmentScore,
		&rec.Summary, &rec.AgentDecisions,
		&rec.RequiresReview, &rec.ReviewReason,
		&rec.AnalysisVersion, &rec.ProcessingTimeMS, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.SummaryCompatible = alignment.CompatibleVersion(rec.AnalysisVersion)
	return &rec, nil
}

func collectEvaluations(rows pgx.Rows) ([]*EvaluationRecord, error) {
	var records []*EvaluationRecord
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluations: %w", err)
	}
	return records, nil
}
