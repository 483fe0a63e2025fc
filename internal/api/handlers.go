package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/agentalign/internal/config"
	"github.com/ajitpratap0/agentalign/internal/evaluation"
	"github.com/ajitpratap0/agentalign/internal/history"
	"github.com/ajitpratap0/agentalign/internal/orchestrator"
	"github.com/ajitpratap0/agentalign/internal/store"
)

var startTime = time.Now()

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "agentalign API",
		"version": config.Version,
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleHealth reports per-component health. Configured dependencies that
// fail their check flip the response to 503 so load balancers can gate
// traffic on it; absent optional dependencies only show as not_configured.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	healthy := true
	components := gin.H{}

	if s.orch != nil {
		components["orchestrator"] = gin.H{
			"status": "healthy",
			"agents": len(s.orch.Agents()),
		}
	} else {
		components["orchestrator"] = gin.H{"status": "not_configured"}
		healthy = false
	}

	if s.history != nil {
		status := "healthy"
		if err := s.history.Health(ctx); err != nil {
			status = "unhealthy"
			healthy = false
			s.log.Warn().Err(err).Msg("History health check failed")
		}
		components["history"] = gin.H{"status": status}
	} else {
		components["history"] = gin.H{"status": "not_configured"}
	}

	if s.archive != nil {
		status := "healthy"
		if err := s.archive.Health(ctx); err != nil {
			status = "unhealthy"
			healthy = false
			s.log.Warn().Err(err).Msg("Archive health check failed")
		}
		components["archive"] = gin.H{"status": status}
	} else {
		components["archive"] = gin.H{"status": "not_configured"}
	}

	if s.bus != nil {
		status := "healthy"
		if !s.bus.IsConnected() {
			status = "unhealthy"
			healthy = false
		}
		components["bus"] = gin.H{"status": status}
	} else {
		components["bus"] = gin.H{"status": "not_configured"}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(startTime).Seconds(),
		"version":    config.Version,
		"components": components,
	})
}

// handleRunEvaluation validates the submitted task, runs it through the
// orchestrator synchronously, and returns the full result.
func (s *Server) handleRunEvaluation(c *gin.Context) {
	if s.orch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evaluation pipeline not available"})
		return
	}

	var spec evaluation.TaskSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	task, err := spec.Build()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orch.Evaluate(c.Request.Context(), task)
	if err != nil {
		var failed *evaluation.AllAgentsFailedError
		switch {
		case errors.Is(err, evaluation.ErrInvalidTask):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &failed):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":    "all agents failed",
				"task_id":  failed.TaskID,
				"failures": failed.Failures,
			})
		default:
			s.log.Error().Err(err).Str("task_id", task.TaskID).Msg("Evaluation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		}
		return
	}

	s.recorder.Record(c.Request.Context(), task, result)

	c.JSON(http.StatusOK, result)
}

// handleGetEvaluation looks a result up by request id, serving from the
// recent history first and falling back to the archive.
func (s *Server) handleGetEvaluation(c *gin.Context) {
	if s.history == nil && s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no result store configured"})
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	if s.history != nil {
		result, err := s.history.Get(ctx, id)
		if err == nil {
			c.JSON(http.StatusOK, result)
			return
		}
		if !errors.Is(err, history.ErrNotFound) {
			s.log.Warn().Err(err).Str("request_id", id).Msg("History lookup failed")
		}
	}

	if s.archive != nil {
		record, err := s.archive.GetEvaluation(ctx, id)
		if err == nil {
			c.JSON(http.StatusOK, record)
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error().Err(err).Str("request_id", id).Msg("Archive lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
}

// handleListEvaluations lists recent results, optionally filtered by
// task_id. The Redis history serves the hot window; the archive serves
// paginated reads beyond it.
func (s *Server) handleListEvaluations(c *gin.Context) {
	if s.history == nil && s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no result store configured"})
		return
	}

	limit := clampLimit(parseIntQuery(c, "limit", defaultListLimit))
	offset := parseIntQuery(c, "offset", 0)
	taskID := c.Query("task_id")
	ctx := c.Request.Context()

	// Offset paging is an archive feature; Redis only holds the recent
	// window.
	if s.history != nil && offset == 0 {
		var (
			results []*orchestrator.Result
			err     error
		)
		if taskID != "" {
			results, err = s.history.ByTask(ctx, taskID, limit)
		} else {
			results, err = s.history.Recent(ctx, limit)
		}
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"evaluations": results, "count": len(results)})
			return
		}
		s.log.Warn().Err(err).Msg("History listing failed")
	}

	if s.archive == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}

	var (
		records []*store.EvaluationRecord
		err     error
	)
	if taskID != "" {
		records, err = s.archive.ListEvaluationsByTask(ctx, taskID, limit)
	} else {
		records, err = s.archive.ListEvaluations(ctx, limit, offset)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Archive listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"evaluations": records, "count": len(records)})
}

// handleListHITLRequests lists archived human review requests.
func (s *Server) handleListHITLRequests(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive not available"})
		return
	}

	limit := clampLimit(parseIntQuery(c, "limit", defaultListLimit))
	offset := parseIntQuery(c, "offset", 0)

	records, err := s.archive.ListHITLRequests(c.Request.Context(), limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list review requests")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": records, "count": len(records)})
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
