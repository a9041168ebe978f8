package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pnv/catalog-sync/internal/application/jobs"
	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/interfaces/http/dto"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// JobStarter starts a pipeline run in the background.
type JobStarter interface {
	Start(ctx context.Context, trigger string) error
}

// RunLister lists recorded pipeline runs, newest first.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]pipeline.Run, error)
}

// JobHandler triggers runs and reports their history.
type JobHandler struct {
	BaseHandler
	runner JobStarter
	runs   RunLister
}

// NewJobHandler creates a job handler
func NewJobHandler(runner JobStarter, runs RunLister) *JobHandler {
	return &JobHandler{runner: runner, runs: runs}
}

// Run handles POST /api/jobs/run
func (h *JobHandler) Run(c *gin.Context) {
	err := h.runner.Start(c.Request.Context(), jobs.TriggerManual)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		h.Conflict(c, err.Error())
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.JobAcceptedResponse{Trigger: jobs.TriggerManual, Status: "started"})
}

// ListRuns handles GET /api/jobs/runs?limit=
func (h *JobHandler) ListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewRunResponses(runs))
}

// RegisterRoutes mounts the job endpoints under rg.
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs/run", h.Run)
	rg.GET("/jobs/runs", h.ListRuns)
}
