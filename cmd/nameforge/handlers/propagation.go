package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/service"
	"github.com/convexa/nameforge/common/bootstrap"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

// PropagationHandler handles propagation submissions and job lifecycle
type PropagationHandler struct {
	components  *bootstrap.Components
	propagation *service.PropagationService
}

// NewPropagationHandler creates a new propagation handler
func NewPropagationHandler(c *container.Container) *PropagationHandler {
	return &PropagationHandler{
		components:  c.Components,
		propagation: c.PropagationService,
	}
}

// Submit analyzes and executes a batch of string changes
// POST /api/v1/workspaces/:workspace_id/propagations
func (h *PropagationHandler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}

	var req struct {
		Actor         string               `json:"actor"`
		Items         []engine.RootChange  `json:"items"`
		Rules         *engine.RuleSet      `json:"rules"`
		DryRun        bool                 `json:"dry_run"`
		MaxDepth      int                  `json:"max_depth"`
		ErrorHandling models.ErrorHandling `json:"error_handling"`
		ChunkSize     int                  `json:"chunk_size"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Items) == 0 {
		return badRequest(c, "items array is required and cannot be empty")
	}

	h.components.Logger.Info("propagation submitted",
		"workspace_id", workspaceID,
		"actor", req.Actor,
		"items", len(req.Items),
		"dry_run", req.DryRun)

	result, err := h.propagation.Submit(ctx, &service.SubmitRequest{
		WorkspaceID: workspaceID,
		Actor:       req.Actor,
		Items:       req.Items,
		Rules:       req.Rules,
		DryRun:      req.DryRun,
		MaxDepth:    req.MaxDepth,
		ErrorMode:   req.ErrorHandling,
		ChunkSize:   req.ChunkSize,
	})
	if err != nil {
		return writeError(c, err)
	}

	switch {
	case result.Blocked:
		return c.JSON(http.StatusConflict, result)
	case result.Job != nil && result.Job.Status == models.JobPending:
		// Queued for the background worker
		return c.JSON(http.StatusAccepted, result)
	default:
		return c.JSON(http.StatusOK, result)
	}
}

// GetJob retrieves one propagation job
// GET /api/v1/workspaces/:workspace_id/propagations/:id?include=errors
func (h *PropagationHandler) GetJob(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}
	includeErrors := c.QueryParam("include") == "errors"

	result, err := h.propagation.GetJob(ctx, workspaceID, jobID, includeErrors)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// ListJobs lists a workspace's propagation jobs
// GET /api/v1/workspaces/:workspace_id/propagations?status=running&limit=20
func (h *PropagationHandler) ListJobs(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}

	status := models.JobStatus(c.QueryParam("status"))
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return badRequest(c, "limit must be an integer")
		}
	}

	jobs, err := h.propagation.ListJobs(ctx, workspaceID, status, limit)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Cancel requests cancellation of a pending or running job
// POST /api/v1/workspaces/:workspace_id/propagations/:id/cancel
func (h *PropagationHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}

	job, err := h.propagation.Cancel(ctx, workspaceID, jobID)
	if err != nil {
		return writeError(c, err)
	}

	h.components.Logger.Info("job cancellation requested", "job_id", jobID)

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "cancellation takes effect at the next chunk boundary",
	})
}
