package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/service"
	"github.com/convexa/nameforge/common/bootstrap"
	"github.com/convexa/nameforge/common/models"
)

// ErrorHandler handles propagation error inspection and recovery
type ErrorHandler struct {
	components *bootstrap.Components
	errors     *service.ErrorService
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(c *container.Container) *ErrorHandler {
	return &ErrorHandler{
		components: c.Components,
		errors:     c.ErrorService,
	}
}

// Get retrieves one propagation error
// GET /api/v1/propagation-errors/:id
func (h *ErrorHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	errorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}

	propErr, err := h.errors.Get(ctx, errorID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, propErr)
}

// ListByJob lists all errors recorded for a job
// GET /api/v1/workspaces/:workspace_id/propagations/:id/errors
func (h *ErrorHandler) ListByJob(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}

	errs, err := h.errors.ListByJob(ctx, workspaceID, jobID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"errors": errs,
		"count":  len(errs),
	})
}

// Resolve settles one propagation error: mark it resolved as-is, or
// retry the failed item and resolve it on success
// POST /api/v1/propagation-errors/:id/resolve
func (h *ErrorHandler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	errorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}

	var req struct {
		Action string `json:"action"` // mark_resolved (default) | retry
		Actor  string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Actor == "" {
		return badRequest(c, "actor is required")
	}

	var propErr *models.PropagationError
	switch req.Action {
	case "", "mark_resolved":
		propErr, err = h.errors.Resolve(ctx, errorID, req.Actor)
	case "retry":
		propErr, err = h.errors.Retry(ctx, errorID, req.Actor)
	default:
		return badRequest(c, "action must be mark_resolved or retry")
	}
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, propErr)
}

// RetryJob re-runs every retryable unresolved error of a job
// POST /api/v1/workspaces/:workspace_id/propagations/:id/retry
func (h *ErrorHandler) RetryJob(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}

	var req struct {
		Actor string `json:"actor"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Actor == "" {
		return badRequest(c, "actor is required")
	}

	h.components.Logger.Info("job retry requested", "job_id", jobID, "actor", req.Actor)

	result, err := h.errors.RetryJob(ctx, workspaceID, jobID, req.Actor)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
