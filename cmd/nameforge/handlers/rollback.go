package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/service"
	"github.com/convexa/nameforge/common/bootstrap"
)

// RollbackHandler handles string and batch rollbacks
type RollbackHandler struct {
	components *bootstrap.Components
	rollback   *service.RollbackService
}

// NewRollbackHandler creates a new rollback handler
func NewRollbackHandler(c *container.Container) *RollbackHandler {
	return &RollbackHandler{
		components: c.Components,
		rollback:   c.RollbackService,
	}
}

// Rollback restores earlier content, either one string to a target
// version or every string a propagation batch touched
// POST /api/v1/workspaces/:workspace_id/rollbacks
func (h *RollbackHandler) Rollback(c echo.Context) error {
	ctx := c.Request().Context()

	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id must be a valid UUID")
	}

	var req struct {
		Type          string     `json:"type"` // single | batch
		StringID      *uuid.UUID `json:"string_id"`
		TargetVersion int        `json:"target_version"`
		BatchID       *uuid.UUID `json:"batch_id"`
		Actor         string     `json:"actor"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Actor == "" {
		return badRequest(c, "actor is required")
	}

	switch req.Type {
	case "single":
		if req.StringID == nil {
			return badRequest(c, "string_id is required for single rollback")
		}
		if req.TargetVersion <= 0 {
			return badRequest(c, "target_version must be a positive integer")
		}

		h.components.Logger.Info("string rollback requested",
			"workspace_id", workspaceID,
			"string_id", *req.StringID,
			"target_version", req.TargetVersion,
			"actor", req.Actor)

		result, err := h.rollback.RollbackString(ctx, workspaceID, *req.StringID, req.TargetVersion, req.Actor)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, result)

	case "batch":
		if req.BatchID == nil {
			return badRequest(c, "batch_id is required for batch rollback")
		}

		h.components.Logger.Info("batch rollback requested",
			"workspace_id", workspaceID,
			"batch_id", *req.BatchID,
			"actor", req.Actor)

		result, err := h.rollback.RollbackBatch(ctx, *req.BatchID, req.Actor)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, result)

	default:
		return badRequest(c, "type must be single or batch")
	}
}
