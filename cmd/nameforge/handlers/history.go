package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/service"
	"github.com/convexa/nameforge/common/bootstrap"
)

// HistoryHandler exposes the audit trail
type HistoryHandler struct {
	components *bootstrap.Components
	history    *service.HistoryService
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(c *container.Container) *HistoryHandler {
	return &HistoryHandler{
		components: c.Components,
		history:    c.HistoryService,
	}
}

// GetHistory retrieves a string's full version history, most recent first
// GET /api/v1/strings/:id/history?workspace_id=...
func (h *HistoryHandler) GetHistory(c echo.Context) error {
	ctx := c.Request().Context()

	stringID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}
	workspaceID, err := uuid.Parse(c.QueryParam("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id query parameter must be a valid UUID")
	}

	entries, err := h.history.GetHistory(ctx, workspaceID, stringID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"string_id": stringID,
		"history":   entries,
		"count":     len(entries),
	})
}

// GetVersion retrieves the audit entry behind one version
// GET /api/v1/strings/:id/history/:version?workspace_id=...
func (h *HistoryHandler) GetVersion(c echo.Context) error {
	ctx := c.Request().Context()

	stringID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}
	workspaceID, err := uuid.Parse(c.QueryParam("workspace_id"))
	if err != nil {
		return badRequest(c, "workspace_id query parameter must be a valid UUID")
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version <= 0 {
		return badRequest(c, "version must be a positive integer")
	}

	entry, err := h.history.GetVersion(ctx, workspaceID, stringID, version)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, entry)
}

// GetBatch retrieves every audit entry of one propagation run
// GET /api/v1/batches/:id
func (h *HistoryHandler) GetBatch(c echo.Context) error {
	ctx := c.Request().Context()

	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "id must be a valid UUID")
	}

	entries, err := h.history.GetBatch(ctx, batchID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"entries":  entries,
		"count":    len(entries),
	})
}
