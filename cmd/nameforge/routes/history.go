package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/handlers"
)

// RegisterHistoryRoutes registers audit trail routes
func RegisterHistoryRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewHistoryHandler(c)

	strings := e.Group("/api/v1/strings")
	{
		strings.GET("/:id/history", h.GetHistory)          // GET /api/v1/strings/:id/history?workspace_id=
		strings.GET("/:id/history/:version", h.GetVersion) // GET /api/v1/strings/:id/history/:version?workspace_id=
	}

	batches := e.Group("/api/v1/batches")
	{
		batches.GET("/:id", h.GetBatch) // GET /api/v1/batches/:id
	}
}
