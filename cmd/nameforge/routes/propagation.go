package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/handlers"
)

// RegisterPropagationRoutes registers submission, job lifecycle and
// rollback routes (all workspace-scoped)
func RegisterPropagationRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPropagationHandler(c)
	eh := handlers.NewErrorHandler(c)
	rh := handlers.NewRollbackHandler(c)

	workspaces := e.Group("/api/v1/workspaces/:workspace_id")
	{
		workspaces.POST("/propagations", h.Submit)               // POST .../propagations
		workspaces.GET("/propagations", h.ListJobs)              // GET  .../propagations?status=&limit=
		workspaces.GET("/propagations/:id", h.GetJob)            // GET  .../propagations/:id?include=errors
		workspaces.POST("/propagations/:id/cancel", h.Cancel)    // POST .../propagations/:id/cancel
		workspaces.GET("/propagations/:id/errors", eh.ListByJob) // GET  .../propagations/:id/errors
		workspaces.POST("/propagations/:id/retry", eh.RetryJob)  // POST .../propagations/:id/retry
		workspaces.POST("/rollbacks", rh.Rollback)               // POST .../rollbacks
	}
}
