package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/cmd/nameforge/container"
	"github.com/convexa/nameforge/cmd/nameforge/handlers"
)

// RegisterErrorRoutes registers individual propagation error routes
func RegisterErrorRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewErrorHandler(c)

	errs := e.Group("/api/v1/propagation-errors")
	{
		errs.GET("/:id", h.Get)              // GET  /api/v1/propagation-errors/:id
		errs.POST("/:id/resolve", h.Resolve) // POST /api/v1/propagation-errors/:id/resolve
	}
}
