package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

// writeError maps classified engine errors onto HTTP statuses
func writeError(c echo.Context, err error) error {
	if errors.Is(err, engine.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "not found",
		})
	}

	status := http.StatusInternalServerError
	switch models.Classify(err) {
	case models.ErrValidation, models.ErrGeneration:
		status = http.StatusBadRequest
	case models.ErrConflict, models.ErrCircularDependency:
		status = http.StatusConflict
	case models.ErrPermission:
		status = http.StatusForbidden
	}

	return c.JSON(status, map[string]interface{}{
		"error": err.Error(),
	})
}

// badRequest writes a 400 with a single error message
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error": msg,
	})
}
