package reltypes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// List handles GET /api/relationship-types
func (h *Handler) List(c echo.Context) error {
	types, err := h.registry.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListResponse{Data: types})
}

func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/api/relationship-types", h.List)
}
