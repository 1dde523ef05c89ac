package discovery

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bizsuite/server/pkg/tenant"
)

// Handler handles HTTP requests for discovery
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// DetectSuppliers handles POST /api/discovery/suppliers
func (h *Handler) DetectSuppliers(c echo.Context) error {
	t, err := tenant.FromRequest(c)
	if err != nil {
		return err
	}
	report, err := h.svc.DetectSuppliers(c.Request().Context(), t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// RegisterRoutes registers discovery routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/discovery")
	g.POST("/suppliers", h.DetectSuppliers)
}
