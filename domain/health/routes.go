package health

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, h *Handler, m *MetricsHandler) {
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Healthz)
	e.GET("/ready", h.Ready)
	e.GET("/debug", h.Debug)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/api/metrics/relationships", m.RelationshipMetrics)
	e.GET("/api/metrics/scheduler", m.SchedulerMetrics)
}
