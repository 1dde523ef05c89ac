package tasks

import "github.com/labstack/echo/v4"

// RegisterRoutes registers task routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/tasks")

	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id/project", h.ChangeProject)
	g.POST("/:id/assignees", h.AddAssignee)
	g.DELETE("/:id/assignees/:userId", h.RemoveAssignee)
	g.GET("/:id/relationships", h.Relationships)
}
