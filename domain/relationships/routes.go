package relationships

import "github.com/labstack/echo/v4"

// RegisterRoutes registers relationship routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/relationships")

	g.GET("", h.FindMany)
	g.POST("", h.Create)
	g.POST("/mentions", h.CreateFromMention)
	g.POST("/interactions", h.RecordInteraction)
	g.GET("/suggestions", h.Suggestions)
	g.GET("/entity/:type/:id", h.ForEntity)
	g.GET("/:id", h.FindOne)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
