package reports

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes mounts the report endpoints on the given group (mounted at
// /api by the app). Intake and browsing are public; resolution and deletion
// require an authenticated admin session, enforced by requireAuth.
func RegisterRoutes(g *echo.Group, h *Handler, requireAuth echo.MiddlewareFunc) {
	g.POST("/reports", h.Create)
	g.GET("/reports", h.List)

	g.POST("/reports/:id/resolve", h.Resolve, requireAuth)
	g.DELETE("/reports/:id", h.Delete, requireAuth)
}
