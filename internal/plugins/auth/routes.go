package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch/internal/middleware"
)

// RegisterRoutes mounts the auth endpoints on the given group (mounted at
// /api by the app). Login and the recovery endpoints carry their own per-IP
// rate limits on top of the OTP ledger's per-identity quota: the ledger
// protects an identity, the limiter protects the service.
func RegisterRoutes(g *echo.Group, h *Handler) {
	loginLimit := middleware.RateLimit(10, time.Minute)
	recoveryLimit := middleware.RateLimit(20, time.Minute)

	g.POST("/login", h.Login, loginLimit)
	g.POST("/logout", h.Logout)
	g.GET("/check-auth", h.CheckAuth)

	g.POST("/verify-email", h.VerifyEmail, recoveryLimit)
	g.POST("/request-otp", h.RequestOTP, recoveryLimit)
	g.POST("/verify-otp", h.VerifyOTP, recoveryLimit)
	g.POST("/reset-password", h.ResetPassword, recoveryLimit)
}
