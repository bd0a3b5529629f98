package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch/internal/apperror"
)

// sessionCookieName is the cookie carrying the opaque session token.
const sessionCookieName = "roadwatch_session"

// Handler exposes the auth core over JSON HTTP. It only does transport
// concerns -- binding, required-field checks, cookies -- and delegates all
// decisions to the service.
type Handler struct {
	service AuthService

	sessionTTL   time.Duration
	secureCookie bool
}

// NewHandler creates the auth HTTP handler. secureCookie should be true in
// production so the session cookie is only sent over TLS.
func NewHandler(service AuthService, sessionTTL time.Duration, secureCookie bool) *Handler {
	return &Handler{
		service:      service,
		sessionTTL:   sessionTTL,
		secureCookie: secureCookie,
	}
}

// Login handles POST /api/login.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperror.NewValidation("Email and password are required")
	}

	token, admin, err := h.service.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}

	c.SetCookie(h.sessionCookie(token, h.sessionTTL))

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Login successful",
		"admin": map[string]any{
			"id":    admin.ID,
			"email": admin.Email,
		},
	})
}

// Logout handles POST /api/logout. Safe to call without a session.
func (h *Handler) Logout(c echo.Context) error {
	if token := h.sessionToken(c); token != "" {
		if err := h.service.Logout(c.Request().Context(), token); err != nil {
			return err
		}
	}

	// Expire the cookie regardless of whether a session existed.
	c.SetCookie(h.sessionCookie("", -time.Hour))

	return c.JSON(http.StatusOK, map[string]any{
		"message": "Logout successful",
	})
}

// CheckAuth handles GET /api/check-auth. It always answers 200: an absent
// or invalid session is a normal state, not an error.
func (h *Handler) CheckAuth(c echo.Context) error {
	token := h.sessionToken(c)
	if token == "" {
		return c.JSON(http.StatusOK, map[string]any{"authenticated": false})
	}

	session, err := h.service.ValidateSession(c.Request().Context(), token)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"authenticated": false})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": true,
		"admin": map[string]any{
			"id":    session.AdminID,
			"email": session.Email,
		},
	})
}

// VerifyEmail handles POST /api/verify-email (recovery step 1).
func (h *Handler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	if strings.TrimSpace(req.Email) == "" {
		return apperror.NewValidation("Email is required")
	}

	if err := h.service.VerifyEmail(c.Request().Context(), req.Email); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Email verified",
	})
}

// RequestOTP handles POST /api/request-otp (recovery step 2).
func (h *Handler) RequestOTP(c echo.Context) error {
	var req RequestOTPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	if strings.TrimSpace(req.Email) == "" {
		return apperror.NewValidation("Email is required")
	}

	dispatch, err := h.service.RequestOTP(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message":            "OTP sent to " + dispatch.Email,
		"remaining_requests": dispatch.RequestsRemaining,
		"expires_in_seconds": dispatch.ExpiresInSeconds,
	})
}

// VerifyOTP handles POST /api/verify-otp (recovery step 3).
func (h *Handler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.OTP) == "" {
		return apperror.NewValidation("Email and OTP are required")
	}

	if err := h.service.VerifyOTP(c.Request().Context(), req.Email, req.OTP); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "OTP is valid. Please enter your new password.",
	})
}

// ResetPassword handles POST /api/reset-password (recovery step 4).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body")
	}

	if strings.TrimSpace(req.Email) == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return apperror.NewValidation("Email, new password, and confirmation are required")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.Email, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}

	// No session is established here. The admin proves the new password
	// works by logging in with it.
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Password has been reset successfully.",
	})
}

// sessionToken extracts the session token from the request cookie, or "".
func (h *Handler) sessionToken(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// sessionCookie builds the session cookie. A non-positive maxAge expires it.
func (h *Handler) sessionCookie(token string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	} else {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	return cookie
}
