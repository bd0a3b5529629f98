package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/roadwatch/roadwatch/internal/apperror"
)

// sessionContextKey is the echo context key holding the validated session.
const sessionContextKey = "auth.session"

// RequireAuth gates a route group behind a valid session. Unlike check-auth,
// failure here IS an error: protected endpoints answer 401 JSON.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				return apperror.NewUnauthorized("Authentication required")
			}

			session, err := service.ValidateSession(c.Request().Context(), cookie.Value)
			if err != nil {
				return apperror.NewUnauthorized("Authentication required")
			}

			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

// GetSession returns the session placed in the context by RequireAuth, or
// nil when the route is not behind it.
func GetSession(c echo.Context) *Session {
	session, _ := c.Get(sessionContextKey).(*Session)
	return session
}

// GetIdentity returns the authenticated admin email, or "".
func GetIdentity(c echo.Context) string {
	if s := GetSession(c); s != nil {
		return s.Email
	}
	return ""
}
