// Package app assembles the RoadWatch server: middleware chain, plugin
// wiring, the central error handler, and lifecycle management.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/roadwatch/roadwatch/internal/apperror"
	"github.com/roadwatch/roadwatch/internal/config"
	"github.com/roadwatch/roadwatch/internal/mail"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/plugins/auth"
	"github.com/roadwatch/roadwatch/internal/plugins/reports"
)

// App holds the assembled server and its shared dependencies.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Echo   *echo.Echo
}

// New wires the full application: shared infrastructure, both plugins, and
// the HTTP surface. The caller owns DB and Redis lifecycles.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	a := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	a.setupMiddleware()
	a.setupRoutes()

	return a
}

// setupMiddleware installs the global chain. Order matters: recovery must
// wrap everything, and the request logger should see the final status code.
func (a *App) setupMiddleware() {
	e := a.Echo

	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	})

	e.Use(middleware.Recovery())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.corsOrigins(),
		AllowCredentials: true,
	}))
}

// corsOrigins returns the browser origins allowed to call the API with
// credentials. The session cookie only flows to these.
func (a *App) corsOrigins() []string {
	origins := []string{a.Config.BaseURL}
	if a.Config.IsDevelopment() {
		origins = append(origins,
			"http://localhost:3000",
			"http://localhost:5173",
		)
	}
	return origins
}

// setupRoutes mounts both plugins under /api.
func (a *App) setupRoutes() {
	cfg := a.Config

	sender := mail.NewSender(cfg.SMTP)

	adminRepo := auth.NewAdminRepository(a.DB)
	ledger := auth.NewOTPLedger(a.Redis, cfg.Auth.OTPTTL, cfg.Auth.OTPMaxRequests)
	sessions := auth.NewSessionStore(a.Redis, cfg.Auth.SessionTTL)
	authService := auth.NewAuthService(adminRepo, ledger, sessions, sender, cfg.Auth.BcryptCost, cfg.Auth.OTPTTL)
	authHandler := auth.NewHandler(authService, cfg.Auth.SessionTTL, !cfg.IsDevelopment())

	reportRepo := reports.NewReportRepository(a.DB)
	reportService := reports.NewReportService(reportRepo)
	reportHandler := reports.NewHandler(reportService)

	api := a.Echo.Group("/api")
	auth.RegisterRoutes(api, authHandler)
	reports.RegisterRoutes(api, reportHandler, auth.RequireAuth(authService))

	a.Echo.GET("/healthz", a.health)
}

// health reports liveness of the process and its two stores.
func (a *App) health(c echo.Context) error {
	ctx := c.Request().Context()

	status := http.StatusOK
	checks := map[string]string{"database": "ok", "redis": "ok"}

	if err := a.DB.PingContext(ctx); err != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, checks)
}

// Start runs the HTTP server until it fails or is shut down.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("server listening", slog.String("addr", addr), slog.String("env", a.Config.Env))
	return a.Echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

// errorHandler is the central Echo error handler. It maps AppErrors to their
// status and client-safe message, merges any machine-readable metadata into
// the body, and hides everything else behind a generic 500. Internal causes
// are logged here so handlers never have to.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := apperror.SafeCode(err)
	body := map[string]any{
		"message": apperror.SafeMessage(err),
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		body["type"] = appErr.Type
		for k, v := range appErr.Meta {
			body[k] = v
		}
		if appErr.Internal != nil {
			slog.Error("request failed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status", code),
				slog.Any("error", appErr.Internal),
			)
		}
	} else if httpErr, ok := err.(*echo.HTTPError); ok {
		// Echo's own errors (404 route miss, 405) keep their status but get
		// a JSON body consistent with the rest of the API.
		code = httpErr.Code
		body["message"] = fmt.Sprintf("%v", httpErr.Message)
	} else {
		slog.Error("unhandled error",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.Any("error", err),
		)
	}

	if jsonErr := c.JSON(code, body); jsonErr != nil {
		slog.Error("writing error response", slog.Any("error", jsonErr))
	}
}
