// Command server runs the RoadWatch API: admin authentication, OTP
// password recovery, and pothole report intake.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roadwatch/roadwatch/internal/app"
	"github.com/roadwatch/roadwatch/internal/config"
	"github.com/roadwatch/roadwatch/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		slog.Error("connecting to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db, "db/migrations"); err != nil {
		slog.Error("running migrations", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Error("connecting to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	a := app.New(cfg, db, rdb)

	go func() {
		if err := a.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Block until asked to stop, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		slog.Error("shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// setupLogging configures slog: human-readable text in development, JSON in
// production.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}
