package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/config"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/database"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/server"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/services"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(db)
	authService, err := services.NewAuthService(ctx, cfg, userRepo)
	if err != nil {
		slog.Error("creating auth service", "error", err)
		os.Exit(1)
	}

	feed, err := openFeed(cfg)
	if err != nil {
		slog.Error("connecting change feed", "error", err)
		os.Exit(1)
	}
	defer feed.Close()

	srv, err := server.New(db, cfg, authService, feed)
	if err != nil {
		slog.Error("creating server", "error", err)
		os.Exit(1)
	}

	idleTimeout, err := cfg.IdleTimeout()
	if err != nil {
		slog.Error("reading view idle timeout", "error", err)
		os.Exit(1)
	}

	reconciler := services.NewCategoryReconciler(userRepo, calendar.NewBootstrapper(repository.NewCategoryRepository(db)))
	scheduler := cron.New()
	if _, err := reconciler.Schedule(scheduler, cfg.ReconcileSchedule); err != nil {
		slog.Error("scheduling category reconciliation", "error", err)
		os.Exit(1)
	}
	if _, err := srv.Views().ScheduleEviction(scheduler, "@every 5m", idleTimeout); err != nil {
		slog.Error("scheduling view eviction", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

// openFeed uses NATS when NATS_URL is set so that several instances share
// change notifications; otherwise changes stay in this process.
func openFeed(cfg config.Config) (changefeed.Feed, error) {
	if cfg.NATSURL == "" {
		slog.Info("using in-process change feed")
		return changefeed.NewMemoryFeed(), nil
	}
	return changefeed.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
