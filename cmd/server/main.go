package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/studysync/internal/adapter/eventpublisher"
	"github.com/pscheid92/studysync/internal/adapter/httpserver"
	"github.com/pscheid92/studysync/internal/adapter/metrics"
	"github.com/pscheid92/studysync/internal/adapter/postgres"
	"github.com/pscheid92/studysync/internal/adapter/redisstore"
	"github.com/pscheid92/studysync/internal/directory"
	"github.com/pscheid92/studysync/internal/engine"
	"github.com/pscheid92/studysync/internal/platform/config"
	"github.com/pscheid92/studysync/internal/platform/logging"
	"github.com/pscheid92/studysync/internal/platform/version"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting studysync", "version", version.Version, "commit", version.Commit, "env", cfg.AppEnv)
	metrics.BuildInfo.WithLabelValues(version.Version, version.Commit, version.GoVersion()).Set(1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return err
	}

	rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store := redisstore.New(rdb)
	repo := postgres.NewDirectoryRepo(pool)
	dir := directory.NewCached(repo, cfg.DirectoryCacheTTL, clock)
	profiles := directory.NewProfiles(repo, dir)
	events := eventpublisher.New(rdb, clock)

	svc := engine.New(store, dir, events, clock)

	sweeper := engine.NewSweeper(store, events, clock, cfg.SweepInterval, cfg.ExpiredRetention)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := httpserver.New(svc, profiles, cfg.Port, map[string]httpserver.Pinger{
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"postgres": pool.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Port)
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("Server stopped cleanly")
	return nil
}
