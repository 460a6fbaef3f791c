package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"santrack/dashboard/internal/apiclient"
	"santrack/dashboard/internal/cache"
	"santrack/dashboard/internal/config"
	"santrack/dashboard/internal/database"
	"santrack/dashboard/internal/guard"
	"santrack/dashboard/internal/handlers"
	"santrack/dashboard/internal/jobs"
	"santrack/dashboard/internal/log"
	"santrack/dashboard/internal/repository"
	"santrack/dashboard/internal/security"
	"santrack/dashboard/internal/server"
	"santrack/dashboard/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx := context.Background()

	storage, closer, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Session.Backend).Msg("failed to open session storage")
	}

	client, err := apiclient.New(apiclient.Options{
		BaseURL:    cfg.Identity.BaseURL,
		Timeout:    cfg.Identity.Timeout,
		MaxRetries: cfg.Identity.MaxRetries,
		RetryDelay: cfg.Identity.RetryDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build api client")
	}

	store := session.NewStore(client, storage, logger.With().Str("component", "session").Logger(),
		session.WithTTL(cfg.Session.TTL),
		session.WithVerifyTimeout(cfg.Identity.Timeout+5*time.Second),
	)

	g := guard.New(cfg.Routes.LoginPath, cfg.Routes.UnauthorizedPath, guard.DefaultLanding())
	handlerSet := handlers.NewHandlerSet(logger, cfg, store, client, g, guard.DefaultRoutes())
	httpServer := server.NewHTTPServer(cfg, logger, store, handlerSet)

	scheduler := jobs.NewScheduler(store, cfg.Jobs, cfg.Session.IdleTimeout, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, store, closer)
}

// openStorage builds the configured session backend, sealing tokens at rest
// when a seal key is set.
func openStorage(ctx context.Context, cfg *config.AppConfig) (session.Storage, io.Closer, error) {
	var (
		storage session.Storage
		closer  io.Closer = nopCloser{}
	)

	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		storage, closer = cache.NewSessionCache(client), client
	case config.SessionBackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		storage, closer = repository.NewSessionRepository(pool), closerFunc(pool.Close)
	case config.SessionBackendMemory:
		storage = session.NewMemoryStorage()
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}

	if cfg.Session.SealKey != "" {
		sealer, err := security.NewSealer(cfg.Session.SealKey)
		if err != nil {
			_ = closer.Close()
			return nil, nil, fmt.Errorf("seal key: %w", err)
		}
		storage = session.NewSealedStorage(storage, sealer)
	}
	return storage, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, store *session.Store, storage io.Closer) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)
	store.Close()

	if err := storage.Close(); err != nil {
		logger.Error().Err(err).Msg("session storage close error")
	}

	logger.Info().Msg("server exited cleanly")
}
