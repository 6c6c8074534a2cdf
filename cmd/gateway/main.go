package main

import (
	"context"
	"errors"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sarthi/gateway/internal/cache"
	"sarthi/gateway/internal/cachestore"
	"sarthi/gateway/internal/config"
	"sarthi/gateway/internal/database"
	"sarthi/gateway/internal/handlers"
	"sarthi/gateway/internal/jobs"
	"sarthi/gateway/internal/log"
	"sarthi/gateway/internal/offline"
	"sarthi/gateway/internal/queue"
	"sarthi/gateway/internal/repository"
	"sarthi/gateway/internal/server"
	"sarthi/gateway/internal/session"
	"sarthi/gateway/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		logger.Warn().Msg("postgres not configured; login and generation journal disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, "sarthi-gateway")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var blobs cachestore.BlobStore
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		blobs = objectStore
	}

	origin, err := url.Parse(cfg.Offline.Origin)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid offline origin")
	}

	opts := offline.Options{
		Tag:          cfg.Offline.CacheTag,
		Origin:       origin,
		CoreManifest: cfg.Offline.CoreManifest,
	}
	if dbPool != nil {
		opts.Journal = repository.NewGenerationRepository(dbPool)
	}

	manager := offline.NewManager(
		cachestore.NewRedisStorage(redisClient, blobs),
		offline.NewHTTPFetcher(origin, cfg.Offline.FetchTimeout),
		opts,
		logger,
	)
	worker := offline.NewWorker(manager, logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = worker.Run(workerCtx)
	}()

	if err := worker.Install(ctx); err != nil {
		logger.Error().Err(err).Msg("offline install failed; serving network-only")
	} else if manager.SkipWaiting() {
		if err := worker.Activate(ctx); err != nil {
			logger.Error().Err(err).Msg("offline activate failed")
		}
	}

	registry := session.NewRegistry(func(contextID string) session.Storage {
		return session.NewRedisStorage(redisClient, contextID)
	}, cfg.Session.StorageKey, cfg.Session.IdleTTL, logger)
	go registry.Run(workerCtx)

	handlerSet, err := handlers.NewHandlerSet(logger, cfg, dbPool, redisClient, worker, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(queue.NewProducer(redisClient, cfg.Worker.Stream), cfg.Offline.CacheTag, cfg.Offline.SweepCron, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}
	scheduler.EnqueueInstall(ctx)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, func() {
		stopWorker()
		<-workerDone
	}, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, stopOffline func(), db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop(shutdownCtx)
	stopOffline()

	if db != nil {
		db.Close()
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("gateway exited cleanly")
}
