package main

import (
	"context"
	"errors"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"sarthi/gateway/internal/cache"
	"sarthi/gateway/internal/cachestore"
	"sarthi/gateway/internal/config"
	"sarthi/gateway/internal/database"
	"sarthi/gateway/internal/log"
	"sarthi/gateway/internal/offline"
	"sarthi/gateway/internal/queue"
	"sarthi/gateway/internal/repository"
	"sarthi/gateway/internal/storage"
	"sarthi/gateway/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Worker.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis, "sarthi-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var blobs cachestore.BlobStore
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
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
	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		logger.Info().Msg("postgres not configured; generation journal disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	default:
		defer dbPool.Close()
		opts.Journal = repository.NewGenerationRepository(dbPool)
	}

	manager := offline.NewManager(
		cachestore.NewRedisStorage(client, blobs),
		offline.NewHTTPFetcher(origin, cfg.Offline.FetchTimeout),
		opts,
		logger,
	)

	processor := tasks.NewProcessor(manager, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
	manager.Drain()
}
