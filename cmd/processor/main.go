// Package main provides the standalone queue processor for the list sync
// service. It drains queued operations for all users on a fixed schedule,
// independent of any active UI session.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/listsync/internal/config"
	"github.com/listsync/internal/logging"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/queue"
	"github.com/listsync/internal/reconcile"
	"github.com/listsync/internal/retry"
	"github.com/listsync/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Queue processor starting")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Errorf("Failed to connect to Postgres: %v", err)
		os.Exit(1)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	defer redis.Close()

	opRepo := storage.NewOperationRepository(postgres)
	listCache := storage.NewListCache(redis, cfg.Cache.TTL)
	sessions := storage.NewSessionStore(redis)

	client, err := provider.NewHTTPClient(&provider.HTTPClientConfig{
		BaseURL:           cfg.Provider.BaseURL,
		Sessions:          sessions,
		RequestTimeout:    cfg.Provider.RequestTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	})
	if err != nil {
		logger.Errorf("Failed to create provider client: %v", err)
		os.Exit(1)
	}

	guarded := provider.NewBreakerClient(client, provider.NewBreaker(nil))

	executor, err := queue.NewExecutor(&queue.ExecutorConfig{
		Store:  opRepo,
		Client: guarded,
		Policy: retry.Policy{
			MaxRetries: cfg.Queue.MaxRetries,
			BaseDelay:  cfg.Queue.BaseDelay,
			MaxDelay:   cfg.Queue.MaxDelay,
			Multiplier: cfg.Queue.BackoffMultiplier,
		},
		Cache:    listCache,
		Notifier: reconcile.NewNotifier(),
		Logger:   logger,
	})
	if err != nil {
		logger.Errorf("Failed to create executor: %v", err)
		os.Exit(1)
	}

	processor, err := queue.NewProcessor(&queue.ProcessorConfig{
		Store:        opRepo,
		Executor:     executor,
		PollInterval: cfg.Queue.PollInterval,
		BatchSize:    cfg.Queue.BatchSize,
		Workers:      cfg.Queue.Workers,
		StaleAfter:   cfg.Queue.StaleAfter,
		Logger:       logger,
	})
	if err != nil {
		logger.Errorf("Failed to create processor: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		logger.Errorf("Failed to start processor: %v", err)
		os.Exit(1)
	}

	logger.Infof("Processing queue every %s", cfg.Queue.PollInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %v, shutting down", sig)

	if err := processor.Stop(); err != nil {
		logger.Errorf("Processor shutdown error: %v", err)
	}

	logger.Info("Shutdown complete")
}
