// Package main provides the HTTP API entry point for the list sync service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/listsync/internal/api"
	"github.com/listsync/internal/config"
	"github.com/listsync/internal/logging"
	"github.com/listsync/internal/provider"
	"github.com/listsync/internal/queue"
	"github.com/listsync/internal/reconcile"
	"github.com/listsync/internal/retry"
	"github.com/listsync/internal/service"
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
	logger.Info("List sync server starting")

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

	logger.Info("Database connections established")

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

	notifier := reconcile.NewNotifier()

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
		Notifier: notifier,
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

	listService, err := service.NewListService(&service.ListServiceConfig{
		Client:  guarded,
		Ops:     opRepo,
		Cache:   listCache,
		Drainer: processor,
		Timeout: cfg.Provider.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Errorf("Failed to create list service: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		logger.Errorf("Failed to start queue processor: %v", err)
		os.Exit(1)
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, listService)

	go func() {
		logger.Infof("Listening on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server error: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}

	if err := processor.Stop(); err != nil {
		logger.Errorf("Processor shutdown error: %v", err)
	}

	logger.Info("Shutdown complete")
}
