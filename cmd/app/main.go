package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/billing"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/cache"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/config"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/httpserver"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/logging"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/metrics"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/repo"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/wa"
	"github.com/i9placesolutions/pulse-salon-manager-sub001/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	logger.Info("starting salon-manager", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	dispatcher := billing.NewDispatcher(repository, logger, metricRegistry, billing.Config{
		DeactivateOnPaymentFailure: cfg.BillingDeactivateOnPaymentFailure,
	})
	webhookHandler := billing.NewWebhookHandler(logger, metricRegistry, cfg.AsaasWebhookToken, dispatcher)

	waClient := wa.NewClient(wa.Config{
		BaseURL:    cfg.WABaseURL,
		AdminToken: cfg.WAAdminToken,
		Timeout:    cfg.WATimeout,
	}, logger, metricRegistry)

	instanceManager := wa.NewManager(ctx, wa.ManagerConfig{
		Client:       waClient,
		Store:        repository,
		Cache:        redisClient,
		PollInterval: cfg.WAPollInterval,
	}, logger, metricRegistry)
	defer instanceManager.Close()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Handlers{
		AsaasWebhook: webhookHandler,
	}, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Store:     repository,
		Redis:     redisClient,
		Instances: instanceManager,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
