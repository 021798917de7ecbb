package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/bootstrap"
	"github.com/cuongbtq/translation-dispatch/internal/broker"
	"github.com/cuongbtq/translation-dispatch/internal/config"
	"github.com/cuongbtq/translation-dispatch/internal/reconciler"
	"github.com/cuongbtq/translation-dispatch/internal/storage"
	"github.com/cuongbtq/translation-dispatch/internal/translator"
	"github.com/cuongbtq/translation-dispatch/internal/worker"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	policy, err := bootstrap.RetryPolicy(&cfg.Worker.Retry)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := bootstrap.OpenDatabase(ctx, &cfg.Database, appLogger.Component("database"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := bootstrap.ConnectRabbitMQ(ctx, &cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	store := storage.NewSQLStore(dbClient.GetDB(), appLogger.Component("storage"))
	jobBroker := broker.NewRabbitMQ(rabbitClient, appLogger.Component("broker"))

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:           appLogger.Component("worker"),
		Store:            store,
		Broker:           jobBroker,
		Translator:       translator.NewDictionary(appLogger.Component("translator"), translator.WithLatency(cfg.Translator.Latency)),
		Policy:           policy,
		Concurrency:      cfg.Worker.Concurrency,
		TranslateTimeout: cfg.Worker.TranslateTimeout,
		StoreRetryDelay:  cfg.Worker.StoreRetryDelay,
		WriteTimeout:     cfg.Worker.WriteTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	if cfg.Reconciler.Enabled {
		sweeper := reconciler.New(store, jobBroker, reconciler.Config{
			Schedule:    cfg.Reconciler.Schedule,
			StaleAfter:  cfg.Reconciler.StaleAfter,
			BatchSize:   cfg.Reconciler.BatchSize,
			MaxAttempts: cfg.Producer.MaxAttempts,
		}, appLogger.Component("reconciler"))

		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	appLogger.Info("Worker service started successfully")

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
		}
		return err
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	}

	workerInstance.Stop()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit",
			slog.Duration("shutdown_timeout", cfg.Worker.ShutdownTimeout),
		)
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}
