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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/render-jobs/internal/bootstrap"
	"github.com/cuongbtq/render-jobs/internal/config"
	"github.com/cuongbtq/render-jobs/internal/events"
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/storage"
	"github.com/cuongbtq/render-jobs/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
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

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	renderClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, &cfg.RabbitMQ.Render, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize render queue: %w", err)
	}
	defer renderClient.Close()

	webhookClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, &cfg.RabbitMQ.Webhook, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook queue: %w", err)
	}
	defer webhookClient.Close()

	contentStore, err := bootstrap.InitContentStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}

	store := storage.NewStorage(dbClient.GetDB(), logger)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:          logger,
		Jobs:            store,
		Content:         contentStore,
		Renderer:        bootstrap.InitRenderer(&cfg.Renderer, logger),
		Ledger:          store,
		Emitter:         events.NewEmitter(queue.NewRabbitQueue(webhookClient), logger),
		Consumer:        queue.NewRabbitQueue(renderClient),
		Concurrency:     cfg.Worker.Concurrency,
		JobTimeout:      cfg.Worker.JobTimeout,
		MaxDeliveries:   cfg.RabbitMQ.Render.MaxDeliveries,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		ConsumerTag:     cfg.Worker.ConsumerTag,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInstance.Start(gCtx)
	})

	logger.Info("Worker service started successfully",
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", slog.Any("error", err))
		return err
	}

	logger.Info("Worker service shutdown complete")
	return nil
}
