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
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/storage"
	"github.com/cuongbtq/render-jobs/internal/webhook"
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

	defaultConfigPath := os.Getenv("DISPATCHER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatcher-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateDispatcherConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting webhook dispatcher service",
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

	webhookClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, &cfg.RabbitMQ.Webhook, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook queue: %w", err)
	}
	defer webhookClient.Close()

	contentStore, err := bootstrap.InitContentStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}

	dispatcher := webhook.NewDispatcher(&webhook.DispatcherConfig{
		Logger:          logger,
		Configs:         storage.NewStorage(dbClient.GetDB(), logger),
		Presigner:       contentStore,
		Sender:          webhook.NewSender(cfg.Webhook.DeliveryTimeout, cfg.Webhook.UserAgent),
		Consumer:        queue.NewRabbitQueue(webhookClient),
		PresignTTL:      cfg.Webhook.PresignTTL,
		Concurrency:     cfg.Webhook.Concurrency,
		MaxDeliveries:   cfg.RabbitMQ.Webhook.MaxDeliveries,
		ShutdownTimeout: cfg.Webhook.ShutdownTimeout,
		ConsumerTag:     cfg.Webhook.ConsumerTag,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Start(gCtx)
	})

	logger.Info("Webhook dispatcher started successfully",
		slog.Int("concurrency", cfg.Webhook.Concurrency),
	)

	if err := g.Wait(); err != nil {
		logger.Error("Dispatcher error", slog.Any("error", err))
		return err
	}

	logger.Info("Webhook dispatcher shutdown complete")
	return nil
}
