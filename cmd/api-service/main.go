package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/render-jobs/internal/admission"
	"github.com/cuongbtq/render-jobs/internal/api/handler"
	"github.com/cuongbtq/render-jobs/internal/api/router"
	"github.com/cuongbtq/render-jobs/internal/audit"
	"github.com/cuongbtq/render-jobs/internal/auth"
	"github.com/cuongbtq/render-jobs/internal/bootstrap"
	"github.com/cuongbtq/render-jobs/internal/config"
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/storage"
	"github.com/cuongbtq/render-jobs/internal/webhook"
	"github.com/cuongbtq/render-jobs/shared/rabbitmq"
	"github.com/cuongbtq/render-jobs/shared/redis"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting API service",
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
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer renderClient.Close()

	contentStore, err := bootstrap.InitContentStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}

	quotaBackend, err := bootstrap.InitQuota(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer quotaBackend.Close()

	store := storage.NewStorage(dbClient.GetDB(), logger)
	recorder := audit.NewRecorder(store, logger)

	deps := &handler.Dependencies{
		Logger:      logger,
		ServiceName: cfg.App.Name,
		Admission: admission.NewService(admission.Deps{
			Jobs:      store,
			Content:   contentStore,
			Publisher: queue.NewRabbitQueue(renderClient),
			Quota:     quotaBackend.Checker,
			Renderer:  bootstrap.InitRenderer(&cfg.Renderer, logger),
			Ledger:    store,
			Logger:    logger,
		}, admission.Config{
			DefaultMode:        cfg.Admission.DefaultMode,
			PollInterval:       cfg.Admission.PollInterval,
			PollTimeout:        cfg.Admission.PollTimeout,
			MaxInlineHTMLBytes: cfg.Admission.MaxInlineHTMLBytes,
			DownloadURLTTL:     cfg.Admission.DownloadURLTTL,
			RedirectURLTTL:     cfg.Admission.RedirectURLTTL,
		}),
		Webhooks: webhook.NewConfigService(store, logger),
		Dispatcher: webhook.NewDispatcher(&webhook.DispatcherConfig{
			Logger:     logger,
			Configs:    store,
			Presigner:  contentStore,
			Sender:     webhook.NewSender(cfg.Webhook.DeliveryTimeout, cfg.Webhook.UserAgent),
			PresignTTL: cfg.Webhook.PresignTTL,
		}),
		AuditLogs: store,
		Usage:     store,
		Recorder:  recorder,
		Resolver:  initResolver(&cfg.Auth, store, logger),
		Checks:    healthChecks(dbClient.HealthCheck, renderClient, quotaBackend),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      initRouter(cfg.App.Environment, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server",
			slog.String("address", srv.Addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		recorder.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("API service stopped with error", slog.Any("error", err))
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}

func initResolver(cfg *config.AuthConfig, store *storage.Storage, logger *slog.Logger) *auth.Resolver {
	resolverCfg := auth.Config{
		StaticKeys:  cfg.APIKeys,
		DevAPIKey:   cfg.DevAPIKey,
		DevTenantID: cfg.DevTenantID,
	}
	if cfg.LookupDB {
		resolverCfg.Store = store
	}
	return auth.NewResolver(resolverCfg, logger)
}

func healthChecks(dbCheck func(context.Context) error, renderClient *rabbitmq.Client, q *bootstrap.Quota) []handler.HealthCheck {
	checks := []handler.HealthCheck{
		{Name: "database", Check: dbCheck},
		{Name: "rabbitmq", Check: func(context.Context) error {
			if !renderClient.IsConnected() {
				return errors.New("rabbitmq is not connected")
			}
			return nil
		}},
	}
	if q.Redis != nil {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redis.HealthCheck(ctx, q.Redis) },
		})
	}
	return checks
}

// initRouter sets the Gin mode and builds the router
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
