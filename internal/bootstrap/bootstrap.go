// Package bootstrap builds the shared infrastructure the service binaries run on.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuongbtq/render-jobs/internal/config"
	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/quota"
	"github.com/cuongbtq/render-jobs/internal/renderer"
	"github.com/cuongbtq/render-jobs/internal/storage"
	"github.com/cuongbtq/render-jobs/shared/logger"
	"github.com/cuongbtq/render-jobs/shared/postgresql"
	"github.com/cuongbtq/render-jobs/shared/rabbitmq"
	"github.com/cuongbtq/render-jobs/shared/redis"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// InitPostgreSQL connects to PostgreSQL and applies migrations when migrate_on_start is set
func InitPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	if !cfg.MigrateOnStart {
		log.Info("Skipping database migrations", slog.String("reason", "disabled via config"))
		return client, nil
	}

	if err := client.Migrate(ctx, storage.Migrations, storage.MigrationsDir); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// InitRabbitMQ connects a client bound to one queue topology
func InitRabbitMQ(cfg *config.RabbitMQConfig, topology *config.TopologyConfig, log *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQClientConfig(cfg, topology), log)
}

// RabbitMQClientConfig flattens the connection settings and one topology into a client config
func RabbitMQClientConfig(cfg *config.RabbitMQConfig, topology *config.TopologyConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       topology.Exchange.Name,
		ExchangeType:       topology.Exchange.Type,
		ExchangeDurable:    topology.Exchange.Durable,
		ExchangeAutoDelete: topology.Exchange.AutoDelete,
		QueueName:          topology.Queue.Name,
		QueueType:          topology.Queue.Type,
		QueueDurable:       topology.Queue.Durable,
		QueueAutoDelete:    topology.Queue.AutoDelete,
		QueueExclusive:     topology.Queue.Exclusive,
		RoutingKey:         topology.RoutingKey,
		DeadLetterExchange: topology.DeadLetter.Exchange,
		DeadLetterQueue:    topology.DeadLetter.Queue,
		DeliveryLimit:      topology.MaxDeliveries,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// InitContentStore builds the configured content store
func InitContentStore(ctx context.Context, cfg *config.StorageConfig, log *slog.Logger) (content.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("Using in-memory content store; content is not shared between processes")
		return content.NewMemoryStore(cfg.Endpoint), nil
	case config.BackendS3:
		store, err := content.NewS3Store(ctx, content.S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 content store: %w", err)
		}
		log.Info("S3 content store ready",
			slog.String("bucket", cfg.Bucket),
			slog.String("region", cfg.Region),
		)
		return store, nil
	default:
		return nil, fmt.Errorf("invalid storage backend: %q", cfg.Backend)
	}
}

// Quota is the daily quota checker with the client backing it, if any.
type Quota struct {
	Checker *quota.Checker
	Redis   *goredis.Client
}

// Close releases the Redis connection.
func (q *Quota) Close() error {
	if q == nil || q.Redis == nil {
		return nil
	}
	return q.Redis.Close()
}

// InitQuota builds the daily quota checker on the configured counter backend
func InitQuota(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Quota, error) {
	limit := int64(cfg.Quota.DailyLimit)
	if limit <= 0 {
		log.Info("Daily quota disabled")
		return &Quota{Checker: quota.NewChecker(nil, 0, cfg.Quota.KeyPrefix, log)}, nil
	}

	switch cfg.Quota.Backend {
	case config.BackendMemory:
		log.Warn("Using in-memory quota counter; limits are per process")
		return &Quota{Checker: quota.NewChecker(quota.NewMemoryCounter(), limit, cfg.Quota.KeyPrefix, log)}, nil
	case config.BackendRedis:
		client, err := redis.Connect(ctx, &redis.Config{
			URL:            cfg.Redis.URL,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize quota counter: %w", err)
		}
		return &Quota{
			Checker: quota.NewChecker(quota.NewRedisCounter(client), limit, cfg.Quota.KeyPrefix, log),
			Redis:   client,
		}, nil
	default:
		return nil, fmt.Errorf("invalid quota backend: %q", cfg.Quota.Backend)
	}
}

// InitRenderer builds the Chromium renderer, or nil when no renderer URL is configured
func InitRenderer(cfg *config.RendererConfig, log *slog.Logger) renderer.Renderer {
	if cfg.URL == "" {
		return nil
	}
	return renderer.NewChromiumRenderer(renderer.ChromiumConfig{
		BaseURL:  cfg.URL,
		Timeout:  cfg.Timeout,
		Username: cfg.Username,
		Password: cfg.Password,
	}, log)
}
