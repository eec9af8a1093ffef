package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/config"
	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/shared/logger"
)

func TestInitContentStore(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNop()

	store, err := InitContentStore(ctx, &config.StorageConfig{Backend: config.BackendMemory, Endpoint: "http://files.local"}, log)
	require.NoError(t, err)
	assert.IsType(t, &content.MemoryStore{}, store)

	_, err = InitContentStore(ctx, &config.StorageConfig{Backend: config.BackendS3}, log)
	assert.ErrorIs(t, err, content.ErrInvalidConfig)

	_, err = InitContentStore(ctx, &config.StorageConfig{Backend: "gcs"}, log)
	assert.Error(t, err)
}

func TestInitQuota(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNop()

	tests := []struct {
		name        string
		quota       config.QuotaConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "disabled", quota: config.QuotaConfig{DailyLimit: 0, Backend: config.BackendRedis}},
		{name: "memory", quota: config.QuotaConfig{DailyLimit: 5, Backend: config.BackendMemory}, wantEnabled: true},
		{name: "unknown backend", quota: config.QuotaConfig{DailyLimit: 5, Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := InitQuota(ctx, &config.Config{Quota: tt.quota}, log)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer q.Close()
			assert.Equal(t, tt.wantEnabled, q.Checker.Enabled())
			assert.Nil(t, q.Redis)
		})
	}
}

func TestInitRenderer(t *testing.T) {
	log := logger.NewNop()

	assert.Nil(t, InitRenderer(&config.RendererConfig{}, log))
	assert.NotNil(t, InitRenderer(&config.RendererConfig{URL: "http://gotenberg:3000", Timeout: time.Minute}, log))
}

func TestRabbitMQClientConfig(t *testing.T) {
	rc := &config.RabbitMQConfig{
		Host:     "rabbit",
		Port:     5672,
		User:     "guest",
		Password: "guest",
		VHost:    "/",
		Consumer: config.ConsumerConfig{PrefetchCount: 8},
		Publish:  config.PublishConfig{RetryAttempts: 3, RetryInterval: 100 * time.Millisecond, BackoffMultiplier: 2},
	}
	topology := &config.TopologyConfig{
		Exchange:      config.ExchangeConfig{Name: "webhook", Type: "direct", Durable: true},
		Queue:         config.QueueConfig{Name: "webhook.events", Type: "quorum", Durable: true},
		RoutingKey:    "webhook.event",
		DeadLetter:    config.DeadLetter{Exchange: "webhook.dlx", Queue: "webhook.dlq"},
		MaxDeliveries: 5,
	}

	got := RabbitMQClientConfig(rc, topology)
	assert.Equal(t, "rabbit", got.Host)
	assert.Equal(t, "webhook", got.ExchangeName)
	assert.Equal(t, "webhook.events", got.QueueName)
	assert.Equal(t, "quorum", got.QueueType)
	assert.Equal(t, "webhook.event", got.RoutingKey)
	assert.Equal(t, "webhook.dlx", got.DeadLetterExchange)
	assert.Equal(t, "webhook.dlq", got.DeadLetterQueue)
	assert.Equal(t, 5, got.DeliveryLimit)
	assert.Equal(t, 8, got.PrefetchCount)
	assert.Equal(t, 3, got.PublishRetries)
}
