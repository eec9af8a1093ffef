// Package webhook delivers job lifecycle events to tenant endpoints and manages
// the per-tenant webhook configuration.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/queue"
)

// TestEventMessage is the data message of a synthetic test delivery.
const TestEventMessage = "test event"

// ConfigStore reads and writes tenant webhook configuration.
type ConfigStore interface {
	GetWebhookConfig(ctx context.Context, tenantID string) (*domain.TenantWebhookConfig, error)
	PutWebhookConfig(ctx context.Context, cfg *domain.TenantWebhookConfig) error
}

// Presigner issues download URLs for rendered PDFs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// DispatcherConfig holds dispatcher dependencies and settings
type DispatcherConfig struct {
	Logger          *slog.Logger
	Configs         ConfigStore
	Presigner       Presigner
	Sender          *Sender
	Consumer        queue.Consumer
	PresignTTL      time.Duration
	Concurrency     int
	MaxDeliveries   int
	ShutdownTimeout time.Duration
	ConsumerTag     string
}

// Dispatcher consumes lifecycle events and POSTs them to tenant endpoints.
type Dispatcher struct {
	logger     *slog.Logger
	configs    ConfigStore
	presigner  Presigner
	sender     *Sender
	presignTTL time.Duration
	pool       *queue.Pool
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. Consumer may be nil when only Test is used.
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	tag := cfg.ConsumerTag
	if tag == "" {
		host, _ := os.Hostname()
		tag = fmt.Sprintf("webhook-dispatcher-%s-%d", host, os.Getpid())
	}

	presignTTL := cfg.PresignTTL
	if presignTTL <= 0 {
		presignTTL = 30 * time.Minute
	}

	d := &Dispatcher{
		logger:     cfg.Logger.With(slog.String("consumer_tag", tag)),
		configs:    cfg.Configs,
		presigner:  cfg.Presigner,
		sender:     cfg.Sender,
		presignTTL: presignTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}

	if cfg.Consumer != nil {
		d.pool = queue.NewPool(cfg.Consumer, d.HandleMessage, queue.PoolConfig{
			Name:            "webhook",
			ConsumerTag:     tag,
			Concurrency:     cfg.Concurrency,
			MaxDeliveries:   cfg.MaxDeliveries,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, cfg.Logger)
	}

	return d
}

// Start consumes lifecycle events until ctx is canceled
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.pool == nil {
		return errors.New("webhook dispatcher has no consumer")
	}

	d.logger.Info("Starting webhook dispatcher", slog.Duration("presign_ttl", d.presignTTL))

	if err := d.pool.Run(ctx); err != nil {
		return fmt.Errorf("webhook dispatcher stopped: %w", err)
	}

	d.logger.Info("Webhook dispatcher stopped")
	return nil
}

// HandleMessage decodes and dispatches one queued event.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg queue.Message) error {
	event, err := domain.ParseLifecycleEvent(msg.Body())
	if err != nil {
		d.logger.Error("Invalid lifecycle event",
			slog.String("body", string(msg.Body())),
			slog.Any("error", err),
		)
		return err
	}

	return d.Dispatch(ctx, event)
}

// Dispatch delivers event to its tenant's endpoint. Events for tenants with no URL
// or without the type enabled are dropped. Delivery failures are retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.LifecycleEvent) error {
	log := d.logger.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type())),
		slog.String("tenant_id", event.TenantID),
	)

	cfg, err := d.configs.GetWebhookConfig(ctx, event.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrWebhookConfigNotFound) {
			log.Debug("Skipping event - tenant has no webhook config")
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load webhook config: %w", err))
	}

	if !cfg.HasURL() {
		log.Debug("Skipping event - webhook url not set")
		return nil
	}

	if !cfg.Accepts(event.Type()) {
		log.Debug("Skipping event - type not enabled")
		return nil
	}

	payload := buildPayload(event, d.downloadURL(ctx, event, log))

	result, err := d.sender.Send(ctx, *cfg.WebhookURL, cfg.Secret(), payload)
	if err != nil {
		if errors.Is(err, ErrInvalidURL) {
			log.Error("Dropping event - stored webhook url is invalid", slog.Any("error", err))
			return err
		}
		log.Warn("Webhook delivery failed", slog.Any("error", err))
		return domain.NewRetryableError(domain.NewError(domain.KindUpstreamDelivery, "webhook delivery failed", err))
	}

	if !result.OK() {
		log.Warn("Webhook endpoint rejected delivery",
			slog.Int("status", result.StatusCode),
			slog.Duration("duration", result.Duration),
		)
		return domain.NewRetryableError(&domain.Error{
			Kind:    domain.KindUpstreamDelivery,
			Message: fmt.Sprintf("webhook endpoint responded %d", result.StatusCode),
			JobID:   event.JobID(),
		})
	}

	log.Info("Webhook delivered",
		slog.String("job_id", event.JobID()),
		slog.Int("status", result.StatusCode),
		slog.Duration("duration", result.Duration),
	)
	return nil
}

// downloadURL presigns the result of a succeeded job. Failures yield nil.
func (d *Dispatcher) downloadURL(ctx context.Context, event *domain.LifecycleEvent, log *slog.Logger) *string {
	succeeded, ok := event.Payload.(domain.JobSucceeded)
	if !ok || succeeded.ResultRef == "" || d.presigner == nil {
		return nil
	}

	u, err := d.presigner.PresignGet(ctx, succeeded.ResultRef, d.presignTTL)
	if err != nil {
		log.Warn("Failed to presign result - delivering without url",
			slog.String("result_ref", succeeded.ResultRef),
			slog.Any("error", err),
		)
		return nil
	}
	return &u
}

// Test sends a synthetic webhook.test event to the tenant's endpoint right away.
// A non-2xx answer is returned in the result, not as an error.
func (d *Dispatcher) Test(ctx context.Context, tenantID string) (DeliveryResult, error) {
	cfg, err := d.configs.GetWebhookConfig(ctx, tenantID)
	if err != nil && !errors.Is(err, domain.ErrWebhookConfigNotFound) {
		return DeliveryResult{}, fmt.Errorf("failed to load webhook config: %w", err)
	}
	if cfg == nil || !cfg.HasURL() {
		return DeliveryResult{}, domain.NewValidationError("Webhook is not configured")
	}

	event := &domain.LifecycleEvent{
		ID:        domain.NewTestEventID(),
		CreatedAt: d.now(),
		TenantID:  tenantID,
		Payload:   domain.WebhookTest{Message: TestEventMessage},
	}

	result, err := d.sender.Send(ctx, *cfg.WebhookURL, cfg.Secret(), buildPayload(event, nil))
	if err != nil {
		return result, domain.NewError(domain.KindUpstreamDelivery, "Webhook test failed", err)
	}

	d.logger.Info("Webhook test sent",
		slog.String("tenant_id", tenantID),
		slog.String("event_id", event.ID),
		slog.Int("status", result.StatusCode),
	)
	return result, nil
}
