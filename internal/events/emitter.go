// Package events publishes job lifecycle notifications onto the webhook queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/queue"
)

// Emitter publishes lifecycle events. A nil Emitter or publisher disables emission.
type Emitter struct {
	publisher queue.Publisher
	logger    *slog.Logger
}

func NewEmitter(publisher queue.Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger}
}

// Publish encodes and enqueues one event.
func (e *Emitter) Publish(ctx context.Context, event *domain.LifecycleEvent) error {
	if e == nil || e.publisher == nil {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := e.publisher.Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type(), err)
	}
	return nil
}

// Emit builds an event for payload and publishes it. Failures are logged, not returned.
func (e *Emitter) Emit(ctx context.Context, tenantID string, payload domain.EventPayload) {
	if e == nil {
		return
	}
	event := domain.NewLifecycleEvent(tenantID, payload)
	if err := e.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to emit lifecycle event",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type())),
			slog.String("tenant_id", tenantID),
			slog.String("job_id", event.JobID()),
			slog.Any("error", err),
		)
		return
	}

	e.logger.Debug("Lifecycle event emitted",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type())),
		slog.String("job_id", event.JobID()),
	)
}
