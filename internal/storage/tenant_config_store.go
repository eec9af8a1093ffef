package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

type webhookConfigRow struct {
	TenantID          string         `db:"tenant_id"`
	WebhookURL        *string        `db:"webhook_url"`
	WebhookSecret     *string        `db:"webhook_secret"`
	EnabledEventTypes pq.StringArray `db:"enabled_event_types"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// GetWebhookConfig returns a tenant's stored webhook config or domain.ErrWebhookConfigNotFound
func (s *Storage) GetWebhookConfig(ctx context.Context, tenantID string) (*domain.TenantWebhookConfig, error) {
	query := `
		SELECT tenant_id, webhook_url, webhook_secret, enabled_event_types, updated_at
		FROM tenant_webhook_configs
		WHERE tenant_id = $1
	`

	var row webhookConfigRow
	if err := s.db.GetContext(ctx, &row, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWebhookConfigNotFound
		}
		return nil, fmt.Errorf("failed to get webhook config: %w", err)
	}

	types := make([]domain.EventType, 0, len(row.EnabledEventTypes))
	for _, t := range row.EnabledEventTypes {
		types = append(types, domain.EventType(t))
	}

	updatedAt := row.UpdatedAt
	return &domain.TenantWebhookConfig{
		TenantID:          row.TenantID,
		WebhookURL:        row.WebhookURL,
		WebhookSecret:     row.WebhookSecret,
		EnabledEventTypes: types,
		UpdatedAt:         &updatedAt,
	}, nil
}

// PutWebhookConfig creates or replaces a tenant's webhook config
func (s *Storage) PutWebhookConfig(ctx context.Context, cfg *domain.TenantWebhookConfig) error {
	query := `
		INSERT INTO tenant_webhook_configs (
			tenant_id, webhook_url, webhook_secret, enabled_event_types, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE
		SET webhook_url = EXCLUDED.webhook_url,
		    webhook_secret = EXCLUDED.webhook_secret,
		    enabled_event_types = EXCLUDED.enabled_event_types,
		    updated_at = EXCLUDED.updated_at
	`

	types := make(pq.StringArray, 0, len(cfg.EnabledEventTypes))
	for _, t := range cfg.EnabledEventTypes {
		types = append(types, string(t))
	}

	updatedAt := time.Now().UTC()
	if cfg.UpdatedAt != nil {
		updatedAt = *cfg.UpdatedAt
	}

	if _, err := s.db.ExecContext(ctx, query, cfg.TenantID, cfg.WebhookURL, cfg.WebhookSecret, types, updatedAt); err != nil {
		return fmt.Errorf("failed to put webhook config: %w", err)
	}

	return nil
}
