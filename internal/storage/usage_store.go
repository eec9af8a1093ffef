package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

// IncrementCredits adds amount to the tenant's credit usage for the current UTC day
func (s *Storage) IncrementCredits(ctx context.Context, tenantID string, amount int64) error {
	query := `
		INSERT INTO credit_usage (tenant_id, usage_date, credits, updated_at)
		VALUES ($1, (NOW() AT TIME ZONE 'UTC')::date, $2, NOW())
		ON CONFLICT (tenant_id, usage_date) DO UPDATE
		SET credits = credit_usage.credits + EXCLUDED.credits,
		    updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, tenantID, amount); err != nil {
		return fmt.Errorf("failed to increment credits: %w", err)
	}

	return nil
}

// CreditsUsedToday returns the tenant's credit usage for the current UTC day
func (s *Storage) CreditsUsedToday(ctx context.Context, tenantID string) (int64, error) {
	query := `
		SELECT credits FROM credit_usage
		WHERE tenant_id = $1 AND usage_date = (NOW() AT TIME ZONE 'UTC')::date
	`

	var credits int64
	if err := s.db.GetContext(ctx, &credits, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get credit usage: %w", err)
	}

	return credits, nil
}

// LookupAPIKey resolves an ACTIVE API key to its tenant
func (s *Storage) LookupAPIKey(ctx context.Context, apiKey string) (string, error) {
	query := `SELECT tenant_id FROM api_keys WHERE key = $1 AND status = 'ACTIVE'`

	var tenantID string
	if err := s.db.GetContext(ctx, &tenantID, query, apiKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrAPIKeyNotFound
		}
		return "", fmt.Errorf("failed to lookup api key: %w", err)
	}

	return tenantID, nil
}

// RecordAPIKeyUsage bumps the key's daily request counter and last_used_at
func (s *Storage) RecordAPIKeyUsage(ctx context.Context, apiKey, tenantID string) error {
	usageQuery := `
		INSERT INTO api_key_usage (api_key, tenant_id, usage_date, request_count)
		VALUES ($1, $2, (NOW() AT TIME ZONE 'UTC')::date, 1)
		ON CONFLICT (api_key, usage_date) DO UPDATE
		SET request_count = api_key_usage.request_count + 1
	`
	if _, err := s.db.ExecContext(ctx, usageQuery, apiKey, tenantID); err != nil {
		return fmt.Errorf("failed to increment api key usage: %w", err)
	}

	lastUsedQuery := `UPDATE api_keys SET last_used_at = NOW() WHERE key = $1 AND tenant_id = $2`
	if _, err := s.db.ExecContext(ctx, lastUsedQuery, apiKey, tenantID); err != nil {
		return fmt.Errorf("failed to update api key last_used_at: %w", err)
	}

	return nil
}

type keyUsageRow struct {
	APIKey   string `db:"api_key"`
	Requests int64  `db:"requests"`
}

// ListAPIKeyUsageSince sums the tenant's daily key usage from since (a UTC date) onwards
func (s *Storage) ListAPIKeyUsageSince(ctx context.Context, tenantID string, since time.Time) ([]domain.APIKeyUsage, error) {
	query := `
		SELECT api_key, SUM(request_count)::BIGINT AS requests
		FROM api_key_usage
		WHERE tenant_id = $1 AND usage_date >= $2::date
		GROUP BY api_key
		ORDER BY api_key
	`

	var rows []keyUsageRow
	if err := s.db.SelectContext(ctx, &rows, query, tenantID, since.UTC().Format(time.DateOnly)); err != nil {
		return nil, fmt.Errorf("failed to list api key usage: %w", err)
	}

	usage := make([]domain.APIKeyUsage, len(rows))
	for i, r := range rows {
		usage[i] = domain.APIKeyUsage{APIKey: r.APIKey, Requests: r.Requests}
	}
	return usage, nil
}
