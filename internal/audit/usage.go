package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

// UsageStore reads per-key request counts and credit usage.
type UsageStore interface {
	ListAPIKeyUsageSince(ctx context.Context, tenantID string, since time.Time) ([]domain.APIKeyUsage, error)
	CreditsUsedToday(ctx context.Context, tenantID string) (int64, error)
}

// UsageReport is a tenant's month-to-date API key usage.
type UsageReport struct {
	MonthStart   time.Time
	Keys         []domain.APIKeyUsage
	CreditsToday int64
}

// MonthStart returns midnight UTC on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Usage builds the tenant's usage report as of now. Keys are masked.
func Usage(ctx context.Context, store UsageStore, tenantID string, now time.Time) (*UsageReport, error) {
	start := MonthStart(now)

	keys, err := store.ListAPIKeyUsageSince(ctx, tenantID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load api key usage: %w", err)
	}
	for i := range keys {
		keys[i].APIKey = MaskAPIKey(keys[i].APIKey)
	}

	credits, err := store.CreditsUsedToday(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit usage: %w", err)
	}

	return &UsageReport{MonthStart: start, Keys: keys, CreditsToday: credits}, nil
}
