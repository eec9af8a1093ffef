package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage/memstore"
)

func TestMonthStart(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "mid month", now: time.Date(2026, 10, 15, 13, 4, 0, 0, time.UTC), want: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{name: "first instant", now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), want: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "converted to utc", now: time.Date(2026, 3, 1, 2, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)), want: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthStart(tt.now))
		})
	}
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	store := memstore.New()
	store.SeedAPIKeyUsage("sk_live_zeta", "t1", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), 3)
	store.SeedAPIKeyUsage("sk_live_zeta", "t1", time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), 4)
	store.SeedAPIKeyUsage("sk_live_alpha", "t1", time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), 1)
	store.SeedAPIKeyUsage("sk_live_alpha", "t1", time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), 50)
	store.SeedAPIKeyUsage("sk_live_other", "t2", time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC), 9)
	require.NoError(t, store.IncrementCredits(ctx, "t1", 2))

	report, err := Usage(ctx, store, "t1", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), report.MonthStart)
	assert.Equal(t, []domain.APIKeyUsage{
		{APIKey: "sk_liv****", Requests: 1},
		{APIKey: "sk_liv****", Requests: 7},
	}, report.Keys)
	assert.Equal(t, int64(2), report.CreditsToday)
}

func TestUsage_StoreFailure(t *testing.T) {
	store := memstore.New()
	store.FailOn("ListAPIKeyUsageSince", errors.New("connection reset"))

	_, err := Usage(context.Background(), store, "t1", time.Now())
	assert.ErrorContains(t, err, "connection reset")
}
