// Package quota enforces the per-tenant daily job limit.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Counter increments a named counter that expires after ttl from its first increment.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Checker counts admissions per tenant and UTC day.
type Checker struct {
	counter   Counter
	limit     int64
	keyPrefix string
	logger    *slog.Logger
	now       func() time.Time
}

// NewChecker creates a checker. A limit of 0 disables the check and counter may be nil.
func NewChecker(counter Counter, limit int64, keyPrefix string, logger *slog.Logger) *Checker {
	if keyPrefix == "" {
		keyPrefix = "quota"
	}
	return &Checker{
		counter:   counter,
		limit:     limit,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       time.Now,
	}
}

// Enabled reports whether a daily limit is configured.
func (c *Checker) Enabled() bool {
	return c != nil && c.limit > 0 && c.counter != nil
}

// Allow counts one admission for tenantID and reports whether it fits in today's limit.
// The counter moves even when the admission is rejected.
func (c *Checker) Allow(ctx context.Context, tenantID string) (bool, error) {
	if !c.Enabled() {
		return true, nil
	}

	count, err := c.counter.Incr(ctx, c.key(tenantID), 24*time.Hour)
	if err != nil {
		return false, fmt.Errorf("failed to increment quota counter: %w", err)
	}

	if count > c.limit {
		c.logger.Warn("Daily quota exceeded",
			slog.String("tenant_id", tenantID),
			slog.Int64("count", count),
			slog.Int64("limit", c.limit),
		)
		return false, nil
	}
	return true, nil
}

func (c *Checker) key(tenantID string) string {
	return fmt.Sprintf("%s:%s:%s", c.keyPrefix, tenantID, c.now().UTC().Format(time.DateOnly))
}
