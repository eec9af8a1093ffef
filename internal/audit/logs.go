package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

// Log listing bounds. Out-of-range limits are clamped, not rejected.
const (
	DefaultLogLimit = 100
	MaxLogLimit     = 500
)

// LogStore reads a tenant's request log.
type LogStore interface {
	ListAuditEntries(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error)
}

// ParseLimit reads a limit query value. Missing or non-numeric values give the default.
func ParseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultLogLimit
	}
	return ClampLimit(limit)
}

// ClampLimit maps limit into 1..MaxLogLimit.
func ClampLimit(limit int) int {
	return min(max(limit, 1), MaxLogLimit)
}

// ListLogs returns the tenant's most recent request log entries, newest first.
func ListLogs(ctx context.Context, store LogStore, tenantID string, limit int) ([]*domain.AuditEntry, error) {
	entries, err := store.ListAuditEntries(ctx, tenantID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list request logs: %w", err)
	}
	return entries, nil
}
