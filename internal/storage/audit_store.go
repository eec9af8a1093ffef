package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

type auditRow struct {
	ID           int64     `db:"id"`
	TenantID     string    `db:"tenant_id"`
	APIKey       *string   `db:"api_key"`
	Method       string    `db:"method"`
	Endpoint     string    `db:"endpoint"`
	StatusCode   int       `db:"status_code"`
	LatencyMs    int64     `db:"latency_ms"`
	InputType    *string   `db:"input_type"`
	JobID        *string   `db:"job_id"`
	ErrorMessage *string   `db:"error_message"`
	IP           *string   `db:"ip"`
	UserAgent    *string   `db:"user_agent"`
	CreatedAt    time.Time `db:"created_at"`
}

// InsertAuditEntry appends one request to the tenant's audit log
func (s *Storage) InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO api_request_logs (
			tenant_id, api_key, method, endpoint, status_code, latency_ms,
			input_type, job_id, error_message, ip, user_agent, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		)
	`

	var apiKey *string
	if entry.APIKey != "" {
		apiKey = &entry.APIKey
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.TenantID, apiKey, entry.Method, entry.Endpoint, entry.StatusCode, entry.LatencyMs,
		entry.InputType, entry.JobID, entry.ErrorMessage, entry.IP, entry.UserAgent, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// ListAuditEntries returns the tenant's most recent audit entries, newest first
func (s *Storage) ListAuditEntries(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, api_key, method, endpoint, status_code, latency_ms,
		       input_type, job_id, error_message, ip, user_agent, created_at
		FROM api_request_logs
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, query, tenantID, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		entry := &domain.AuditEntry{
			ID:           r.ID,
			TenantID:     r.TenantID,
			Method:       r.Method,
			Endpoint:     r.Endpoint,
			StatusCode:   r.StatusCode,
			LatencyMs:    r.LatencyMs,
			InputType:    r.InputType,
			JobID:        r.JobID,
			ErrorMessage: r.ErrorMessage,
			IP:           r.IP,
			UserAgent:    r.UserAgent,
			CreatedAt:    r.CreatedAt,
		}
		if r.APIKey != nil {
			entry.APIKey = *r.APIKey
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
