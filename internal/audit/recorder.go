// Package audit records API requests to the tenant-visible request log.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

const writeTimeout = 5 * time.Second

// Store persists audit entries.
type Store interface {
	InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}

// Recorder writes entries in the background. Write failures are logged and dropped.
type Recorder struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record schedules entry for insertion and returns immediately.
func (r *Recorder) Record(entry *domain.AuditEntry) {
	if r == nil || r.store == nil || entry == nil || entry.TenantID == "" {
		return
	}

	entry.APIKey = MaskAPIKey(entry.APIKey)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := r.store.InsertAuditEntry(ctx, entry); err != nil {
			r.logger.Error("Failed to record API request log",
				slog.String("tenant_id", entry.TenantID),
				slog.String("endpoint", entry.Endpoint),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// MaskAPIKey keeps a short prefix of key so logs identify it without exposing it.
func MaskAPIKey(key string) string {
	const visible = 6
	if key == "" {
		return ""
	}
	if len(key) <= visible {
		return "****"
	}
	return key[:visible] + "****"
}
