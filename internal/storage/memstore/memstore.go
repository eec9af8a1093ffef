// Package memstore is an in-memory implementation of the storage methods used by
// the services. It backs unit tests and single-process development runs.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage"
)

// Store is a concurrency-safe in-memory store.
type Store struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	webhooks    map[string]*domain.TenantWebhookConfig
	credits     map[string]int64
	apiKeys     map[string]string
	keyUsage    map[keyUsageDay]int64
	audit       []*domain.AuditEntry
	failures    map[string]error
	nextAuditID int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*domain.Job),
		webhooks: make(map[string]*domain.TenantWebhookConfig),
		credits:  make(map[string]int64),
		apiKeys:  make(map[string]string),
		keyUsage: make(map[keyUsageDay]int64),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of the named method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) failure(method string) error {
	return s.failures[method]
}

// CreateJob stores a copy of job.
func (s *Store) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateJob"); err != nil {
		return err
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the job or domain.ErrJobNotFound.
func (s *Store) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetJob"); err != nil {
		return nil, err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// ClaimJob moves a QUEUED or RUNNING job to RUNNING.
func (s *Store) ClaimJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ClaimJob"); err != nil {
		return nil, err
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(domain.JobStatusRunning) {
		return nil, domain.ErrJobNotClaimable
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.UpdatedAt = now
	return cloneJob(job), nil
}

// MarkJobSucceeded records the result of a RUNNING job.
func (s *Store) MarkJobSucceeded(_ context.Context, jobID, resultRef string, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("MarkJobSucceeded"); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusRunning {
		return domain.ErrJobNotRunning
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusSucceeded
	job.ResultRef = &resultRef
	job.ResultSize = &sizeBytes
	job.ErrorCode, job.ErrorMessage = nil, nil
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

// MarkJobFailed records the failure of a RUNNING job.
func (s *Store) MarkJobFailed(_ context.Context, jobID, errorCode, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("MarkJobFailed"); err != nil {
		return err
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusRunning {
		return domain.ErrJobNotRunning
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorCode = &errorCode
	job.ErrorMessage = &errorMessage
	job.ResultRef, job.ResultSize = nil, nil
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

// ListJobsByTenant mirrors the keyset pagination of the PostgreSQL store.
func (s *Store) ListJobsByTenant(_ context.Context, filter storage.JobFilter) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListJobsByTenant"); err != nil {
		return nil, err
	}

	var out []*domain.Job
	for _, job := range s.jobs {
		if job.TenantID != filter.TenantID {
			continue
		}
		if filter.Since != nil && job.CreatedAt.Before(*filter.Since) {
			continue
		}
		if c := filter.Cursor; c != nil {
			if job.CreatedAt.After(c.CreatedAt) || (job.CreatedAt.Equal(c.CreatedAt) && job.ID >= c.JobID) {
				continue
			}
		}
		out = append(out, cloneJob(job))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

// Jobs returns copies of every stored job.
func (s *Store) Jobs() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	return out
}

// GetWebhookConfig returns the stored config or domain.ErrWebhookConfigNotFound.
func (s *Store) GetWebhookConfig(_ context.Context, tenantID string) (*domain.TenantWebhookConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetWebhookConfig"); err != nil {
		return nil, err
	}
	cfg, ok := s.webhooks[tenantID]
	if !ok {
		return nil, domain.ErrWebhookConfigNotFound
	}
	return cloneWebhookConfig(cfg), nil
}

// PutWebhookConfig replaces the tenant's config.
func (s *Store) PutWebhookConfig(_ context.Context, cfg *domain.TenantWebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("PutWebhookConfig"); err != nil {
		return err
	}
	stored := cloneWebhookConfig(cfg)
	if stored.UpdatedAt == nil {
		now := time.Now().UTC()
		stored.UpdatedAt = &now
	}
	s.webhooks[cfg.TenantID] = stored
	return nil
}

// IncrementCredits adds amount to the tenant's running credit total.
func (s *Store) IncrementCredits(_ context.Context, tenantID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("IncrementCredits"); err != nil {
		return err
	}
	s.credits[tenantID] += amount
	return nil
}

// CreditsUsedToday returns the tenant's credit total.
func (s *Store) CreditsUsedToday(_ context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits[tenantID], nil
}

// AddAPIKey registers an active key for tenantID.
func (s *Store) AddAPIKey(apiKey, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[apiKey] = tenantID
}

// LookupAPIKey resolves an active key to its tenant.
func (s *Store) LookupAPIKey(_ context.Context, apiKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("LookupAPIKey"); err != nil {
		return "", err
	}
	tenantID, ok := s.apiKeys[apiKey]
	if !ok {
		return "", domain.ErrAPIKeyNotFound
	}
	return tenantID, nil
}

type keyUsageDay struct {
	apiKey   string
	tenantID string
	day      string
}

// RecordAPIKeyUsage counts a request for the key on the current UTC day.
func (s *Store) RecordAPIKeyUsage(_ context.Context, apiKey, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("RecordAPIKeyUsage"); err != nil {
		return err
	}
	s.keyUsage[keyUsageDay{apiKey: apiKey, tenantID: tenantID, day: time.Now().UTC().Format(time.DateOnly)}]++
	return nil
}

// SeedAPIKeyUsage sets the request count of a key for one day.
func (s *Store) SeedAPIKeyUsage(apiKey, tenantID string, day time.Time, requests int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyUsage[keyUsageDay{apiKey: apiKey, tenantID: tenantID, day: day.UTC().Format(time.DateOnly)}] = requests
}

// ListAPIKeyUsageSince sums the tenant's key usage from the day of since onwards.
func (s *Store) ListAPIKeyUsageSince(_ context.Context, tenantID string, since time.Time) ([]domain.APIKeyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListAPIKeyUsageSince"); err != nil {
		return nil, err
	}

	from := since.UTC().Format(time.DateOnly)
	totals := make(map[string]int64)
	for k, n := range s.keyUsage {
		if k.tenantID == tenantID && k.day >= from {
			totals[k.apiKey] += n
		}
	}

	usage := make([]domain.APIKeyUsage, 0, len(totals))
	for key, n := range totals {
		usage = append(usage, domain.APIKeyUsage{APIKey: key, Requests: n})
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].APIKey < usage[j].APIKey })
	return usage, nil
}

// APIKeyUsage returns the number of recorded requests for the key across all days.
func (s *Store) APIKeyUsage(apiKey string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for k, n := range s.keyUsage {
		if k.apiKey == apiKey {
			total += n
		}
	}
	return total
}

// InsertAuditEntry appends entry to the log.
func (s *Store) InsertAuditEntry(_ context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("InsertAuditEntry"); err != nil {
		return err
	}
	s.nextAuditID++
	stored := *entry
	stored.ID = s.nextAuditID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.audit = append(s.audit, &stored)
	return nil
}

// ListAuditEntries returns the tenant's newest entries first.
func (s *Store) ListAuditEntries(_ context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListAuditEntries"); err != nil {
		return nil, err
	}
	var out []*domain.AuditEntry
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if s.audit[i].TenantID == tenantID {
			entry := *s.audit[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	c := *job
	return &c
}

func cloneWebhookConfig(cfg *domain.TenantWebhookConfig) *domain.TenantWebhookConfig {
	c := *cfg
	c.EnabledEventTypes = slices.Clone(cfg.EnabledEventTypes)
	if c.EnabledEventTypes == nil {
		c.EnabledEventTypes = []domain.EventType{}
	}
	return &c
}
