package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// JobView is a job as shown to its tenant.
type JobView struct {
	Job         *domain.Job
	DownloadURL string
}

// JobPage is one page of a tenant's jobs, newest first.
type JobPage struct {
	Jobs    []*domain.Job
	HasMore bool
}

// GetJob returns the tenant's job with a short-lived download URL when it succeeded.
// Jobs of other tenants are reported as not found.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (*JobView, error) {
	job, err := s.ownedJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobView{Job: job}
	if job.Status == domain.JobStatusSucceeded && job.ResultRef != nil {
		url, err := s.content.PresignGet(ctx, *job.ResultRef, s.cfg.DownloadURLTTL)
		if err != nil {
			s.logger.Warn("Failed to presign download URL",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		} else {
			view.DownloadURL = url
		}
	}
	return view, nil
}

// PDFURL returns a short-lived URL for the job's PDF, or a conflict while it is not ready.
func (s *Service) PDFURL(ctx context.Context, tenantID, jobID string) (string, error) {
	job, err := s.ownedJob(ctx, tenantID, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != domain.JobStatusSucceeded || job.ResultRef == nil {
		return "", &domain.Error{Kind: domain.KindConflict, Message: "PDF not ready", JobID: job.ID}
	}

	url, err := s.content.PresignGet(ctx, *job.ResultRef, s.cfg.RedirectURLTTL)
	if err != nil {
		return "", &domain.Error{Kind: domain.KindInternal, Message: "Failed to create download URL", JobID: job.ID, Err: err}
	}
	return url, nil
}

// ListJobs pages through a tenant's jobs.
func (s *Service) ListJobs(ctx context.Context, tenantID string, since *time.Time, cursor *storage.JobCursor, pageSize int) (*JobPage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	jobs, err := s.jobs.ListJobsByTenant(ctx, storage.JobFilter{
		TenantID: tenantID,
		Since:    since,
		PageSize: pageSize,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to list jobs", err)
	}

	page := &JobPage{Jobs: jobs}
	if len(jobs) > pageSize {
		page.Jobs = jobs[:pageSize]
		page.HasMore = true
	}
	return page, nil
}

func (s *Service) ownedJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, domain.NewNotFoundError("Not found")
		}
		return nil, domain.NewError(domain.KindInternal, "Failed to get job", err)
	}
	if job.TenantID != tenantID {
		return nil, domain.NewNotFoundError("Not found")
	}
	return job, nil
}
