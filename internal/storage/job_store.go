package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

type jobRow struct {
	ID              string                `db:"id"`
	TenantID        string                `db:"tenant_id"`
	Status          string                `db:"status"`
	InputType       string                `db:"input_type"`
	InputRef        string                `db:"input_ref"`
	Options         *domain.RenderOptions `db:"options"`
	ResultRef       *string               `db:"result_ref"`
	ResultSizeBytes *int64                `db:"result_size_bytes"`
	ErrorCode       *string               `db:"error_code"`
	ErrorMessage    *string               `db:"error_message"`
	IdempotencyKey  *string               `db:"idempotency_key"`
	CreatedAt       time.Time             `db:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at"`
	StartedAt       *time.Time            `db:"started_at"`
	FinishedAt      *time.Time            `db:"finished_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Status:         domain.JobStatus(r.Status),
		InputType:      domain.InputType(r.InputType),
		InputRef:       r.InputRef,
		Options:        r.Options,
		ResultRef:      r.ResultRef,
		ResultSize:     r.ResultSizeBytes,
		ErrorCode:      r.ErrorCode,
		ErrorMessage:   r.ErrorMessage,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}

const jobColumns = `
	id, tenant_id, status, input_type, input_ref, options,
	result_ref, result_size_bytes, error_code, error_message, idempotency_key,
	created_at, updated_at, started_at, finished_at`

// CreateJob inserts a new QUEUED job
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, tenant_id, status, input_type, input_ref,
			options, idempotency_key, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.TenantID,
		job.Status,
		job.InputType,
		job.InputRef,
		job.Options,
		job.IdempotencyKey,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by its ID
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain(), nil
}

// ClaimJob moves a QUEUED or RUNNING job to RUNNING and returns it.
// started_at is kept when a redelivered message resumes an interrupted attempt.
// Returns domain.ErrJobNotClaimable for terminal jobs and domain.ErrJobNotFound for unknown ids.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = COALESCE(started_at, NOW()),
		    updated_at = NOW()
		WHERE id = $2
		  AND status IN ($3, $4)
		RETURNING ` + jobColumns

	var row jobRow
	err := s.db.GetContext(ctx, &row, query,
		domain.JobStatusRunning, jobID, domain.JobStatusQueued, domain.JobStatusRunning)
	if err == nil {
		s.logger.Info("Job claimed successfully", slog.String("job_id", jobID))
		return row.toDomain(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
		return nil, getErr
	}

	s.logger.Warn("Failed to claim job - already in a terminal state",
		slog.String("job_id", jobID),
	)
	return nil, domain.ErrJobNotClaimable
}

// MarkJobSucceeded records the result of a RUNNING job
func (s *Storage) MarkJobSucceeded(ctx context.Context, jobID, resultRef string, sizeBytes int64) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result_ref = $2,
		    result_size_bytes = $3,
		    error_code = NULL,
		    error_message = NULL,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $4
		  AND status = $5
	`

	return s.finishJob(ctx, jobID, domain.JobStatusSucceeded, query,
		domain.JobStatusSucceeded, resultRef, sizeBytes, jobID, domain.JobStatusRunning)
}

// MarkJobFailed records the failure of a RUNNING job
func (s *Storage) MarkJobFailed(ctx context.Context, jobID, errorCode, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_code = $2,
		    error_message = $3,
		    result_ref = NULL,
		    result_size_bytes = NULL,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE id = $4
		  AND status = $5
	`

	return s.finishJob(ctx, jobID, domain.JobStatusFailed, query,
		domain.JobStatusFailed, errorCode, errorMessage, jobID, domain.JobStatusRunning)
}

func (s *Storage) finishJob(ctx context.Context, jobID string, status domain.JobStatus, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status update - no rows affected (job is not running)",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
		)
		return domain.ErrJobNotRunning
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)
	return nil
}

// JobFilter narrows a tenant job listing
type JobFilter struct {
	TenantID string
	Since    *time.Time
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last job on a page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobsByTenant returns up to PageSize+1 jobs, newest first.
// The extra row tells the caller whether another page exists.
func (s *Storage) ListJobsByTenant(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE tenant_id = $1`
	args := []any{filter.TenantID}
	argIdx := 2

	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, nil
}
