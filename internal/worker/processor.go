package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/renderer"
)

func parseRenderRequest(body []byte) (*domain.RenderRequest, error) {
	var req domain.RenderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// processJob claims the job, renders it and records the outcome. Render failures
// become job state; only job store failures are returned for redelivery.
func (w *Worker) processJob(ctx context.Context, req *domain.RenderRequest, deliveryCount int) error {
	logger := w.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("tenant_id", req.TenantID),
	)
	logger.Info("Processing job", slog.Int("delivery_count", deliveryCount))

	// Step 1: Claim job (QUEUED/RUNNING → RUNNING)
	job, err := w.jobs.ClaimJob(ctx, req.JobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotClaimable):
			logger.Info("Job already finished, skipping redelivery")
			return nil
		case errors.Is(err, domain.ErrJobNotFound):
			logger.Warn("Job not found, dropping render request")
			return nil
		default:
			return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
		}
	}

	if job.TenantID != req.TenantID {
		logger.Warn("Render request tenant does not match job, using stored job",
			slog.String("job_tenant_id", job.TenantID),
		)
	}

	w.emitter.Emit(ctx, job.TenantID, domain.JobStarted{
		JobID:     job.ID,
		Status:    domain.JobStatusRunning,
		InputType: job.InputType,
	})

	// Step 2: Resolve content
	renderReq := renderer.Request{Options: job.Options}
	switch job.InputType {
	case domain.InputTypeURL:
		renderReq.URL = job.InputRef
	default:
		html, err := w.content.Get(ctx, job.InputRef)
		if err != nil {
			if ctx.Err() != nil {
				return domain.NewRetryableError(ctx.Err())
			}
			return w.failJob(ctx, job, domain.ErrorCodeContentFetchFailed, fmt.Sprintf("failed to fetch input: %v", err))
		}
		renderReq.HTML = string(html)
	}

	// Step 3: Render within the job timeout
	pdf, err := w.render(ctx, renderReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewRetryableError(fmt.Errorf("render interrupted: %w", ctx.Err()))
		}
		return w.failJob(ctx, job, domain.ErrorCodeRenderFailed, err.Error())
	}

	size := int64(len(pdf))
	w.chargeCredits(ctx, job.TenantID, size)

	// Step 4: Store output
	resultRef := domain.OutputKey(job.TenantID, job.ID)
	if err := w.content.Put(ctx, resultRef, pdf, content.ContentTypePDF); err != nil {
		if ctx.Err() != nil {
			return domain.NewRetryableError(ctx.Err())
		}
		return w.failJob(ctx, job, domain.ErrorCodeOutputStoreFailed, fmt.Sprintf("failed to store output: %v", err))
	}

	// Step 5: Mark SUCCEEDED
	if err := w.jobs.MarkJobSucceeded(ctx, job.ID, resultRef, size); err != nil {
		if errors.Is(err, domain.ErrJobNotRunning) {
			logger.Warn("Job left RUNNING before completion was recorded")
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to mark job succeeded: %w", err))
	}

	w.emitter.Emit(ctx, job.TenantID, domain.JobSucceeded{
		JobID:           job.ID,
		Status:          domain.JobStatusSucceeded,
		InputType:       job.InputType,
		ResultRef:       resultRef,
		ResultSizeBytes: size,
	})

	logger.Info("Job completed successfully", slog.Int64("size_bytes", size))
	return nil
}

func (w *Worker) render(ctx context.Context, req renderer.Request) ([]byte, error) {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	return w.renderer.Render(ctx, req)
}

// failJob records a terminal failure and emits job.failed.
func (w *Worker) failJob(ctx context.Context, job *domain.Job, code, message string) error {
	w.logger.Error("Job failed",
		slog.String("job_id", job.ID),
		slog.String("error_code", code),
		slog.String("error", message),
	)

	if err := w.jobs.MarkJobFailed(ctx, job.ID, code, message); err != nil {
		if errors.Is(err, domain.ErrJobNotRunning) {
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to mark job failed: %w", err))
	}

	w.emitter.Emit(ctx, job.TenantID, domain.JobFailed{
		JobID:        job.ID,
		Status:       domain.JobStatusFailed,
		InputType:    job.InputType,
		ErrorCode:    code,
		ErrorMessage: message,
	})
	return nil
}

// chargeCredits is best-effort: a ledger failure never fails the job.
func (w *Worker) chargeCredits(ctx context.Context, tenantID string, size int64) {
	if w.ledger == nil {
		return
	}
	credits := domain.CreditsForBytes(size)
	if err := w.ledger.IncrementCredits(ctx, tenantID, credits); err != nil {
		w.logger.Error("Failed to increment credit usage",
			slog.String("tenant_id", tenantID),
			slog.Int64("credits", credits),
			slog.Any("error", err),
		)
	}
}
