// Package admission accepts render submissions and serves the job views built on them.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/quota"
	"github.com/cuongbtq/render-jobs/internal/renderer"
	"github.com/cuongbtq/render-jobs/internal/storage"
)

// Submission modes.
const (
	ModeAsync  = "async"
	ModeWait   = "wait"
	ModeDirect = "direct"
)

// CodeInProgress marks a wait-mode submission that outlived the poll deadline.
const CodeInProgress = "IN_PROGRESS"

// JobStore is the slice of the job store admission needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobsByTenant(ctx context.Context, filter storage.JobFilter) ([]*domain.Job, error)
}

// CreditLedger records rendered output usage.
type CreditLedger interface {
	IncrementCredits(ctx context.Context, tenantID string, amount int64) error
}

// Config tunes submission behaviour.
type Config struct {
	DefaultMode        string
	PollInterval       time.Duration
	PollTimeout        time.Duration
	MaxInlineHTMLBytes int
	DownloadURLTTL     time.Duration
	RedirectURLTTL     time.Duration
}

// SubmitRequest is one job submission from an authenticated tenant.
type SubmitRequest struct {
	TenantID       string
	InputType      domain.InputType
	InputRef       string
	InlineHTML     string
	Options        *domain.RenderOptions
	IdempotencyKey string
	Mode           string
}

// Result is the outcome of a submission. Job is nil in direct mode; PDF is set
// when the document is returned inline; InProgress is set when wait mode timed out.
type Result struct {
	Mode       string
	Job        *domain.Job
	PDF        []byte
	InProgress bool
}

// Service admits jobs.
type Service struct {
	jobs      JobStore
	content   content.Store
	publisher queue.Publisher
	quota     *quota.Checker
	renderer  renderer.Renderer
	ledger    CreditLedger
	cfg       Config
	logger    *slog.Logger
}

// Deps bundles the collaborators of a Service. Renderer is only needed for direct mode.
type Deps struct {
	Jobs      JobStore
	Content   content.Store
	Publisher queue.Publisher
	Quota     *quota.Checker
	Renderer  renderer.Renderer
	Ledger    CreditLedger
	Logger    *slog.Logger
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeAsync
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 25 * time.Second
	}
	if cfg.DownloadURLTTL <= 0 {
		cfg.DownloadURLTTL = 10 * time.Minute
	}
	if cfg.RedirectURLTTL <= 0 {
		cfg.RedirectURLTTL = 5 * time.Minute
	}
	return &Service{
		jobs:      deps.Jobs,
		content:   deps.Content,
		publisher: deps.Publisher,
		quota:     deps.Quota,
		renderer:  deps.Renderer,
		ledger:    deps.Ledger,
		cfg:       cfg,
		logger:    deps.Logger,
	}
}

// Submit validates, charges the daily quota and runs the submission in its mode.
// Nothing is written before validation and the quota check pass.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	mode, err := s.resolveMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	allowed, err := s.quota.Allow(ctx, req.TenantID)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to check quota", err)
	}
	if !allowed {
		return nil, domain.NewError(domain.KindQuotaExceeded, "Quota exceeded", nil)
	}

	if mode == ModeDirect {
		return s.renderDirect(ctx, req)
	}

	job, err := s.enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	if mode == ModeAsync {
		return &Result{Mode: mode, Job: job}, nil
	}
	return s.waitForJob(ctx, job)
}

func (s *Service) resolveMode(mode string) (string, error) {
	switch mode {
	case "":
		return s.cfg.DefaultMode, nil
	case ModeAsync, ModeWait, ModeDirect:
		return mode, nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("unsupported mode %q", mode))
	}
}

func (s *Service) validate(req SubmitRequest) error {
	if req.TenantID == "" {
		return domain.NewError(domain.KindUnauthorized, "Unauthorized", nil)
	}
	if !req.InputType.Valid() {
		return domain.NewValidationError("inputType must be HTML or URL")
	}
	if strings.TrimSpace(req.InputRef) == "" {
		return domain.NewValidationError("inputRef is required")
	}

	switch req.InputType {
	case domain.InputTypeURL:
		u, err := url.Parse(req.InputRef)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.NewValidationError("inputRef must be an absolute http(s) URL")
		}
		if req.InlineHTML != "" {
			return domain.NewValidationError("inputHtml is only allowed for HTML inputs")
		}
	case domain.InputTypeHTML:
		if req.InputRef == domain.InlineInputRef {
			if req.InlineHTML == "" {
				return domain.NewValidationError("inputHtml is required when inputRef=INLINE")
			}
		} else if req.InlineHTML == "" && !strings.HasPrefix(req.InputRef, domain.InputPrefix(req.TenantID)) {
			return domain.NewValidationError("inputRef must reference the tenant's stored inputs")
		}
		if s.cfg.MaxInlineHTMLBytes > 0 && len(req.InlineHTML) > s.cfg.MaxInlineHTMLBytes {
			return domain.NewValidationError(fmt.Sprintf("inputHtml exceeds %d bytes", s.cfg.MaxInlineHTMLBytes))
		}
	}

	if err := req.Options.Validate(); err != nil {
		return err
	}
	return nil
}

// enqueue stores inline HTML, writes the QUEUED job and publishes its render request.
func (s *Service) enqueue(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	jobID, err := domain.NewJobID()
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to allocate job id", err)
	}

	inputRef := req.InputRef
	if req.InputType == domain.InputTypeHTML && req.InlineHTML != "" {
		key := domain.InputKey(req.TenantID, jobID)
		if err := s.content.Put(ctx, key, []byte(req.InlineHTML), content.ContentTypeHTML); err != nil {
			return nil, domain.NewError(domain.KindInternal, "Failed to store input", err)
		}
		inputRef = key
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        jobID,
		TenantID:  req.TenantID,
		Status:    domain.JobStatusQueued,
		InputType: req.InputType,
		InputRef:  inputRef,
		Options:   req.Options,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		job.IdempotencyKey = &key
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to create job", err)
	}

	body, err := json.Marshal(domain.NewRenderRequest(job))
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to encode render request", err)
	}
	if err := s.publisher.Publish(ctx, body); err != nil {
		s.logger.Error("Job created but render request not published",
			slog.String("job_id", job.ID),
			slog.String("tenant_id", job.TenantID),
			slog.Any("error", err),
		)
		return nil, &domain.Error{Kind: domain.KindInternal, Message: "Failed to enqueue job", JobID: job.ID, Err: err}
	}

	s.logger.Info("Job admitted",
		slog.String("job_id", job.ID),
		slog.String("tenant_id", job.TenantID),
		slog.String("input_type", string(job.InputType)),
	)
	return job, nil
}

// waitForJob polls the job until it is terminal or the poll deadline passes.
func (s *Service) waitForJob(ctx context.Context, job *domain.Job) (*Result, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	current := job
	for {
		select {
		case <-pollCtx.Done():
			return &Result{Mode: ModeWait, Job: current, InProgress: true}, nil
		case <-ticker.C:
		}

		latest, err := s.jobs.GetJob(pollCtx, job.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				return &Result{Mode: ModeWait, Job: current, InProgress: true}, nil
			}
			s.logger.Warn("Failed to poll job", slog.String("job_id", job.ID), slog.Any("error", err))
			continue
		}
		current = latest

		switch latest.Status {
		case domain.JobStatusSucceeded:
			if latest.ResultRef == nil {
				return nil, &domain.Error{Kind: domain.KindInternal, Message: "Missing output", JobID: job.ID}
			}
			// The poll deadline bounds waiting, not reading a finished result.
			pdf, err := s.content.Get(ctx, *latest.ResultRef)
			if err != nil {
				return nil, &domain.Error{Kind: domain.KindInternal, Message: "Failed to read output", JobID: job.ID, Err: err}
			}
			return &Result{Mode: ModeWait, Job: latest, PDF: pdf}, nil

		case domain.JobStatusFailed:
			return nil, jobFailure(latest)
		}
	}
}

func jobFailure(job *domain.Job) error {
	e := &domain.Error{Kind: domain.KindRenderFailed, Message: "Render failed", JobID: job.ID}
	if job.ErrorCode != nil {
		e.Code = *job.ErrorCode
		if *job.ErrorCode == domain.ErrorCodeContentFetchFailed {
			e.Kind = domain.KindContentFetch
		}
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		e.Message = *job.ErrorMessage
	}
	return e
}

// renderDirect renders inline without a job record and charges credits for the output.
func (s *Service) renderDirect(ctx context.Context, req SubmitRequest) (*Result, error) {
	if s.renderer == nil {
		return nil, domain.NewError(domain.KindConfiguration, "Direct rendering is not configured", nil)
	}

	renderReq := renderer.Request{Options: req.Options}
	switch {
	case req.InputType == domain.InputTypeURL:
		renderReq.URL = req.InputRef
	case req.InlineHTML != "":
		renderReq.HTML = req.InlineHTML
	default:
		html, err := s.content.Get(ctx, req.InputRef)
		if err != nil {
			if errors.Is(err, domain.ErrContentNotFound) {
				return nil, domain.NewValidationError("inputRef does not exist")
			}
			return nil, domain.NewError(domain.KindContentFetch, "Failed to fetch input", err)
		}
		renderReq.HTML = string(html)
	}

	pdf, err := s.renderer.Render(ctx, renderReq)
	if err != nil {
		return nil, domain.NewError(domain.KindRenderFailed, "Render failed", err)
	}

	s.chargeCredits(ctx, req.TenantID, int64(len(pdf)))
	return &Result{Mode: ModeDirect, PDF: pdf}, nil
}

// chargeCredits is best-effort: a ledger failure never fails the render.
func (s *Service) chargeCredits(ctx context.Context, tenantID string, size int64) {
	if s.ledger == nil {
		return
	}
	credits := domain.CreditsForBytes(size)
	if err := s.ledger.IncrementCredits(context.WithoutCancel(ctx), tenantID, credits); err != nil {
		s.logger.Error("Failed to increment credit usage",
			slog.String("tenant_id", tenantID),
			slog.Int64("credits", credits),
			slog.Any("error", err),
		)
	}
}
