// Package worker consumes render requests and drives each job to a terminal state.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/render-jobs/internal/content"
	"github.com/cuongbtq/render-jobs/internal/domain"
	"github.com/cuongbtq/render-jobs/internal/events"
	"github.com/cuongbtq/render-jobs/internal/queue"
	"github.com/cuongbtq/render-jobs/internal/renderer"
)

// JobStore is the slice of the job store the worker mutates.
type JobStore interface {
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	MarkJobSucceeded(ctx context.Context, jobID, resultRef string, sizeBytes int64) error
	MarkJobFailed(ctx context.Context, jobID, errorCode, errorMessage string) error
}

// CreditLedger records rendered output usage.
type CreditLedger interface {
	IncrementCredits(ctx context.Context, tenantID string, amount int64) error
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Jobs            JobStore
	Content         content.Store
	Renderer        renderer.Renderer
	Ledger          CreditLedger
	Emitter         *events.Emitter
	Consumer        queue.Consumer
	Concurrency     int
	JobTimeout      time.Duration
	MaxDeliveries   int
	ShutdownTimeout time.Duration
	ConsumerTag     string
}

// Worker represents the background render worker
type Worker struct {
	logger     *slog.Logger
	jobs       JobStore
	content    content.Store
	renderer   renderer.Renderer
	ledger     CreditLedger
	emitter    *events.Emitter
	pool       *queue.Pool
	workerID   string
	jobTimeout time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	workerID := cfg.ConsumerTag
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("render-worker-%s-%d", host, os.Getpid())
	}

	w := &Worker{
		logger:     cfg.Logger.With(slog.String("worker_id", workerID)),
		jobs:       cfg.Jobs,
		content:    cfg.Content,
		renderer:   cfg.Renderer,
		ledger:     cfg.Ledger,
		emitter:    cfg.Emitter,
		workerID:   workerID,
		jobTimeout: cfg.JobTimeout,
	}

	w.pool = queue.NewPool(cfg.Consumer, w.HandleMessage, queue.PoolConfig{
		Name:            "render",
		ConsumerTag:     workerID,
		Concurrency:     cfg.Concurrency,
		MaxDeliveries:   cfg.MaxDeliveries,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, cfg.Logger)

	return w
}

// Start consumes render requests until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Duration("job_timeout", w.jobTimeout),
	)

	if err := w.pool.Run(ctx); err != nil {
		return fmt.Errorf("render worker stopped: %w", err)
	}

	w.logger.Info("Worker stopped")
	return nil
}

// HandleMessage processes one render request delivery.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) error {
	req, err := parseRenderRequest(msg.Body())
	if err != nil {
		w.logger.Error("Invalid render request",
			slog.String("body", string(msg.Body())),
			slog.Any("error", err),
		)
		return err
	}

	return w.processJob(ctx, req, msg.DeliveryCount())
}
