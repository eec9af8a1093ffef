package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/render-jobs/internal/domain"
)

// Handler processes one message body. A nil error acks the message; a
// domain.RetryableError requeues it until the delivery limit; anything else
// dead-letters it.
type Handler func(ctx context.Context, msg Message) error

// PoolConfig configures a Pool.
type PoolConfig struct {
	Name            string
	ConsumerTag     string
	Concurrency     int
	MaxDeliveries   int
	ShutdownTimeout time.Duration
}

// Pool feeds deliveries from one consumer to N worker goroutines.
type Pool struct {
	logger   *slog.Logger
	consumer Consumer
	handler  Handler
	cfg      PoolConfig
	jobsChan chan Message
	wg       sync.WaitGroup
}

// NewPool creates a pool. Concurrency defaults to 1.
func NewPool(consumer Consumer, handler Handler, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = cfg.Name
	}
	return &Pool{
		logger:   logger.With(slog.String("pool", cfg.Name)),
		consumer: consumer,
		handler:  handler,
		cfg:      cfg,
		jobsChan: make(chan Message),
	}
}

// Run consumes until ctx is canceled or the delivery channel closes. In-flight
// messages get ShutdownTimeout to finish after ctx ends.
func (p *Pool) Run(ctx context.Context) error {
	deliveries, err := p.consumer.Consume(ctx, p.cfg.ConsumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	procCtx, cancelProc := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelProc()

	p.spawnWorkerPool(procCtx)

	dispatchErr := p.dispatch(ctx, deliveries)
	close(p.jobsChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if p.cfg.ShutdownTimeout > 0 {
		select {
		case <-done:
		case <-time.After(p.cfg.ShutdownTimeout):
			p.logger.Warn("Shutdown timeout exceeded, canceling in-flight messages")
			cancelProc()
			<-done
		}
	} else {
		<-done
	}

	p.logger.Info("Worker pool stopped")
	return dispatchErr
}

// dispatch hands deliveries to the pool until ctx ends or deliveries close.
func (p *Pool) dispatch(ctx context.Context, deliveries <-chan Message) error {
	p.logger.Info("Message dispatcher started", slog.String("consumer_tag", p.cfg.ConsumerTag))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case msg, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Warn("Delivery channel closed")
				return ErrDeliveriesClosed
			}

			select {
			case p.jobsChan <- msg:
			case <-ctx.Done():
				p.logger.Info("Message dispatcher stopped while dispatching")
				if err := msg.Nack(true); err != nil {
					p.logger.Error("Failed to NACK message on shutdown", slog.Any("error", err))
				}
				return nil
			}
		}
	}
}

func (p *Pool) spawnWorkerPool(ctx context.Context) {
	p.logger.Info("Spawning worker pool", slog.Int("concurrency", p.cfg.Concurrency))

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

func (p *Pool) workerLoop(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("%s-%d", p.cfg.Name, workerNum)
	for msg := range p.jobsChan {
		err := p.handler(ctx, msg)
		p.settle(workerName, msg, err)
	}
}

// settle acks or nacks msg according to the handler result.
func (p *Pool) settle(workerName string, msg Message, err error) {
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	requeue := p.shouldRequeue(msg, err)
	p.logger.Error("Message processing failed",
		slog.String("worker_name", workerName),
		slog.Int("delivery_count", msg.DeliveryCount()),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)

	if nackErr := msg.Nack(requeue); nackErr != nil {
		p.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.Any("error", nackErr),
		)
	}
}

// shouldRequeue requeues retryable failures until the delivery limit is reached.
func (p *Pool) shouldRequeue(msg Message, err error) bool {
	if errors.Is(err, domain.ErrInvalidPayload) || errors.Is(err, domain.ErrUnknownEventType) {
		return false
	}
	if !domain.IsRetryable(err) {
		return false
	}
	if p.cfg.MaxDeliveries > 0 && msg.DeliveryCount()+1 >= p.cfg.MaxDeliveries {
		return false
	}
	return true
}
