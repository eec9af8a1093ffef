package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue with broker-like settlement: a requeued
// message is delivered again with its delivery count bumped, a rejected one
// lands in the dead-letter list.
type MemoryQueue struct {
	mu          sync.Mutex
	pending     chan *memoryMessage
	published   [][]byte
	acked       [][]byte
	deadLetters [][]byte
	closed      bool
}

// NewMemoryQueue creates a queue holding up to capacity unconsumed messages.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{pending: make(chan *memoryMessage, capacity)}
}

func (q *MemoryQueue) Publish(ctx context.Context, body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.published = append(q.published, append([]byte(nil), body...))
	q.mu.Unlock()

	return q.enqueue(ctx, &memoryMessage{queue: q, body: body})
}

func (q *MemoryQueue) enqueue(ctx context.Context, m *memoryMessage) error {
	select {
	case q.pending <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, _ string) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-q.pending:
				select {
				case out <- m:
				case <-ctx.Done():
					q.pending <- m
					return
				}
			}
		}
	}()
	return out, nil
}

// Close makes later publishes fail.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Published returns every body ever published.
func (q *MemoryQueue) Published() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.published...)
}

// Acked returns the bodies of acknowledged messages.
func (q *MemoryQueue) Acked() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.acked...)
}

// DeadLetters returns the bodies of rejected messages.
func (q *MemoryQueue) DeadLetters() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.deadLetters...)
}

// Pending returns the number of messages waiting for a consumer.
func (q *MemoryQueue) Pending() int {
	return len(q.pending)
}

// Next pops one pending message without a consumer, for tests driving a handler directly.
func (q *MemoryQueue) Next() (Message, bool) {
	select {
	case m := <-q.pending:
		return m, true
	default:
		return nil, false
	}
}

type memoryMessage struct {
	queue      *MemoryQueue
	body       []byte
	deliveries int
}

func (m *memoryMessage) Body() []byte { return m.body }

func (m *memoryMessage) DeliveryCount() int { return m.deliveries }

func (m *memoryMessage) Ack() error {
	m.queue.mu.Lock()
	defer m.queue.mu.Unlock()
	m.queue.acked = append(m.queue.acked, m.body)
	return nil
}

func (m *memoryMessage) Nack(requeue bool) error {
	if requeue {
		return m.queue.enqueue(context.Background(), &memoryMessage{
			queue:      m.queue,
			body:       m.body,
			deliveries: m.deliveries + 1,
		})
	}
	m.queue.mu.Lock()
	defer m.queue.mu.Unlock()
	m.queue.deadLetters = append(m.queue.deadLetters, m.body)
	return nil
}
