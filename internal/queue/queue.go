// Package queue carries render requests and lifecycle events between services and
// runs the consumer worker pools that settle each message exactly once.
package queue

import (
	"context"
	"errors"
)

// ContentTypeJSON is the content type of every message body published by the services.
const ContentTypeJSON = "application/json"

var (
	// ErrDeliveriesClosed is returned by a pool when the broker stops delivering.
	ErrDeliveriesClosed = errors.New("delivery channel closed")
	// ErrQueueClosed is returned when publishing to a closed queue.
	ErrQueueClosed = errors.New("queue closed")
)

// Message is one delivery. Exactly one of Ack or Nack must be called.
type Message interface {
	Body() []byte
	// DeliveryCount is the number of earlier deliveries of this message.
	DeliveryCount() int
	Ack() error
	// Nack rejects the message. With requeue=false the broker dead-letters it.
	Nack(requeue bool) error
}

// Publisher sends message bodies to a queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Consumer opens a stream of deliveries. The channel closes when ctx ends or the broker goes away.
type Consumer interface {
	Consume(ctx context.Context, consumerTag string) (<-chan Message, error)
}
