package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/render-jobs/shared/rabbitmq"
)

// RabbitQueue adapts a shared/rabbitmq client bound to one topology.
type RabbitQueue struct {
	client *rabbitmq.Client
}

// NewRabbitQueue wraps client.
func NewRabbitQueue(client *rabbitmq.Client) *RabbitQueue {
	return &RabbitQueue{client: client}
}

// Publish sends a persistent JSON message.
func (q *RabbitQueue) Publish(ctx context.Context, body []byte) error {
	return q.client.Publish(ctx, body, ContentTypeJSON)
}

// Consume starts a manual-ack consumer and forwards its deliveries until ctx ends.
func (q *RabbitQueue) Consume(ctx context.Context, consumerTag string) (<-chan Message, error) {
	deliveries, err := q.client.Consume(consumerTag)
	if err != nil {
		return nil, err
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- &rabbitMessage{delivery: d}:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

type rabbitMessage struct {
	delivery amqp.Delivery
}

func (m *rabbitMessage) Body() []byte { return m.delivery.Body }

func (m *rabbitMessage) DeliveryCount() int { return rabbitmq.DeliveryCount(m.delivery) }

func (m *rabbitMessage) Ack() error { return m.delivery.Ack(false) }

func (m *rabbitMessage) Nack(requeue bool) error { return m.delivery.Nack(false, requeue) }
