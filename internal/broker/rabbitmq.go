package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/cuongbtq/translation-dispatch/shared/rabbitmq"
)

const contentTypeJSON = "application/json"

// RabbitMQ is a Broker on top of the shared RabbitMQ client
type RabbitMQ struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewRabbitMQ creates a RabbitMQ broker
func NewRabbitMQ(client *rabbitmq.Client, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{
		client: client,
		logger: logger,
	}
}

// Publish encodes msg and publishes it with the request id as AMQP message id
func (b *RabbitMQ) Publish(ctx context.Context, msg *domain.QueueMessage, delay time.Duration) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}

	err = b.client.Publish(ctx, rabbitmq.Message{
		Body:        body,
		MessageID:   msg.RequestID,
		ContentType: contentTypeJSON,
	}, delay)
	if err != nil {
		return fmt.Errorf("failed to publish translation %s: %w: %w", msg.RequestID, domain.ErrBrokerUnavailable, err)
	}

	b.logger.Info("Translation job published",
		slog.String("request_id", msg.RequestID),
		slog.Int("attempts", msg.Attempts),
		slog.Duration("delay", delay),
	)
	return nil
}

// Subscribe opens a consumer on its own channel
func (b *RabbitMQ) Subscribe(_ context.Context, consumerTag string) (Subscription, error) {
	consumer, err := b.client.Consume(consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w: %w", consumerTag, domain.ErrBrokerUnavailable, err)
	}

	b.logger.Info("Subscribed to work queue",
		slog.String("queue", b.client.QueueName()),
		slog.String("consumer_tag", consumerTag),
	)
	return &rabbitSubscription{consumer: consumer}, nil
}

// Stats inspects the work queue
func (b *RabbitMQ) Stats(_ context.Context) (QueueStats, error) {
	queue, err := b.client.QueueInfo()
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to read queue stats: %w: %w", domain.ErrBrokerUnavailable, err)
	}
	return QueueStats{
		Queue:     queue.Name,
		Messages:  queue.Messages,
		Consumers: queue.Consumers,
	}, nil
}

// IsConnected reports the state of the AMQP connection
func (b *RabbitMQ) IsConnected() bool {
	return b.client.IsConnected()
}

type rabbitSubscription struct {
	consumer *rabbitmq.Consumer
}

func (s *rabbitSubscription) Next(ctx context.Context) (*Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-s.consumer.Deliveries():
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return NewDelivery(d.Body, d.MessageId, d.Redelivered,
			func() error { return d.Ack(false) },
			func(requeue bool) error { return d.Nack(false, requeue) },
		), nil
	}
}

func (s *rabbitSubscription) Close() error {
	return s.consumer.Close()
}
