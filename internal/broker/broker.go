// Package broker moves queue messages between the producer and the workers.
//
// Delivery is at-least-once: a message stays with the broker until the consumer acks it,
// and a consumer that disappears before acking gets its message redelivered to someone else.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

// ErrSubscriptionClosed is returned by Next once the subscription can deliver nothing more
var ErrSubscriptionClosed = errors.New("subscription closed")

// ErrAlreadyAcknowledged is returned when a delivery is acked or nacked twice
var ErrAlreadyAcknowledged = errors.New("delivery already acknowledged")

// Broker publishes translation jobs and hands them to subscribers
type Broker interface {
	// Publish sends msg, holding it back for delay when delay is positive.
	// Failures wrap domain.ErrBrokerUnavailable.
	Publish(ctx context.Context, msg *domain.QueueMessage, delay time.Duration) error

	// Subscribe opens a manual-ack subscription with at most one unacked delivery
	Subscribe(ctx context.Context, consumerTag string) (Subscription, error)

	// Stats reports the depth and consumer count of the work queue
	Stats(ctx context.Context) (QueueStats, error)

	// IsConnected reports whether the broker is reachable
	IsConnected() bool
}

// Subscription is a pull-based stream of deliveries
type Subscription interface {
	// Next blocks until a delivery is available, ctx is done, or the subscription closes
	Next(ctx context.Context) (*Delivery, error)

	Close() error
}

// QueueStats describes the work queue
type QueueStats struct {
	Queue     string
	Messages  int
	Consumers int
}

// Delivery is one received message awaiting acknowledgement
type Delivery struct {
	Body        []byte
	MessageID   string
	Redelivered bool

	once sync.Once
	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a delivery with the given acknowledgement callbacks
func NewDelivery(body []byte, messageID string, redelivered bool, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{
		Body:        body,
		MessageID:   messageID,
		Redelivered: redelivered,
		ack:         ack,
		nack:        nack,
	}
}

// Ack removes the message from the queue
func (d *Delivery) Ack() error {
	err := ErrAlreadyAcknowledged
	d.once.Do(func() {
		err = d.ack()
	})
	return err
}

// Nack rejects the message, returning it to the queue when requeue is true
func (d *Delivery) Nack(requeue bool) error {
	err := ErrAlreadyAcknowledged
	d.once.Do(func() {
		err = d.nack(requeue)
	})
	return err
}
