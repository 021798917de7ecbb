package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessage() *domain.QueueMessage {
	job := domain.NewTranslationJob(uuid.NewString(), "hello", "en", "pt", time.Now().UTC())
	return job.ToMessage(0, 3, time.Now().UTC())
}

func nextWithin(t *testing.T, sub Subscription, d time.Duration) (*Delivery, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return sub.Next(ctx)
}

func TestMemory_PublishAndAck(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	msg := newMessage()

	require.NoError(t, b.Publish(ctx, msg, 0))

	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)

	delivery, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.RequestID, delivery.MessageID)
	assert.False(t, delivery.Redelivered)

	decoded, err := domain.DecodeQueueMessage(delivery.Body)
	require.NoError(t, err)
	assert.Equal(t, msg.RequestID, decoded.RequestID)

	require.NoError(t, delivery.Ack())
	assert.ErrorIs(t, delivery.Ack(), ErrAlreadyAcknowledged)
	assert.ErrorIs(t, delivery.Nack(true), ErrAlreadyAcknowledged)
	assert.True(t, b.Idle())
}

func TestMemory_PrefetchOne(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, newMessage(), 0))
	require.NoError(t, b.Publish(ctx, newMessage(), 0))

	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)

	first, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)

	_, err = nextWithin(t, sub, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second delivery must wait for the first ack")

	other, err := b.Subscribe(ctx, "worker-2")
	require.NoError(t, err)
	second, err := nextWithin(t, other, time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageID, second.MessageID)

	require.NoError(t, first.Ack())
	require.NoError(t, second.Ack())
}

func TestMemory_NackRequeue(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, newMessage(), 0))

	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)

	delivery, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)
	require.NoError(t, delivery.Nack(true))

	again, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, delivery.MessageID, again.MessageID)
	assert.True(t, again.Redelivered)

	require.NoError(t, again.Nack(false))
	assert.Len(t, b.Rejected(), 1)
	assert.True(t, b.Idle())
}

func TestMemory_DelayedPublish(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, newMessage(), 30*time.Millisecond))
	assert.False(t, b.Idle())

	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)

	start := time.Now()
	delivery, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	require.NoError(t, delivery.Ack())

	published := b.Published()
	require.Len(t, published, 1)
	assert.Equal(t, 30*time.Millisecond, published[0].Delay)
}

func TestMemory_Recover(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, newMessage(), 0))

	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)
	lost, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, b.Recover())
	assert.Error(t, lost.Ack(), "delivery from before the crash is stale")

	redelivered, err := nextWithin(t, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, lost.MessageID, redelivered.MessageID)
	assert.True(t, redelivered.Redelivered)
	require.NoError(t, redelivered.Ack())
}

func TestMemory_SubscriptionCloseRequeues(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, newMessage(), 0))

	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)
	_, err = nextWithin(t, sub, time.Second)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: "translation.jobs", Messages: 1, Consumers: 0}, stats)
}

func TestMemory_PublishFailure(t *testing.T) {
	b := NewMemory("translation.jobs")
	b.SetPublishError(errors.New("connection reset"))

	err := b.Publish(context.Background(), newMessage(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBrokerUnavailable)
	assert.Empty(t, b.Published())

	b.SetPublishError(nil)
	assert.NoError(t, b.Publish(context.Background(), newMessage(), 0))
}

func TestMemory_Close(t *testing.T) {
	b := NewMemory("translation.jobs")
	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "worker-1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(ctx)
		done <- err
	}()

	require.NoError(t, b.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSubscriptionClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}

	assert.False(t, b.IsConnected())
	assert.ErrorIs(t, b.Publish(ctx, newMessage(), 0), domain.ErrBrokerUnavailable)
}
