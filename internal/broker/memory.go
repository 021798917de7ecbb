package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

// PublishedMessage records one Publish call on a Memory broker
type PublishedMessage struct {
	Message *domain.QueueMessage
	Delay   time.Duration
}

type memoryMessage struct {
	body        []byte
	messageID   string
	redelivered bool
}

type memoryUnacked struct {
	msg *memoryMessage
	sub *memorySubscription
}

// Memory is an in-process Broker for tests and local runs.
// Each subscription holds at most one unacked delivery, mirroring a prefetch of 1.
type Memory struct {
	name string

	mu          sync.Mutex
	changed     chan struct{}
	ready       []*memoryMessage
	unacked     map[uint64]*memoryUnacked
	nextTag     uint64
	scheduled   map[*time.Timer]struct{}
	subscribers int
	published   []PublishedMessage
	rejected    [][]byte
	publishErr  error
	closed      bool
}

// NewMemory creates an empty in-memory broker for the named queue
func NewMemory(name string) *Memory {
	return &Memory{
		name:      name,
		changed:   make(chan struct{}),
		unacked:   make(map[uint64]*memoryUnacked),
		scheduled: make(map[*time.Timer]struct{}),
	}
}

// broadcast wakes every waiting subscriber. Caller holds m.mu.
func (m *Memory) broadcast() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Publish enqueues msg, after delay when positive
func (m *Memory) Publish(_ context.Context, msg *domain.QueueMessage, delay time.Duration) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("failed to publish translation %s: %w", msg.RequestID, domain.ErrBrokerUnavailable)
	}
	if m.publishErr != nil {
		return fmt.Errorf("failed to publish translation %s: %w: %w", msg.RequestID, domain.ErrBrokerUnavailable, m.publishErr)
	}

	copied := *msg
	m.published = append(m.published, PublishedMessage{Message: &copied, Delay: delay})

	entry := &memoryMessage{body: body, messageID: msg.RequestID}
	if delay <= 0 {
		m.ready = append(m.ready, entry)
		m.broadcast()
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.scheduled[timer]; !ok {
			return
		}
		delete(m.scheduled, timer)
		m.ready = append(m.ready, entry)
		m.broadcast()
	})
	m.scheduled[timer] = struct{}{}
	return nil
}

// PublishRaw enqueues an arbitrary body, bypassing encoding
func (m *Memory) PublishRaw(body []byte, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ready = append(m.ready, &memoryMessage{body: body, messageID: messageID})
	m.broadcast()
}

// Subscribe opens a prefetch-1 subscription
func (m *Memory) Subscribe(_ context.Context, _ string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("failed to subscribe: %w", domain.ErrBrokerUnavailable)
	}
	m.subscribers++
	return &memorySubscription{broker: m}, nil
}

// Stats reports ready messages and open subscriptions
func (m *Memory) Stats(_ context.Context) (QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return QueueStats{}, fmt.Errorf("failed to read queue stats: %w", domain.ErrBrokerUnavailable)
	}
	return QueueStats{
		Queue:     m.name,
		Messages:  len(m.ready),
		Consumers: m.subscribers,
	}, nil
}

// IsConnected is false once the broker is closed
func (m *Memory) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// SetPublishError makes every following Publish fail with err; nil restores publishing
func (m *Memory) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// Recover returns every unacked delivery to the queue as redelivered, as the broker does
// when a consumer connection dies before acking. Outstanding deliveries become stale.
func (m *Memory) Recover() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	recovered := make([]*memoryMessage, 0, len(m.unacked))
	for tag, entry := range m.unacked {
		entry.sub.inflight = false
		entry.msg.redelivered = true
		recovered = append(recovered, entry.msg)
		delete(m.unacked, tag)
	}
	m.ready = append(recovered, m.ready...)
	m.broadcast()
	return len(recovered)
}

// Published returns every message accepted by Publish so far
func (m *Memory) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.published...)
}

// Rejected returns the bodies nacked without requeue
func (m *Memory) Rejected() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.rejected...)
}

// Idle reports whether no message is ready, in flight, or scheduled
func (m *Memory) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready) == 0 && len(m.unacked) == 0 && len(m.scheduled) == 0
}

// Close stops delayed publishes and ends every subscription
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for timer := range m.scheduled {
		timer.Stop()
		delete(m.scheduled, timer)
	}
	m.broadcast()
	return nil
}

func (m *Memory) settle(tag uint64, requeue, ack bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.unacked[tag]
	if !ok {
		return errors.New("unknown delivery tag")
	}
	delete(m.unacked, tag)
	entry.sub.inflight = false

	switch {
	case ack:
	case requeue:
		entry.msg.redelivered = true
		m.ready = append([]*memoryMessage{entry.msg}, m.ready...)
	default:
		m.rejected = append(m.rejected, entry.msg.body)
	}
	m.broadcast()
	return nil
}

type memorySubscription struct {
	broker   *Memory
	inflight bool
	closed   bool
}

func (s *memorySubscription) Next(ctx context.Context) (*Delivery, error) {
	m := s.broker
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m.mu.Lock()
		if s.closed || m.closed {
			m.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}

		if !s.inflight && len(m.ready) > 0 {
			msg := m.ready[0]
			m.ready = m.ready[1:]
			m.nextTag++
			tag := m.nextTag
			m.unacked[tag] = &memoryUnacked{msg: msg, sub: s}
			s.inflight = true
			m.mu.Unlock()

			return NewDelivery(msg.body, msg.messageID, msg.redelivered,
				func() error { return m.settle(tag, false, true) },
				func(requeue bool) error { return m.settle(tag, requeue, false) },
			), nil
		}

		changed := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Close returns an unacked delivery of this subscription to the queue
func (s *memorySubscription) Close() error {
	m := s.broker
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	m.subscribers--

	for tag, entry := range m.unacked {
		if entry.sub != s {
			continue
		}
		entry.msg.redelivered = true
		m.ready = append([]*memoryMessage{entry.msg}, m.ready...)
		delete(m.unacked, tag)
	}
	s.inflight = false
	m.broadcast()
	return nil
}
