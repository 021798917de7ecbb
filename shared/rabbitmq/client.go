package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the connection to RabbitMQ has been lost
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	RoutingKey         string
	MessageTTL         time.Duration
	RetryQueuePrefix   string
	PrefetchCount      int
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// URL builds the AMQP connection URL
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// retryQueueName returns the holding queue used for messages delayed by delay
func (c *Config) retryQueueName(delay time.Duration) string {
	prefix := c.RetryQueuePrefix
	if prefix == "" {
		prefix = c.QueueName + ".retry"
	}
	return fmt.Sprintf("%s.%dms", prefix, delay.Milliseconds())
}

// workQueueArgs are the arguments of the main work queue
func (c *Config) workQueueArgs() amqp.Table {
	if c.MessageTTL <= 0 {
		return nil
	}
	return amqp.Table{
		"x-message-ttl": c.MessageTTL.Milliseconds(),
	}
}

// retryQueueArgs dead-letters expired messages back onto the work exchange
func (c *Config) retryQueueArgs(delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    c.ExchangeName,
		"x-dead-letter-routing-key": c.RoutingKey,
	}
}

// Message is one outgoing publishing
type Message struct {
	Body        []byte
	MessageID   string
	ContentType string
}

// Client represents a RabbitMQ client.
// It owns one confirm-mode channel for publishing; every consumer gets its own channel.
type Client struct {
	config *Config
	conn   *amqp.Connection
	logger *slog.Logger

	mu          sync.Mutex
	channel     *amqp.Channel
	retryQueues map[string]struct{}

	isConnected atomic.Bool
}

// NewClient connects to RabbitMQ and declares the work topology
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:      config,
		logger:      logger,
		retryQueues: make(map[string]struct{}),
	}

	if err := client.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect(ctx context.Context) error {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(c.config.URL(), amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryInterval):
			}
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(c.channel); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	if err := c.channel.Confirm(false); err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	closeChan := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.isConnected.Store(true)
	go c.watch(closeChan)

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.Duration("message_ttl", c.config.MessageTTL),
	)

	return nil
}

func (c *Client) watch(closeChan <-chan *amqp.Error) {
	amqpErr, ok := <-closeChan
	c.isConnected.Store(false)
	if ok && amqpErr != nil {
		c.logger.Error("RabbitMQ connection closed",
			slog.Int("code", amqpErr.Code),
			slog.String("reason", amqpErr.Reason),
		)
	}
}

// setup declares exchange, queue, and bindings
func (c *Client) setup(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.config.QueueName,       // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		c.config.workQueueArgs(), // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		c.config.QueueName,    // queue name
		c.config.RoutingKey,   // routing key
		c.config.ExchangeName, // exchange
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// ensureRetryQueue declares the holding queue for delay once per process. Caller holds c.mu.
func (c *Client) ensureRetryQueue(delay time.Duration) (string, error) {
	name := c.config.retryQueueName(delay)
	if _, ok := c.retryQueues[name]; ok {
		return name, nil
	}

	_, err := c.channel.QueueDeclare(
		name,
		c.config.QueueDurable,
		false,
		false,
		false,
		c.config.retryQueueArgs(delay),
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare retry queue %s: %w", name, err)
	}

	c.retryQueues[name] = struct{}{}
	c.logger.Info("Declared retry queue",
		slog.String("queue", name),
		slog.Duration("delay", delay),
	)
	return name, nil
}

// publishOnce sends msg and waits for the broker confirm
func (c *Client) publishOnce(ctx context.Context, msg Message, delay time.Duration) error {
	c.mu.Lock()
	exchange, routingKey := c.config.ExchangeName, c.config.RoutingKey
	if delay > 0 {
		queue, err := c.ensureRetryQueue(delay)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		// the default exchange routes by queue name
		exchange, routingKey = "", queue
	}

	confirmation, err := c.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  msg.ContentType,
			MessageId:    msg.MessageID,
			Body:         msg.Body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for publisher confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker rejected message %s", msg.MessageID)
	}
	return nil
}

// Publish publishes msg with retry logic and exponential backoff.
// A positive delay parks the message in a retry queue until its TTL dead-letters it
// back onto the work queue.
func (c *Client) Publish(ctx context.Context, msg Message, delay time.Duration) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	maxRetries := c.config.PublishRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult < 1 {
		backoffMult = 2.0
	}

	var lastErr error
	backoff := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.publishOnce(ctx, msg, delay)
		if err == nil {
			c.logger.Debug("Message published to RabbitMQ",
				slog.String("message_id", msg.MessageID),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Int("body_size", len(msg.Body)),
			)
			return nil
		}

		lastErr = err
		if !c.IsConnected() {
			break
		}

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.String("message_id", msg.MessageID),
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", backoff),
				slog.Any("error", err),
			)

			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.String("message_id", msg.MessageID),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message %s: %w", msg.MessageID, lastErr)
}

// Consumer is one manual-ack subscription on its own channel
type Consumer struct {
	tag        string
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// Deliveries returns the delivery stream; it is closed when the channel closes
func (c *Consumer) Deliveries() <-chan amqp.Delivery {
	return c.deliveries
}

// Close cancels the subscription and closes its channel.
// Unacked deliveries are returned to the queue by the broker.
func (c *Consumer) Close() error {
	if err := c.channel.Cancel(c.tag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to cancel consumer %s: %w", c.tag, err)
	}
	if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to close consumer channel: %w", err)
	}
	return nil
}

// Consume opens a dedicated channel limited to PrefetchCount unacked deliveries
func (c *Client) Consume(consumerTag string) (*Consumer, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	prefetch := c.config.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		c.config.QueueName, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch", prefetch),
	)

	return &Consumer{tag: consumerTag, channel: ch, deliveries: deliveries}, nil
}

// QueueInfo inspects the work queue without modifying it
func (c *Client) QueueInfo() (amqp.Queue, error) {
	if !c.IsConnected() {
		return amqp.Queue{}, ErrNotConnected
	}

	// a failed passive declare closes the channel, so never use the publishing one
	ch, err := c.conn.Channel()
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	queue, err := ch.QueueDeclarePassive(
		c.config.QueueName,
		c.config.QueueDurable,
		c.config.QueueAutoDelete,
		c.config.QueueExclusive,
		false,
		c.config.workQueueArgs(),
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return queue, nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected.Store(false)

	c.mu.Lock()
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected.Load() && c.conn != nil && !c.conn.IsClosed()
}

// QueueName returns the work queue name
func (c *Client) QueueName() string {
	return c.config.QueueName
}
