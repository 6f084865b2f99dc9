package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when the channel is gone
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
	QueueName          string
	RoutingKey         string
	DeadLetterExchange string // optional; malformed messages are routed here
	DeadLetterQueue    string
	PrefetchCount      int
	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// URI builds the AMQP url
func (c *Config) URI() string {
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.User,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// Client publishes and consumes log events on one channel
type Client struct {
	config    *Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	connected atomic.Bool
}

// NewClient dials with retries and declares the topology
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{config: config, logger: logger}

	if err := client.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

func (c *Client) connect(ctx context.Context) error {
	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.conn, err = amqp.DialConfig(c.config.URI(), amqp.Config{
			Heartbeat: c.config.Heartbeat,
			Locale:    "en_US",
		})
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		if attempt < attempts {
			if waitErr := wait(ctx, c.config.RetryInterval); waitErr != nil {
				return waitErr
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

	if err := c.declare(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	closed := c.channel.NotifyClose(make(chan *amqp.Error, 1))
	c.connected.Store(true)
	go c.watch(closed)

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
	)
	return nil
}

func (c *Client) watch(closed <-chan *amqp.Error) {
	if amqpErr, ok := <-closed; ok && amqpErr != nil {
		c.logger.Error("RabbitMQ channel closed", slog.String("error", amqpErr.Error()))
	}
	c.connected.Store(false)
}

// declare sets up exchange, queue, binding and the optional dead letter route
func (c *Client) declare() error {
	var queueArgs amqp.Table
	if c.config.DeadLetterExchange != "" {
		if err := c.channel.ExchangeDeclare(c.config.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter exchange: %w", err)
		}
		if _, err := c.channel.QueueDeclare(c.config.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter queue: %w", err)
		}
		if err := c.channel.QueueBind(c.config.DeadLetterQueue, "", c.config.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead letter queue: %w", err)
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": c.config.DeadLetterExchange}
	}

	if err := c.channel.ExchangeDeclare(c.config.ExchangeName, c.config.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(c.config.QueueName, true, false, false, false, queueArgs); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(c.config.QueueName, c.config.RoutingKey, c.config.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// Consume applies the prefetch limit and starts a manual-ack consumer
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	if c.config.PrefetchCount > 0 {
		if err := c.channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	messages, err := c.channel.Consume(c.config.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch", c.config.PrefetchCount),
	)

	return messages, nil
}

// PublishWithRetry publishes a persistent message, backing off exponentially between attempts
func (c *Client) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	policy := backoff{
		retries: c.config.PublishRetries,
		base:    c.config.PublishRetryDelay,
		mult:    c.config.PublishBackoffMult,
	}.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= policy.retries; attempt++ {
		lastErr = c.channel.PublishWithContext(ctx, c.config.ExchangeName, c.config.RoutingKey, false, false,
			amqp.Publishing{
				ContentType:  contentType,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
		if lastErr == nil {
			if attempt > 0 {
				c.logger.Info("Published message to RabbitMQ after retry", slog.Int("attempt", attempt+1))
			}
			return nil
		}

		if attempt < policy.retries {
			delay := policy.delay(attempt)
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := wait(ctx, delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", policy.retries+1, lastErr)
}

// IsConnected reports whether the channel is still open
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the channel and connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")
	c.connected.Store(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel", slog.String("error", err.Error()))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}
	return nil
}

type backoff struct {
	retries int
	base    time.Duration
	mult    float64
}

func (b backoff) withDefaults() backoff {
	if b.retries <= 0 {
		b.retries = 3
	}
	if b.base <= 0 {
		b.base = 100 * time.Millisecond
	}
	if b.mult <= 1 {
		b.mult = 2.0
	}
	return b
}

// delay returns base * mult^attempt
func (b backoff) delay(attempt int) time.Duration {
	d := float64(b.base)
	for i := 0; i < attempt; i++ {
		d *= b.mult
	}
	return time.Duration(d)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
