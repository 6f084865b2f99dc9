// Package eventlog moves job lifecycle events from the workers, through RabbitMQ, into the queue_logs table.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

const contentType = "application/json"

// Broker publishes raw messages; *rabbitmq.Client satisfies it
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Publisher sends log events to the broker as JSON
type Publisher struct {
	broker Broker
	logger *slog.Logger
}

// NewPublisher creates a new Publisher
func NewPublisher(broker Broker, logger *slog.Logger) *Publisher {
	return &Publisher{broker: broker, logger: logger}
}

// Publish sends one event. Errors wrap domain.ErrInfrastructure.
func (p *Publisher) Publish(ctx context.Context, event domain.LogEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal log event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, body, contentType); err != nil {
		return fmt.Errorf("%w: failed to publish log event: %w", domain.ErrInfrastructure, err)
	}

	p.logger.Debug("Log event published",
		slog.Int64("queue_id", event.QueueID),
		slog.String("status", string(event.Status)),
	)
	return nil
}
