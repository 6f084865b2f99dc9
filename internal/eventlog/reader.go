package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded event together with its delivery acknowledgement
type Message struct {
	Event domain.LogEvent
	Ack   func() error
	Nack  func(requeue bool) error
}

// Source starts a consumer; *rabbitmq.Client satisfies it
type Source interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Reader decodes broker deliveries into Messages on a bounded channel
type Reader struct {
	source      Source
	consumerTag string
	logger      *slog.Logger
}

// NewReader creates a new Reader
func NewReader(source Source, consumerTag string, logger *slog.Logger) *Reader {
	return &Reader{source: source, consumerTag: consumerTag, logger: logger}
}

// Run consumes until ctx is done or the delivery channel closes. It blocks while out is
// full, which leaves further deliveries unacknowledged on the broker. out is closed on return.
func (r *Reader) Run(ctx context.Context, out chan<- Message) error {
	defer close(out)

	deliveries, err := r.source.Consume(r.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	r.logger.Info("Log reader started", slog.String("consumer_tag", r.consumerTag))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Log reader stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				r.logger.Warn("RabbitMQ delivery channel closed")
				return fmt.Errorf("%w: delivery channel closed", domain.ErrInfrastructure)
			}

			var event domain.LogEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				r.logger.Error("Failed to parse log event JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead letter queue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					r.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			d := delivery
			msg := Message{
				Event: event,
				Ack:   func() error { return d.Ack(false) },
				Nack:  func(requeue bool) error { return d.Nack(false, requeue) },
			}

			select {
			case out <- msg:
			case <-ctx.Done():
				if nackErr := d.Nack(false, true); nackErr != nil {
					r.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return nil
			}
		}
	}
}
