package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// Store persists event batches; *storage.Storage satisfies it
type Store interface {
	InsertLogs(ctx context.Context, events []domain.LogEvent) error
}

// Persister defaults
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
)

// PersisterConfig holds persister configuration
type PersisterConfig struct {
	Store         Store
	Logger        *slog.Logger
	BatchSize     int
	FlushInterval time.Duration
	// OnFlush is called after every insert attempt
	OnFlush func(n int, err error)
}

// Persister drains the message channel in fixed-size batches on its own interval
type Persister struct {
	store         Store
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	onFlush       func(n int, err error)
}

// NewPersister creates a new Persister
func NewPersister(cfg *PersisterConfig) *Persister {
	p := &Persister{
		store:         cfg.Store,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		onFlush:       cfg.OnFlush,
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.flushInterval <= 0 {
		p.flushInterval = DefaultFlushInterval
	}
	return p
}

// Run drains in every flush interval until ctx is done or in is closed, then drains what
// is left. Deliveries are acknowledged only after their batch was inserted.
func (p *Persister) Run(ctx context.Context, in <-chan Message) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	p.logger.Info("Log persister started",
		slog.Int("batch_size", p.batchSize),
		slog.Duration("flush_interval", p.flushInterval),
	)

	for {
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx), in)
			p.logger.Info("Log persister stopped - context canceled")
			return nil

		case <-ticker.C:
			if closed := p.drain(ctx, in); closed {
				p.logger.Info("Log persister stopped - input closed")
				return nil
			}
		}
	}
}

// drain flushes batches until the channel has nothing buffered. It reports whether in was closed.
func (p *Persister) drain(ctx context.Context, in <-chan Message) bool {
	for {
		batch, closed := p.collect(in)
		if len(batch) > 0 {
			p.flush(ctx, batch)
		}
		if closed || len(batch) < p.batchSize {
			return closed
		}
	}
}

// collect takes up to batchSize buffered messages without blocking
func (p *Persister) collect(in <-chan Message) ([]Message, bool) {
	batch := make([]Message, 0, p.batchSize)
	for len(batch) < p.batchSize {
		select {
		case msg, ok := <-in:
			if !ok {
				return batch, true
			}
			batch = append(batch, msg)
		default:
			return batch, false
		}
	}
	return batch, false
}

func (p *Persister) flush(ctx context.Context, batch []Message) {
	events := make([]domain.LogEvent, len(batch))
	for i, msg := range batch {
		events[i] = msg.Event
	}

	err := p.store.InsertLogs(ctx, events)
	if p.onFlush != nil {
		p.onFlush(len(batch), err)
	}

	if err != nil {
		p.logger.Error("Failed to persist log batch, requeueing",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
		for _, msg := range batch {
			if nackErr := msg.Nack(true); nackErr != nil {
				p.logger.Error("Failed to NACK log message",
					slog.String("error", nackErr.Error()),
				)
			}
		}
		return
	}

	for _, msg := range batch {
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Error("Failed to ACK log message",
				slog.Int64("queue_id", msg.Event.QueueID),
				slog.String("error", ackErr.Error()),
			)
		}
	}

	p.logger.Debug("Log batch persisted", slog.Int("count", len(batch)))
}
