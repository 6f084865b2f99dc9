package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/sink"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/storage"
)

const releaseTimeout = 10 * time.Second

// processBatch claims one batch of jobs and runs them in dequeue order. Jobs not started
// before cancellation are released back to the queue. It returns the number of jobs run,
// which is zero when nothing was claimed or the batch had to be released.
func (w *Worker) processBatch(ctx context.Context, batchID string, logger *slog.Logger) int {
	if ctx.Err() != nil {
		return 0
	}

	queue, err := w.queues(ctx)
	if err != nil {
		logger.Error("Failed to open queue connection",
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrInfrastructure, err).Error()),
		)
		return 0
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("Failed to close queue connection", slog.String("error", err.Error()))
		}
	}()

	jobs, err := queue.Dequeue(ctx, w.kind, batchID, w.batchSize)
	if err != nil {
		logger.Error("Failed to dequeue jobs",
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrInfrastructure, err).Error()),
		)
		return 0
	}
	if len(jobs) == 0 {
		logger.Debug("No jobs ready")
		return 0
	}

	logger.Info("Batch dequeued", slog.Int("jobs", len(jobs)))

	srp, err := w.patterns.EnsureLoaded(ctx, queue.SrpPatterns)
	if err != nil {
		logger.Error("Failed to load SRP patterns",
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrInfrastructure, err).Error()),
		)
		w.release(ctx, queue, batchID, jobs, logger)
		return 0
	}

	snk, err := w.sinks(ctx)
	if err != nil {
		logger.Error("Failed to open sink connection",
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrInfrastructure, err).Error()),
		)
		w.release(ctx, queue, batchID, jobs, logger)
		return 0
	}
	defer func() {
		if err := snk.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close sink connection", slog.String("error", err.Error()))
		}
	}()

	// the job in flight finishes even when ctx is canceled meanwhile
	jobCtx := context.WithoutCancel(ctx)
	processed := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			w.release(ctx, queue, batchID, jobs[i:], logger)
			break
		}
		w.processJob(jobCtx, queue, snk, batchID, job, srp, logger)
		processed++
	}

	logger.Info("Batch finished",
		slog.Int("processed", processed),
		slog.Int("dequeued", len(jobs)),
	)
	return len(jobs)
}

func (w *Worker) release(ctx context.Context, queue Queue, batchID string, jobs []domain.Job, logger *slog.Logger) {
	ids := make([]int64, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := queue.Release(ctx, w.kind, batchID, ids); err != nil {
		logger.Error("Failed to release jobs, they become visible again after the claim lease",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()),
		)
	}
}

// connQueue is a Storage bound to one checked-out connection
type connQueue struct {
	*storage.Storage
	conn *sqlx.Conn
}

func (q *connQueue) Close() error {
	return q.conn.Close()
}

// ConnSource checks out dedicated connections; *postgresql.Client satisfies it
type ConnSource interface {
	Conn(ctx context.Context) (*sqlx.Conn, error)
}

// NewQueueOpener opens one storage connection per pipeline
func NewQueueOpener(db ConnSource, claimLease time.Duration, logger *slog.Logger) QueueOpener {
	return func(ctx context.Context) (Queue, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		return &connQueue{
			Storage: storage.NewStorage(conn, logger).WithClaimLease(claimLease),
			conn:    conn,
		}, nil
	}
}

// NewSinkOpener opens one sink connection per pipeline
func NewSinkOpener(opener *sink.Opener) SinkOpener {
	return func(ctx context.Context) (Sink, error) {
		s, err := opener.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// errorClass names the per-job error class carried by err
func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrDownload):
		return "download"
	case errors.Is(err, domain.ErrMaterialization):
		return "materialization"
	case errors.Is(err, domain.ErrSink):
		return "sink"
	case errors.Is(err, domain.ErrInfrastructure):
		return "infrastructure"
	default:
		return "unknown"
	}
}
