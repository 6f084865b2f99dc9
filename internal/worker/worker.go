// Package worker runs the batch orchestrator: bounded concurrent pipelines that dequeue
// report jobs, download and materialize them, load the sink and record the outcome.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/metrics"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/report"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/schema"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"golang.org/x/sync/semaphore"
)

// Queue is one pipeline's view of the durable queue
type Queue interface {
	Dequeue(ctx context.Context, kind domain.Kind, batchID string, n int) ([]domain.Job, error)
	UpdateStatus(ctx context.Context, kind domain.Kind, id int64, status domain.Status, errorMsg string) error
	Release(ctx context.Context, kind domain.Kind, batchID string, ids []int64) error
	SrpPatterns(ctx context.Context) ([]classifier.SrpPattern, error)
	Close() error
}

// QueueOpener opens a dedicated queue connection for one pipeline
type QueueOpener func(ctx context.Context) (Queue, error)

// Sink is one pipeline's sink connection
type Sink interface {
	BulkLoad(ctx context.Context, sch *schema.Schema, records []schema.Record) (int64, error)
	Close(ctx context.Context) error
}

// SinkOpener opens a dedicated sink connection for one pipeline
type SinkOpener func(ctx context.Context) (Sink, error)

// Decoder turns an encrypted payload into a JobSpec
type Decoder interface {
	Decode(payload string) (*domain.JobSpec, error)
}

// ReportDownloader fetches every page of a report
type ReportDownloader interface {
	Download(ctx context.Context, spec *domain.JobSpec) (*report.AggregatedReport, error)
}

// LogPublisher emits job log events
type LogPublisher interface {
	Publish(ctx context.Context, event domain.LogEvent) error
}

// Config holds worker configuration
type Config struct {
	Kind                domain.Kind
	SimultaneousBatches int
	QueueBatchSize      int
	WaitTime            time.Duration
	// IdleWait is the minimum pause after a pipeline claimed nothing; defaults to DefaultIdleWait
	IdleWait            time.Duration
	CreatedBy           string

	Queues     QueueOpener
	Sinks      SinkOpener
	Decoder    Decoder
	Downloader ReportDownloader
	Publisher  LogPublisher
	Patterns   *classifier.PatternCache
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// Now and Sleep are overridable for tests
	Now   func() time.Time
	Sleep report.SleepFunc
}

// DefaultIdleWait is the pause after a pipeline found no ready jobs
const DefaultIdleWait = 5 * time.Second

// Worker runs the pipelines of one job kind
type Worker struct {
	kind       domain.Kind
	capacity   int
	batchSize  int
	waitTime   time.Duration
	idleWait   time.Duration
	createdBy  string
	queues     QueueOpener
	sinks      SinkOpener
	decoder    Decoder
	downloader ReportDownloader
	publisher  LogPublisher
	patterns   *classifier.PatternCache
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	sleep      report.SleepFunc

	sem      *semaphore.Weighted
	batches  *batchRegistry
	wg       sync.WaitGroup
	started  atomic.Bool
	done     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		kind:       cfg.Kind,
		capacity:   cfg.SimultaneousBatches,
		batchSize:  cfg.QueueBatchSize,
		waitTime:   cfg.WaitTime,
		idleWait:   cfg.IdleWait,
		createdBy:  cfg.CreatedBy,
		queues:     cfg.Queues,
		sinks:      cfg.Sinks,
		decoder:    cfg.Decoder,
		downloader: cfg.Downloader,
		publisher:  cfg.Publisher,
		patterns:   cfg.Patterns,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With(slog.String("kind", string(cfg.Kind))),
		now:        cfg.Now,
		sleep:      cfg.Sleep,
		batches:    newBatchRegistry(),
		done:       make(chan struct{}),
		stopChan:   make(chan struct{}),
	}
	if w.capacity <= 0 {
		w.capacity = 1
	}
	if w.batchSize <= 0 {
		w.batchSize = 1
	}
	if w.waitTime < 0 {
		w.waitTime = 0
	}
	if w.idleWait <= 0 {
		w.idleWait = DefaultIdleWait
	}
	if w.patterns == nil {
		w.patterns = classifier.NewPatternCache()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.sleep == nil {
		w.sleep = report.Sleep
	}
	w.sem = semaphore.NewWeighted(int64(w.capacity))
	return w
}

// Start runs pipelines until ctx is canceled or Stop is called, then waits for the
// running ones to drain. Pipeline errors never end the loop.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker for kind %s already started", w.kind)
	}
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.logger.Info("Starting worker",
		slog.Int("simultaneous_batches", w.capacity),
		slog.Int("queue_batch_size", w.batchSize),
		slog.Duration("wait_time", w.waitTime),
	)

	w.admit(ctx)

	w.logger.Info("Worker context canceled, waiting for running batches",
		slog.Int("running", w.batches.Len()),
	)
	w.wg.Wait()
	w.logger.Info("Worker stopped")

	return nil
}

// Stop signals Start to stop admitting pipelines and waits for the running ones
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
	if w.started.Load() {
		<-w.done
	}
}

// ActiveBatches returns the number of registered pipelines
func (w *Worker) ActiveBatches() int {
	return w.batches.Len()
}

// Kind returns the job kind this worker processes
func (w *Worker) Kind() domain.Kind {
	return w.kind
}
