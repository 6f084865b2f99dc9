package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/model"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/storage"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/generator"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/metrics"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// JobStore reads queued jobs and their logs
type JobStore interface {
	GetJob(ctx context.Context, queueID int64) (*model.QueueJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.QueueJob, error)
	JobLogs(ctx context.Context, queueID int64) ([]model.QueueLog, error)
}

// AccountLookup resolves the reporting account of a new job
type AccountLookup interface {
	Account(ctx context.Context, accountID string) (*domain.Account, error)
}

// JobEnqueuer encrypts and enqueues the jobs of one report definition
type JobEnqueuer interface {
	Enqueue(ctx context.Context, def generator.ReportDefinition, accounts []domain.Account) ([]int64, error)
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Health   HealthChecker
	Jobs     JobStore
	Accounts AccountLookup
	Enqueuer JobEnqueuer
	Metrics  *metrics.Metrics
	Timeout  time.Duration // per request database timeout; zero means none
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	jobs     JobStore
	accounts AccountLookup
	enqueuer JobEnqueuer
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		accounts: deps.Accounts,
		enqueuer: deps.Enqueuer,
		metrics:  deps.Metrics,
		timeout:  deps.Timeout,
	}
}

func (h *JobHandler) context(parent context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, h.timeout)
}
