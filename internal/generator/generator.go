package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// AccountSource lists the reporting accounts jobs fan out to
type AccountSource interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
}

// Queue stores new jobs
type Queue interface {
	Enqueue(ctx context.Context, kind domain.Kind, jobs []domain.NewJob) ([]int64, error)
}

// Encoder seals a job spec into a queue payload
type Encoder interface {
	Encode(spec *domain.JobSpec) (string, error)
}

// Config holds the generator dependencies
type Config struct {
	Accounts AccountSource
	Queue    Queue
	Encoder  Encoder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Generator enqueues one job per definition, date window and account
type Generator struct {
	accounts AccountSource
	queue    Queue
	encoder  Encoder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Generator
func New(cfg *Config) *Generator {
	g := &Generator{
		accounts: cfg.Accounts,
		queue:    cfg.Queue,
		encoder:  cfg.Encoder,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Plan expands a definition into job specs. Accounts without credentials are skipped.
func Plan(def ReportDefinition, accounts []domain.Account, today time.Time) ([]*domain.JobSpec, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	windows, err := Windows(def.Schedule, today, def.DateRange)
	if err != nil {
		return nil, err
	}

	var specs []*domain.JobSpec
	for _, w := range windows {
		for _, acct := range accounts {
			if acct.Credentials == "" {
				continue
			}
			specs = append(specs, &domain.JobSpec{
				ReportName:       def.Name,
				AccountID:        acct.AccountID,
				ViewID:           acct.ViewID,
				DateRangeStart:   w.Start,
				DateRangeEnd:     w.End,
				Dimensions:       append([]string(nil), def.Dimensions...),
				Metrics:          append([]domain.Metric(nil), def.Metrics...),
				FilterExpression: def.Filter,
				SinkTable:        def.SinkTable,
				Credentials:      acct.Credentials,
				VdpURLPatterns:   acct.VdpPatterns,
			})
		}
	}
	return specs, nil
}

// Enqueue plans def for accounts, encrypts every spec and enqueues them in one insert
func (g *Generator) Enqueue(ctx context.Context, def ReportDefinition, accounts []domain.Account) ([]int64, error) {
	specs, err := Plan(def, accounts, g.now())
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		g.logger.Warn("Report produced no jobs", slog.String("report", def.Name))
		return nil, nil
	}

	jobs := make([]domain.NewJob, len(specs))
	for i, spec := range specs {
		payload, err := g.encoder.Encode(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode job for account %s: %w", spec.AccountID, err)
		}
		jobs[i] = domain.NewJob{AccountID: spec.AccountID, Payload: payload}
	}

	ids, err := g.queue.Enqueue(ctx, def.Schedule.Kind(), jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue report %s: %w", def.Name, err)
	}

	g.logger.Info("Report queued",
		slog.String("report", def.Name),
		slog.String("schedule", string(def.Schedule)),
		slog.Int("jobs", len(ids)),
	)

	return ids, nil
}

// Run enqueues every definition against all active accounts. With dueOnly set,
// definitions that are not due today are skipped. A failing definition does not stop the
// others; the first error is returned after all were attempted.
func (g *Generator) Run(ctx context.Context, defs []ReportDefinition, dueOnly bool) (int, error) {
	accounts, err := g.accounts.Accounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load accounts: %w", err)
	}

	today := g.now()
	total := 0
	var firstErr error
	for _, def := range defs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if dueOnly && !def.Due(today) {
			g.logger.Debug("Report not due", slog.String("report", def.Name))
			continue
		}

		ids, err := g.Enqueue(ctx, def, accounts)
		if err != nil {
			g.logger.Error("Failed to queue report",
				slog.String("report", def.Name),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += len(ids)
	}

	return total, firstErr
}
