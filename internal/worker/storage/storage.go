package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/lib/pq"
)

// DefaultClaimLease is how long a dequeued job stays invisible to other pipelines
const DefaultClaimLease = time.Hour

// DBTX is satisfied by *sqlx.DB, *sqlx.Tx and *sqlx.Conn
type DBTX interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Storage handles all queue database operations for the worker
type Storage struct {
	db         DBTX
	logger     *slog.Logger
	claimLease time.Duration
}

// NewStorage creates a new Storage instance
func NewStorage(db DBTX, logger *slog.Logger) *Storage {
	return &Storage{
		db:         db,
		logger:     logger,
		claimLease: DefaultClaimLease,
	}
}

// WithClaimLease sets the claim lease used by Dequeue
func (s *Storage) WithClaimLease(lease time.Duration) *Storage {
	if lease > 0 {
		s.claimLease = lease
	}
	return s
}

// Dequeue claims up to n ready jobs of kind for batchID. Claimed jobs are skipped by other
// pipelines until they reach a terminal status, are released, or the claim lease expires.
// Jobs are returned in queue order.
func (s *Storage) Dequeue(ctx context.Context, kind domain.Kind, batchID string, n int) ([]domain.Job, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		UPDATE report_queue q
		SET batch_id = $1,
		    claimed_at = NOW(),
		    updated_at = NOW()
		WHERE q.queue_id IN (
			SELECT queue_id
			FROM report_queue
			WHERE kind = $2
			  AND status = $3
			  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $4))
			ORDER BY created_at, queue_id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING q.queue_id, q.account_id, q.kind, q.payload, q.status, q.batch_id, q.created_at
	`

	var jobs []domain.Job
	err := sqlx.SelectContext(ctx, s.db, &jobs, query,
		batchID, kind, domain.StatusReadyToProcess, s.claimLease.Seconds(), n)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue jobs: %w", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	s.logger.Debug("Jobs dequeued",
		slog.String("kind", string(kind)),
		slog.String("batch_id", batchID),
		slog.Int("count", len(jobs)),
	)

	return jobs, nil
}

// UpdateStatus moves a ready job to a terminal status. The update only applies while the
// job is still READY_TO_PROCESS, so repeating it is a no-op.
func (s *Storage) UpdateStatus(ctx context.Context, kind domain.Kind, id int64, status domain.Status, errorMsg string) error {
	if err := domain.Transition(domain.StatusReadyToProcess, status); err != nil {
		return err
	}

	query := `
		UPDATE report_queue
		SET status = $1,
		    error_message = NULLIF($2, ''),
		    updated_at = NOW()
		WHERE queue_id = $3
		  AND kind = $4
		  AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, id, kind, domain.StatusReadyToProcess)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status update - no rows affected (job may already be terminal)",
			slog.Int64("queue_id", id),
			slog.String("status", string(status)),
		)
	}

	return nil
}

// Release returns unprocessed jobs of a batch to the queue
func (s *Storage) Release(ctx context.Context, kind domain.Kind, batchID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE report_queue
		SET batch_id = NULL,
		    claimed_at = NULL,
		    updated_at = NOW()
		WHERE queue_id = ANY($1)
		  AND kind = $2
		  AND batch_id = $3
		  AND status = $4
	`

	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids), kind, batchID, domain.StatusReadyToProcess); err != nil {
		return fmt.Errorf("failed to release jobs: %w", err)
	}

	s.logger.Info("Jobs released",
		slog.String("kind", string(kind)),
		slog.String("batch_id", batchID),
		slog.Int("count", len(ids)),
	)

	return nil
}

// Enqueue inserts new READY_TO_PROCESS jobs of kind and returns their ids
func (s *Storage) Enqueue(ctx context.Context, kind domain.Kind, jobs []domain.NewJob) ([]int64, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	rows := make([]domain.NewJob, len(jobs))
	for i, j := range jobs {
		if j.AccountID == "" || j.Payload == "" {
			return nil, fmt.Errorf("%w: job %d has no account or payload", domain.ErrValidation, i)
		}
		j.Kind = kind
		j.Status = domain.StatusReadyToProcess
		rows[i] = j
	}

	query, args, err := sqlx.Named(`
		INSERT INTO report_queue (account_id, kind, payload, status)
		VALUES (:account_id, :kind, :payload, :status)
		RETURNING queue_id`, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to build enqueue query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var ids []int64
	if err := sqlx.SelectContext(ctx, s.db, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to enqueue jobs: %w", err)
	}

	s.logger.Info("Jobs enqueued",
		slog.String("kind", string(kind)),
		slog.Int("count", len(ids)),
	)

	return ids, nil
}

// SrpPatterns loads the shared search-results-page rules in priority order
func (s *Storage) SrpPatterns(ctx context.Context) ([]classifier.SrpPattern, error) {
	query := `
		SELECT pattern, srp_type
		FROM srp_page_patterns
		ORDER BY priority, id
	`

	var patterns []classifier.SrpPattern
	if err := sqlx.SelectContext(ctx, s.db, &patterns, query); err != nil {
		return nil, fmt.Errorf("failed to load srp patterns: %w", err)
	}
	return patterns, nil
}

// Accounts returns the active reporting accounts
func (s *Storage) Accounts(ctx context.Context) ([]domain.Account, error) {
	query := `
		SELECT account_id, view_id, credentials, vdp_url_patterns
		FROM google_accounts
		WHERE active
		ORDER BY account_id
	`

	var accounts []domain.Account
	if err := sqlx.SelectContext(ctx, s.db, &accounts, query); err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	return accounts, nil
}

// Account returns one account by id
func (s *Storage) Account(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
		SELECT account_id, view_id, credentials, vdp_url_patterns
		FROM google_accounts
		WHERE account_id = $1
	`

	var account domain.Account
	if err := sqlx.GetContext(ctx, s.db, &account, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// InsertLogs persists a batch of log events in one statement
func (s *Storage) InsertLogs(ctx context.Context, events []domain.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	query, args, err := sqlx.Named(`
		INSERT INTO queue_logs (queue_id, account_id, batch_id, kind, status, message, created_by, created_at)
		VALUES (:queue_id, :account_id, :batch_id, :kind, :status, :message, :created_by, :created_at)`, events)
	if err != nil {
		return fmt.Errorf("failed to build log insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("failed to insert logs: %w", err)
	}

	s.logger.Debug("Queue logs inserted", slog.Int("count", len(events)))
	return nil
}
