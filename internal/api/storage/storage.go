package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/model"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// Storage is the read side of the report queue used by the admin API
type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) GetJob(ctx context.Context, queueID int64) (*model.QueueJob, error) {
	var job model.QueueJob
	query := `
		SELECT
			queue_id, account_id, kind, status,
			batch_id, error_message, created_at, updated_at
		FROM report_queue
		WHERE queue_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	AccountID string
	Kind      string
	Status    string
	PageSize  int
	Cursor    *JobCursor
}

// JobCursor is the keyset position of the last job of a page
type JobCursor struct {
	CreatedAt time.Time
	QueueID   int64
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can tell whether
// another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.QueueJob, error) {
	query := `
        SELECT
            queue_id, account_id, kind, status,
            batch_id, error_message, created_at, updated_at
        FROM report_queue
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.AccountID != "" {
		query += fmt.Sprintf(" AND account_id = $%d", argIdx)
		args = append(args, filter.AccountID)
		argIdx++
	}

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, queue_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.QueueID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, queue_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.QueueJob
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// JobLogs returns the lifecycle log of a job, oldest first
func (s *Storage) JobLogs(ctx context.Context, queueID int64) ([]model.QueueLog, error) {
	query := `
		SELECT id, queue_id, batch_id, kind, status, message, created_by, created_at
		FROM queue_logs
		WHERE queue_id = $1
		ORDER BY created_at, id
	`

	var logs []model.QueueLog
	if err := s.db.SelectContext(ctx, &logs, query, queueID); err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}

	return logs, nil
}
