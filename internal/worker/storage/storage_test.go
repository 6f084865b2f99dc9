package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStorage(sqlx.NewDb(db, "postgres"), logger), mock
}

func TestStorage_Dequeue(t *testing.T) {
	s, mock := newMockStorage(t)
	s.WithClaimLease(30 * time.Minute)

	t1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"queue_id", "account_id", "kind", "payload", "status", "batch_id", "created_at"}).
		AddRow(int64(9), "acct-2", "manual", "p2", "READY_TO_PROCESS", "batch-1", t2).
		AddRow(int64(7), "acct-1", "manual", "p1", "READY_TO_PROCESS", "batch-1", t1)

	mock.ExpectQuery(`UPDATE report_queue q\s+SET batch_id = \$1`).
		WithArgs("batch-1", domain.KindManual, domain.StatusReadyToProcess, float64(1800), 5).
		WillReturnRows(rows)

	jobs, err := s.Dequeue(context.Background(), domain.KindManual, "batch-1", 5)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, int64(7), jobs[0].ID)
	assert.Equal(t, int64(9), jobs[1].ID)
	assert.Equal(t, domain.KindManual, jobs[0].Kind)
	assert.Equal(t, domain.StatusReadyToProcess, jobs[0].Status)
	assert.Equal(t, "batch-1", jobs[0].BatchID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Dequeue_Errors(t *testing.T) {
	s, mock := newMockStorage(t)

	jobs, err := s.Dequeue(context.Background(), domain.KindManual, "batch-1", 0)
	require.NoError(t, err)
	assert.Nil(t, jobs)

	mock.ExpectQuery(`UPDATE report_queue q`).WillReturnError(errors.New("connection refused"))
	_, err = s.Dequeue(context.Background(), domain.KindScheduled, "batch-2", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dequeue jobs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_UpdateStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    domain.Status
		errMsg    string
		setup     func(mock sqlmock.Sqlmock)
		wantErr   bool
		errTarget error
	}{
		{
			name:   "processed",
			status: domain.StatusProcessed,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE report_queue\s+SET status = \$1`).
					WithArgs(domain.StatusProcessed, "", int64(7), domain.KindManual, domain.StatusReadyToProcess).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:   "failed with message",
			status: domain.StatusFailed,
			errMsg: "download error: quota",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE report_queue`).
					WithArgs(domain.StatusFailed, "download error: quota", int64(7), domain.KindManual, domain.StatusReadyToProcess).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name:   "already terminal is a no-op",
			status: domain.StatusProcessed,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE report_queue`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name:      "ready is not a terminal status",
			status:    domain.StatusReadyToProcess,
			setup:     func(mock sqlmock.Sqlmock) {},
			wantErr:   true,
			errTarget: domain.ErrInvalidTransition,
		},
		{
			name:   "database error",
			status: domain.StatusProcessed,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE report_queue`).WillReturnError(sql.ErrConnDone)
			},
			wantErr:   true,
			errTarget: sql.ErrConnDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			tt.setup(mock)

			err := s.UpdateStatus(context.Background(), domain.KindManual, 7, tt.status, tt.errMsg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.errTarget)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_Release(t *testing.T) {
	s, mock := newMockStorage(t)

	require.NoError(t, s.Release(context.Background(), domain.KindManual, "batch-1", nil))

	mock.ExpectExec(`UPDATE report_queue\s+SET batch_id = NULL`).
		WithArgs(sqlmock.AnyArg(), domain.KindManual, "batch-1", domain.StatusReadyToProcess).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.Release(context.Background(), domain.KindManual, "batch-1", []int64{3, 4}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Enqueue(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`INSERT INTO report_queue \(account_id, kind, payload, status\)\s+VALUES \(\$1, \$2, \$3, \$4\),\(\$5, \$6, \$7, \$8\)\s+RETURNING queue_id`).
		WithArgs("acct-1", domain.KindScheduled, "p1", domain.StatusReadyToProcess,
			"acct-2", domain.KindScheduled, "p2", domain.StatusReadyToProcess).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id"}).AddRow(int64(11)).AddRow(int64(12)))

	ids, err := s.Enqueue(context.Background(), domain.KindScheduled, []domain.NewJob{
		{AccountID: "acct-1", Payload: "p1", Kind: domain.KindManual},
		{AccountID: "acct-2", Payload: "p2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.Enqueue(context.Background(), domain.KindScheduled, []domain.NewJob{{AccountID: "acct-1"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStorage_SrpPatterns(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`^\s*SELECT pattern, srp_type\s+FROM srp_page_patterns\s+ORDER BY priority, id\s*$`).
		WillReturnRows(sqlmock.NewRows([]string{"pattern", "srp_type"}).
			AddRow("/new-inventory", 1).
			AddRow("/used-inventory", 2))

	patterns, err := s.SrpPatterns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []classifier.SrpPattern{
		{Pattern: "/new-inventory", Kind: classifier.SrpNew},
		{Pattern: "/used-inventory", Kind: classifier.SrpUsed},
	}, patterns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Accounts(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`FROM google_accounts\s+WHERE active`).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "view_id", "credentials", "vdp_url_patterns"}).
			AddRow("acct-1", "111", "{}", []byte(`[{"new_vdp_url_pattern":"/new/","used_vdp_url_pattern":"/used/"}]`)).
			AddRow("acct-2", "222", "{}", nil))

	accounts, err := s.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, domain.VdpPatterns{{New: "/new/", Used: "/used/"}}, accounts[0].VdpPatterns)
	assert.Nil(t, accounts[1].VdpPatterns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_Account_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`FROM google_accounts\s+WHERE account_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "view_id", "credentials", "vdp_url_patterns"}))

	_, err := s.Account(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_InsertLogs(t *testing.T) {
	s, mock := newMockStorage(t)

	require.NoError(t, s.InsertLogs(context.Background(), nil))

	now := time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC)
	events := []domain.LogEvent{
		{QueueID: 1, AccountID: "a", BatchID: "b", Kind: domain.KindManual, Status: domain.StatusProcessed, CreatedBy: "w", CreatedAt: now},
		{QueueID: 2, AccountID: "a", BatchID: "b", Kind: domain.KindManual, Status: domain.StatusFailed, Message: "boom", CreatedBy: "w", CreatedAt: now},
	}

	mock.ExpectExec(`INSERT INTO queue_logs .*VALUES \(\$1, .*\$8\),\(\$9, .*\$16\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.InsertLogs(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}
