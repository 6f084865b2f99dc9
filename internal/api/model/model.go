package model

import (
	"database/sql"
	"time"
)

// QueueJob is a report_queue row without its encrypted payload
type QueueJob struct {
	QueueID      int64          `db:"queue_id"`
	AccountID    string         `db:"account_id"`
	Kind         string         `db:"kind"`
	Status       string         `db:"status"`
	BatchID      sql.NullString `db:"batch_id"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// QueueLog is a queue_logs row
type QueueLog struct {
	ID        int64     `db:"id"`
	QueueID   int64     `db:"queue_id"`
	BatchID   string    `db:"batch_id"`
	Kind      string    `db:"kind"`
	Status    string    `db:"status"`
	Message   string    `db:"message"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}
