package domain

import (
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
)

// Job is one row of the durable report queue
type Job struct {
	ID        int64     `db:"queue_id"`
	AccountID string    `db:"account_id"`
	Kind      Kind      `db:"kind"`
	Payload   string    `db:"payload"` // encrypted JobSpec
	Status    Status    `db:"status"`
	BatchID   string    `db:"batch_id"`
	CreatedAt time.Time `db:"created_at"`
}

// NewJob is a job about to be enqueued
type NewJob struct {
	AccountID string `db:"account_id"`
	Kind      Kind   `db:"kind"`
	Payload   string `db:"payload"`
	Status    Status `db:"status"`
}

// Metric is one requested report metric
type Metric struct {
	Name       string `json:"name" validate:"required"`
	Expression string `json:"expression" validate:"required"`
	Type       string `json:"type"`
}

// JobSpec is the decrypted payload of a job: what to download and where to load it
type JobSpec struct {
	ReportName       string                  `json:"report_name" validate:"required"`
	AccountID        string                  `json:"account_id" validate:"required"`
	ViewID           string                  `json:"view_id" validate:"required"`
	DateRangeStart   time.Time               `json:"date_range_start" validate:"required"`
	DateRangeEnd     time.Time               `json:"date_range_end" validate:"required,gtefield=DateRangeStart"`
	Dimensions       []string                `json:"dimensions" validate:"required,min=1,dive,required"`
	Metrics          []Metric                `json:"metrics" validate:"required,min=1,dive"`
	FilterExpression string                  `json:"filter_expression,omitempty"`
	SinkTable        string                  `json:"sink_table" validate:"required"`
	Credentials      string                  `json:"credentials,omitempty"`
	VdpURLPatterns   []classifier.VdpPattern `json:"vdp_url_patterns,omitempty"`
}

// LogEvent is a lifecycle entry for a job, published to the broker and persisted by the log service
type LogEvent struct {
	QueueID   int64     `json:"queue_id" db:"queue_id"`
	AccountID string    `json:"account_id" db:"account_id"`
	BatchID   string    `json:"batch_id" db:"batch_id"`
	Kind      Kind      `json:"kind" db:"kind"`
	Status    Status    `json:"status" db:"status"`
	Message   string    `json:"message" db:"message"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
