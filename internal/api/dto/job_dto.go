package dto

type MetricDTO struct {
	Name       string `json:"name" binding:"required"`
	Expression string `json:"expression" binding:"required"`
	Type       string `json:"type"`
}

// CreateJobRequest queues one manual report for an account. Dates are YYYY-MM-DD and
// inclusive; the range is split per day or per month depending on schedule.
type CreateJobRequest struct {
	AccountID  string      `json:"account_id" binding:"required"`
	ReportName string      `json:"report_name" binding:"required"`
	Schedule   string      `json:"schedule" binding:"omitempty,oneof=manual_daily manual_monthly"`
	StartDate  string      `json:"start_date" binding:"required"`
	EndDate    string      `json:"end_date" binding:"required"`
	Dimensions []string    `json:"dimensions" binding:"required,min=1,dive,required"`
	Metrics    []MetricDTO `json:"metrics" binding:"required,min=1,dive"`
	Filter     string      `json:"filter_expression"`
	SinkTable  string      `json:"sink_table" binding:"required"`
}

type CreateJobResponse struct {
	QueueIDs []int64 `json:"queue_ids"`
	Kind     string  `json:"kind"`
	Count    int     `json:"count"`
}

type ListJobsRequest struct {
	AccountID string `form:"account_id"`
	Kind      string `form:"kind" binding:"omitempty,oneof=scheduled manual"`
	Status    string `form:"status" binding:"omitempty,oneof=READY_TO_PROCESS PROCESSED FAILED"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	QueueID      int64  `json:"queue_id"`
	AccountID    string `json:"account_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	BatchID      string `json:"batch_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type JobLogDTO struct {
	BatchID   string `json:"batch_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

type JobLogsResponse struct {
	QueueID int64       `json:"queue_id"`
	Logs    []JobLogDTO `json:"logs"`
}
