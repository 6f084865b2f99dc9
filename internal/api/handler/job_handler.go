package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apidomain "github.com/joshuadwieczorek/ga-queue-processor/internal/api/domain"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/dto"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/model"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/storage"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/generator"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// CreateJob handles POST /api/v1/jobs
// Queues a manual report for one account
func (h *JobHandler) CreateJob(c *gin.Context) {
	h.logger.Info("CreateJob called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	start, err := time.Parse(apidomain.DateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(apidomain.DateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}

	schedule := generator.ManualDaily
	if req.Schedule != "" {
		schedule = generator.Schedule(req.Schedule)
	}

	metrics := make([]domain.Metric, len(req.Metrics))
	for i, m := range req.Metrics {
		metrics[i] = domain.Metric{Name: m.Name, Expression: m.Expression, Type: m.Type}
	}

	def := generator.ReportDefinition{
		Name:       req.ReportName,
		Schedule:   schedule,
		Dimensions: req.Dimensions,
		Metrics:    metrics,
		Filter:     req.Filter,
		SinkTable:  req.SinkTable,
		DateRange:  &generator.DateRange{Start: start, End: end},
	}

	ctx, cancel := h.context(c.Request.Context())
	defer cancel()

	account, err := h.accounts.Account(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		h.logger.Error("Failed to load account", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return
	}

	ids, err := h.enqueuer.Enqueue(ctx, def, []domain.Account{*account})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue job"})
		return
	}

	if len(ids) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Account has no reporting credentials"})
		return
	}

	kind := schedule.Kind()
	h.metrics.JobsEnqueued(string(kind), len(ids))

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		QueueIDs: ids,
		Kind:     string(kind),
		Count:    len(ids),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	queueID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	ctx, cancel := h.context(c.Request.Context())
	defer cancel()

	job, err := h.jobs.GetJob(ctx, queueID)
	if err != nil {
		h.writeJobError(c, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// GetJobLogs handles GET /api/v1/jobs/:job_id/logs
func (h *JobHandler) GetJobLogs(c *gin.Context) {
	queueID, ok := h.parseJobID(c)
	if !ok {
		return
	}

	ctx, cancel := h.context(c.Request.Context())
	defer cancel()

	if _, err := h.jobs.GetJob(ctx, queueID); err != nil {
		h.writeJobError(c, err)
		return
	}

	logs, err := h.jobs.JobLogs(ctx, queueID)
	if err != nil {
		h.logger.Error("Failed to list job logs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list job logs"})
		return
	}

	resp := dto.JobLogsResponse{QueueID: queueID, Logs: make([]dto.JobLogDTO, len(logs))}
	for i, l := range logs {
		resp.Logs[i] = dto.JobLogDTO{
			BatchID:   l.BatchID,
			Status:    l.Status,
			Message:   l.Message,
			CreatedBy: l.CreatedBy,
			CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filters and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	h.logger.Debug("ListJobs called", slog.String("query", c.Request.URL.RawQuery))

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = apidomain.DefaultPageSize
	}

	if req.PageSize > apidomain.MaxPageSize {
		req.PageSize = apidomain.MaxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		AccountID: req.AccountID,
		Kind:      req.Kind,
		Status:    req.Status,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	}

	ctx, cancel := h.context(c.Request.Context())
	defer cancel()

	jobs, err := h.jobs.ListJobs(ctx, filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			QueueID:   last.QueueID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func (h *JobHandler) parseJobID(c *gin.Context) (int64, bool) {
	raw := c.Param("job_id")
	queueID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || queueID <= 0 {
		h.logger.Warn("Invalid job_id", slog.String("job_id", raw))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": apidomain.ErrInvalidJobID.Error(),
		})
		return 0, false
	}
	return queueID, true
}

func (h *JobHandler) writeJobError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	h.logger.Error("Failed to get job", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
}

func toJobDTO(job *model.QueueJob) dto.JobDTO {
	return dto.JobDTO{
		QueueID:      job.QueueID,
		AccountID:    job.AccountID,
		Kind:         job.Kind,
		Status:       job.Status,
		BatchID:      job.BatchID.String,
		ErrorMessage: job.ErrorMessage.String,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
