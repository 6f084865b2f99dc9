package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/enrich"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/schema"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// processJob runs one job to a terminal status and emits its log event. Errors never
// leave this function.
func (w *Worker) processJob(ctx context.Context, queue Queue, snk Sink, batchID string, job domain.Job, srp []classifier.SrpPattern, logger *slog.Logger) {
	logger = logger.With(slog.Int64("queue_id", job.ID), slog.String("account_id", job.AccountID))
	started := w.now()

	logger.Info("Processing job")

	rows, err := w.executeJob(ctx, snk, job, srp, logger)

	status := domain.StatusProcessed
	message := fmt.Sprintf("loaded %d rows", rows)
	errorMsg := ""
	if err != nil {
		status = domain.StatusFailed
		message = err.Error()
		errorMsg = err.Error()

		logger.Error("Job execution failed",
			slog.String("error_class", errorClass(err)),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("Job completed successfully", slog.Int64("rows", rows))
	}

	if updateErr := queue.UpdateStatus(ctx, w.kind, job.ID, status, errorMsg); updateErr != nil {
		logger.Error("Failed to update job status",
			slog.String("status", string(status)),
			slog.String("error", fmt.Errorf("%w: %w", domain.ErrInfrastructure, updateErr).Error()),
		)
	}

	w.metrics.JobFinished(string(w.kind), string(status), w.now().Sub(started))

	event := domain.LogEvent{
		QueueID:   job.ID,
		AccountID: job.AccountID,
		BatchID:   batchID,
		Kind:      w.kind,
		Status:    status,
		Message:   message,
		CreatedBy: w.createdBy,
		CreatedAt: w.now(),
	}
	if pubErr := w.publisher.Publish(ctx, event); pubErr != nil {
		logger.Error("Failed to publish job log event", slog.String("error", pubErr.Error()))
	}
}

// executeJob is decode, download, materialize and load. A panic becomes a
// materialization error for this job only.
func (w *Worker) executeJob(ctx context.Context, snk Sink, job domain.Job, srp []classifier.SrpPattern, logger *slog.Logger) (rows int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrMaterialization, r)
		}
	}()

	spec, err := w.decoder.Decode(job.Payload)
	if err != nil {
		return 0, err
	}
	if spec.AccountID != job.AccountID {
		return 0, fmt.Errorf("%w: payload account %q does not match job account %q", domain.ErrValidation, spec.AccountID, job.AccountID)
	}

	rep, err := w.downloader.Download(ctx, spec)
	if err != nil {
		return 0, err
	}
	w.metrics.PagesDownloaded(spec.ReportName, rep.Pages)

	logger.Debug("Report downloaded",
		slog.String("report", spec.ReportName),
		slog.Int("pages", rep.Pages),
		slog.Int("rows", len(rep.Rows)),
	)

	pages := classifier.New(spec.VdpURLPatterns, srp)
	sch, err := schema.Build(spec.SinkTable, rep.Header, enrich.NewDefault(pages))
	if err != nil {
		return 0, err
	}

	records, err := sch.Materialize(schema.RecordMeta{
		AccountID:   spec.AccountID,
		WindowStart: spec.DateRangeStart,
		WindowEnd:   spec.DateRangeEnd,
		CreatedAt:   w.now(),
		CreatedBy:   w.createdBy,
	}, rep)
	if err != nil {
		return 0, err
	}

	rows, err = snk.BulkLoad(ctx, sch, records)
	if err != nil {
		return 0, err
	}
	w.metrics.RowsLoaded(sch.Table(), rows)

	return rows, nil
}
