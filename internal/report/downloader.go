// Package report downloads paginated analytics reports.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// DefaultPageDelay is the pause between page requests
const DefaultPageDelay = 5 * time.Second

// Downloader fetches every page of a job's report
type Downloader struct {
	clients   ClientProvider
	retry     *RetryPolicy
	pageDelay time.Duration
	pageSize  int
	timeout   time.Duration
	sleep     SleepFunc
	logger    *slog.Logger
}

// DownloaderConfig holds downloader configuration
type DownloaderConfig struct {
	Clients   ClientProvider
	Retry     *RetryPolicy
	PageDelay time.Duration
	PageSize  int

	// RequestTimeout bounds each API attempt; zero means no limit
	RequestTimeout time.Duration
	Sleep          SleepFunc
	Logger         *slog.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(cfg *DownloaderConfig) *Downloader {
	d := &Downloader{
		clients:   cfg.Clients,
		retry:     cfg.Retry,
		pageDelay: cfg.PageDelay,
		pageSize:  cfg.PageSize,
		timeout:   cfg.RequestTimeout,
		sleep:     cfg.Sleep,
		logger:    cfg.Logger,
	}
	if d.retry == nil {
		d.retry = NewRetryPolicy(cfg.Logger)
	}
	if d.pageDelay <= 0 {
		d.pageDelay = DefaultPageDelay
	}
	if d.sleep == nil {
		d.sleep = Sleep
	}
	return d
}

// Download returns the concatenation of all pages for spec. Every failure is wrapped in domain.ErrDownload.
func (d *Downloader) Download(ctx context.Context, spec *domain.JobSpec) (*AggregatedReport, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: job spec is nil", domain.ErrValidation)
	}

	api, err := d.clients.Client(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create reporting client: %w", domain.ErrDownload, err)
	}

	req := BuildRequest(spec, d.pageSize)

	first, err := d.fetch(ctx, api, req)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, fmt.Errorf("%w: empty response for view %s", domain.ErrDownload, spec.ViewID)
	}

	agg := &AggregatedReport{
		Header: first.Header,
		Rows:   append([]*Row{}, first.Rows...),
		Pages:  1,
	}

	token := first.NextPageToken
	for token != "" {
		if err := d.sleep(ctx, d.pageDelay); err != nil {
			return nil, fmt.Errorf("%w: pagination interrupted: %w", domain.ErrDownload, err)
		}

		req.PageToken = token
		page, err := d.fetch(ctx, api, req)
		if err != nil {
			return nil, err
		}
		if page == nil {
			break
		}

		agg.Rows = append(agg.Rows, page.Rows...)
		agg.Pages++
		token = page.NextPageToken
	}

	if d.logger != nil {
		d.logger.Debug("Report downloaded",
			slog.String("view_id", spec.ViewID),
			slog.String("report", spec.ReportName),
			slog.Int("pages", agg.Pages),
			slog.Int("rows", len(agg.Rows)),
		)
	}

	return agg, nil
}

// fetch requests one page under the retry policy. A nil page means the API returned no report.
func (d *Downloader) fetch(ctx context.Context, api API, req Request) (*Page, error) {
	var page *Page
	err := d.retry.Do(ctx, func(ctx context.Context) error {
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		pages, err := api.BatchGet(ctx, []Request{req})
		if err != nil {
			return err
		}
		page = nil
		if len(pages) > 0 {
			page = pages[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDownload, err)
	}
	return page, nil
}
