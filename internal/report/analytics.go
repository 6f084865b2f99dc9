package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	analyticsreporting "google.golang.org/api/analyticsreporting/v4"
	"google.golang.org/api/option"
)

// AnalyticsClients builds Analytics Reporting v4 clients and keeps one per view id
type AnalyticsClients struct {
	mu       sync.Mutex
	services map[string]*analyticsAPI
	logger   *slog.Logger
	// extra options appended to every service, e.g. an endpoint override
	options []option.ClientOption
}

// NewAnalyticsClients creates an empty client cache
func NewAnalyticsClients(logger *slog.Logger, opts ...option.ClientOption) *AnalyticsClients {
	return &AnalyticsClients{
		services: make(map[string]*analyticsAPI),
		logger:   logger,
		options:  opts,
	}
}

// Client returns the cached client for the spec's view, creating it from the spec's
// service account credentials on first use
func (c *AnalyticsClients) Client(ctx context.Context, spec *domain.JobSpec) (API, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if svc, ok := c.services[spec.ViewID]; ok {
		return svc, nil
	}

	opts := []option.ClientOption{option.WithScopes(analyticsreporting.AnalyticsReadonlyScope)}
	if spec.Credentials != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(spec.Credentials)))
	}
	opts = append(opts, c.options...)

	// the service outlives the job that created it
	svc, err := analyticsreporting.NewService(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics reporting service: %w", err)
	}

	api := &analyticsAPI{svc: svc}
	c.services[spec.ViewID] = api

	c.logger.Info("Analytics reporting client created",
		slog.String("view_id", spec.ViewID),
		slog.Int("cached_clients", len(c.services)),
	)

	return api, nil
}

// Len returns the number of cached clients
func (c *AnalyticsClients) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.services)
}

type analyticsAPI struct {
	svc *analyticsreporting.Service
}

func (a *analyticsAPI) BatchGet(ctx context.Context, requests []Request) ([]*Page, error) {
	body := &analyticsreporting.GetReportsRequest{
		ReportRequests: make([]*analyticsreporting.ReportRequest, len(requests)),
	}
	for i, r := range requests {
		body.ReportRequests[i] = toReportRequest(r)
	}

	resp, err := a.svc.Reports.BatchGet(body).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	pages := make([]*Page, 0, len(resp.Reports))
	for _, r := range resp.Reports {
		pages = append(pages, fromReport(r))
	}
	return pages, nil
}

func toReportRequest(r Request) *analyticsreporting.ReportRequest {
	dims := make([]*analyticsreporting.Dimension, len(r.Dimensions))
	for i, d := range r.Dimensions {
		dims[i] = &analyticsreporting.Dimension{Name: d}
	}

	metrics := make([]*analyticsreporting.Metric, len(r.Metrics))
	for i, m := range r.Metrics {
		metrics[i] = &analyticsreporting.Metric{
			Expression:     m.Expression,
			Alias:          m.Alias,
			FormattingType: m.Type,
		}
	}

	return &analyticsreporting.ReportRequest{
		ViewId:            r.ViewID,
		DateRanges:        []*analyticsreporting.DateRange{{StartDate: r.StartDate, EndDate: r.EndDate}},
		Dimensions:        dims,
		Metrics:           metrics,
		FiltersExpression: r.FilterExpression,
		PageSize:          r.PageSize,
		PageToken:         r.PageToken,
	}
}

func fromReport(r *analyticsreporting.Report) *Page {
	if r == nil {
		return nil
	}

	page := &Page{NextPageToken: r.NextPageToken}

	if h := r.ColumnHeader; h != nil {
		page.Header.Dimensions = h.Dimensions
		if h.MetricHeader != nil {
			for _, e := range h.MetricHeader.MetricHeaderEntries {
				if e == nil {
					continue
				}
				page.Header.Metrics = append(page.Header.Metrics, MetricHeaderEntry{Name: e.Name, Type: e.Type})
			}
		}
	}

	if r.Data != nil {
		page.Rows = make([]*Row, len(r.Data.Rows))
		for i, row := range r.Data.Rows {
			if row == nil {
				continue
			}
			out := &Row{Dimensions: row.Dimensions}
			for _, v := range row.Metrics {
				if v == nil {
					out.Metrics = append(out.Metrics, nil)
					continue
				}
				out.Metrics = append(out.Metrics, v.Values)
			}
			page.Rows[i] = out
		}
	}

	return page
}
