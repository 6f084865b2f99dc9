package report

import (
	"context"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// MetricHeaderEntry names a metric and its API-declared type (INTEGER, PERCENT, ...)
type MetricHeaderEntry struct {
	Name string
	Type string
}

// ColumnHeader describes the columns of a report page
type ColumnHeader struct {
	Dimensions []string
	Metrics    []MetricHeaderEntry
}

// Row is one report row. Metrics holds one value set per requested date range.
type Row struct {
	Dimensions []string
	Metrics    [][]string
}

// Page is one API response page
type Page struct {
	Header        ColumnHeader
	Rows          []*Row
	NextPageToken string
}

// AggregatedReport is every page of one job concatenated. Header comes from the first
// page and is assumed identical on the following pages.
type AggregatedReport struct {
	Header ColumnHeader
	Rows   []*Row
	Pages  int
}

// API is the remote reporting endpoint. BatchGet returns one page per request.
type API interface {
	BatchGet(ctx context.Context, requests []Request) ([]*Page, error)
}

// ClientProvider hands out an API bound to the credentials and view of a job
type ClientProvider interface {
	Client(ctx context.Context, spec *domain.JobSpec) (API, error)
}

// ClientProviderFunc adapts a function to ClientProvider
type ClientProviderFunc func(ctx context.Context, spec *domain.JobSpec) (API, error)

// Client calls f
func (f ClientProviderFunc) Client(ctx context.Context, spec *domain.JobSpec) (API, error) {
	return f(ctx, spec)
}
