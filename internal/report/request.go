package report

import (
	"strings"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// MaxPageSize is the largest page the reporting API accepts
const MaxPageSize = 10000

const (
	namespacePrefix = "ga:"
	dateLayout      = "2006-01-02"
)

// MetricRequest is one requested metric expression
type MetricRequest struct {
	Expression string
	Alias      string
	Type       string
}

// Request is a single report request. PageToken is empty for the first page.
type Request struct {
	ViewID           string
	StartDate        string
	EndDate          string
	Dimensions       []string
	Metrics          []MetricRequest
	FilterExpression string
	PageSize         int64
	PageToken        string
}

// BuildRequest converts a job spec into a first-page request. pageSize is capped at
// MaxPageSize; zero or negative selects the maximum.
func BuildRequest(spec *domain.JobSpec, pageSize int) Request {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	dims := make([]string, len(spec.Dimensions))
	for i, d := range spec.Dimensions {
		dims[i] = withNamespace(d)
	}

	metrics := make([]MetricRequest, len(spec.Metrics))
	for i, m := range spec.Metrics {
		metrics[i] = MetricRequest{
			Expression: withNamespace(m.Expression),
			Alias:      m.Name,
			Type:       m.Type,
		}
	}

	return Request{
		ViewID:           spec.ViewID,
		StartDate:        spec.DateRangeStart.Format(dateLayout),
		EndDate:          spec.DateRangeEnd.Format(dateLayout),
		Dimensions:       dims,
		Metrics:          metrics,
		FilterExpression: spec.FilterExpression,
		PageSize:         int64(pageSize),
	}
}

func withNamespace(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(strings.ToLower(name), namespacePrefix) {
		return name
	}
	return namespacePrefix + name
}
