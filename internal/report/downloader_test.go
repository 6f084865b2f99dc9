package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI replays scripted responses, one per BatchGet call
type fakeAPI struct {
	mu       sync.Mutex
	calls    []Request
	pages    []*Page
	errs     []error
	position int
}

func (f *fakeAPI) BatchGet(ctx context.Context, requests []Request) ([]*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, requests[0])
	i := f.position
	f.position++

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.pages) || f.pages[i] == nil {
		return nil, nil
	}
	return []*Page{f.pages[i]}, nil
}

// sleepRecorder records requested delays without sleeping
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testSpec() *domain.JobSpec {
	return &domain.JobSpec{
		ReportName:     "pages",
		AccountID:      "acct-1",
		ViewID:         "12345",
		DateRangeStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateRangeEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Dimensions:     []string{"pagePath", "ga:campaign"},
		Metrics: []domain.Metric{
			{Name: "sessions", Expression: "sessions", Type: "INTEGER"},
			{Name: "revenue", Expression: "ga:transactionRevenue", Type: "CURRENCY"},
		},
		FilterExpression: "ga:pagePath=~^/vehicles",
		SinkTable:        "analytics.pages",
	}
}

func newTestDownloader(api API, rec *sleepRecorder) *Downloader {
	retry := NewRetryPolicy(testLogger())
	retry.Sleep = rec.Sleep

	return NewDownloader(&DownloaderConfig{
		Clients: ClientProviderFunc(func(ctx context.Context, spec *domain.JobSpec) (API, error) {
			return api, nil
		}),
		Retry:  retry,
		Sleep:  rec.Sleep,
		Logger: testLogger(),
	})
}

func page(token string, dims ...string) *Page {
	p := &Page{
		Header:        ColumnHeader{Dimensions: []string{"ga:pagePath"}, Metrics: []MetricHeaderEntry{{Name: "sessions", Type: "INTEGER"}}},
		NextPageToken: token,
	}
	for _, d := range dims {
		p.Rows = append(p.Rows, &Row{Dimensions: []string{d}, Metrics: [][]string{{"1"}}})
	}
	return p
}

func TestBuildRequest(t *testing.T) {
	req := BuildRequest(testSpec(), 50000)

	assert.Equal(t, "12345", req.ViewID)
	assert.Equal(t, "2024-03-01", req.StartDate)
	assert.Equal(t, "2024-03-31", req.EndDate)
	assert.Equal(t, []string{"ga:pagePath", "ga:campaign"}, req.Dimensions)
	assert.Equal(t, []MetricRequest{
		{Expression: "ga:sessions", Alias: "sessions", Type: "INTEGER"},
		{Expression: "ga:transactionRevenue", Alias: "revenue", Type: "CURRENCY"},
	}, req.Metrics)
	assert.Equal(t, "ga:pagePath=~^/vehicles", req.FilterExpression)
	assert.Equal(t, int64(MaxPageSize), req.PageSize)
	assert.Empty(t, req.PageToken)

	assert.Equal(t, int64(500), BuildRequest(testSpec(), 500).PageSize)
	assert.Equal(t, int64(MaxPageSize), BuildRequest(testSpec(), 0).PageSize)
}

func TestDownloader_Pagination(t *testing.T) {
	first := page("token-1", "/a", "/b")
	first.Header.Dimensions = []string{"ga:pagePath"}
	second := page("token-2", "/c")
	second.Header.Dimensions = []string{"ga:somethingElse"}
	third := page("", "/d", "/e")

	api := &fakeAPI{pages: []*Page{first, second, third}}
	rec := &sleepRecorder{}
	d := newTestDownloader(api, rec)

	agg, err := d.Download(context.Background(), testSpec())
	require.NoError(t, err)

	var got []string
	for _, r := range agg.Rows {
		got = append(got, r.Dimensions[0])
	}
	assert.Equal(t, []string{"/a", "/b", "/c", "/d", "/e"}, got)
	assert.Equal(t, 3, agg.Pages)
	assert.Equal(t, []string{"ga:pagePath"}, agg.Header.Dimensions)

	assert.Equal(t, []time.Duration{DefaultPageDelay, DefaultPageDelay}, rec.delays)

	require.Len(t, api.calls, 3)
	assert.Empty(t, api.calls[0].PageToken)
	assert.Equal(t, "token-1", api.calls[1].PageToken)
	assert.Equal(t, "token-2", api.calls[2].PageToken)
}

func TestDownloader_StopsOnEmptyResponse(t *testing.T) {
	api := &fakeAPI{pages: []*Page{page("token-1", "/a"), nil}}
	rec := &sleepRecorder{}
	d := newTestDownloader(api, rec)

	agg, err := d.Download(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Len(t, agg.Rows, 1)
	assert.Equal(t, 1, agg.Pages)
	assert.Len(t, api.calls, 2)
}

func TestDownloader_EmptyFirstResponse(t *testing.T) {
	d := newTestDownloader(&fakeAPI{}, &sleepRecorder{})

	_, err := d.Download(context.Background(), testSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDownload)
}

func TestDownloader_RateLimitRetry(t *testing.T) {
	rateLimited := errors.New("googleapi: Error 429: Quota exceeded for quota metric 'Requests per user per 100 seconds', rateLimitExceeded")
	api := &fakeAPI{
		errs:  []error{rateLimited, rateLimited, nil},
		pages: []*Page{nil, nil, page("", "/a")},
	}
	rec := &sleepRecorder{}
	d := newTestDownloader(api, rec)

	agg, err := d.Download(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Len(t, agg.Rows, 1)
	assert.Len(t, api.calls, 3)
	assert.Equal(t, []time.Duration{100 * time.Second, 100 * time.Second}, rec.delays)
}

func TestDownloader_RetriesExhausted(t *testing.T) {
	boom := errors.New("backend error")
	api := &fakeAPI{errs: []error{boom, boom, boom, boom}}
	rec := &sleepRecorder{}
	d := newTestDownloader(api, rec)

	_, err := d.Download(context.Background(), testSpec())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDownload)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, api.calls, DefaultMaxAttempts)
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, rec.delays)
}

func TestDownloader_ClientError(t *testing.T) {
	d := NewDownloader(&DownloaderConfig{
		Clients: ClientProviderFunc(func(ctx context.Context, spec *domain.JobSpec) (API, error) {
			return nil, errors.New("bad credentials")
		}),
		Logger: testLogger(),
	})

	_, err := d.Download(context.Background(), testSpec())
	assert.ErrorIs(t, err, domain.ErrDownload)

	_, err = d.Download(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRetryPolicy(t *testing.T) {
	t.Run("succeeds first try", func(t *testing.T) {
		rec := &sleepRecorder{}
		p := &RetryPolicy{MaxAttempts: 3, Delay: time.Second, Sleep: rec.Sleep}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, rec.delays)
	})

	t.Run("reports every failure", func(t *testing.T) {
		rec := &sleepRecorder{}
		var failures []int
		p := &RetryPolicy{
			MaxAttempts: 2,
			Delay:       time.Second,
			Sleep:       rec.Sleep,
			OnFailure:   func(attempt int, err error) { failures = append(failures, attempt) },
		}
		err := p.Do(context.Background(), func(ctx context.Context) error { return errors.New("nope") })
		require.Error(t, err)
		assert.Equal(t, []int{1, 2}, failures)
		assert.Equal(t, []time.Duration{time.Second}, rec.delays)
	})

	t.Run("rate limit window never shortens the delay", func(t *testing.T) {
		rec := &sleepRecorder{}
		p := &RetryPolicy{MaxAttempts: 3, Delay: 30 * time.Second, Sleep: rec.Sleep}
		errs := []error{
			errors.New("Quota Error: Requests per user per 1 seconds"),
			errors.New("Quota Error: Requests per user per 100 seconds"),
			nil,
		}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errs[calls-1]
		})
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{30 * time.Second, 100 * time.Second}, rec.delays)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec := &sleepRecorder{}
		p := &RetryPolicy{MaxAttempts: 5, Delay: time.Second, Sleep: rec.Sleep}
		calls := 0
		err := p.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("nope")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestRateLimitWindow(t *testing.T) {
	d, ok := RateLimitWindow(errors.New("Requests per user per 100 seconds exceeded"))
	assert.True(t, ok)
	assert.Equal(t, 100*time.Second, d)

	d, ok = RateLimitWindow(errors.New("requests per user per 60 seconds"))
	assert.True(t, ok)
	assert.Equal(t, time.Minute, d)

	_, ok = RateLimitWindow(errors.New("internal error"))
	assert.False(t, ok)

	_, ok = RateLimitWindow(nil)
	assert.False(t, ok)
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

// deadlineAPI reports whether each call carried a deadline
type deadlineAPI struct {
	deadlines []bool
}

func (f *deadlineAPI) BatchGet(ctx context.Context, requests []Request) ([]*Page, error) {
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
	return []*Page{page("", "/a")}, nil
}

func TestDownloader_RequestTimeout(t *testing.T) {
	api := &deadlineAPI{}
	d := NewDownloader(&DownloaderConfig{
		Clients: ClientProviderFunc(func(ctx context.Context, spec *domain.JobSpec) (API, error) {
			return api, nil
		}),
		RequestTimeout: time.Minute,
		Logger:         testLogger(),
	})

	_, err := d.Download(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, api.deadlines)
}
