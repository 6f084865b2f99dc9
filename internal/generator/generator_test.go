package generator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindows(t *testing.T) {
	today := time.Date(2024, time.March, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule Schedule
		explicit *DateRange
		want     []DateRange
		wantErr  bool
	}{
		{
			name:     "scheduled daily is yesterday",
			schedule: ScheduledDaily,
			want:     []DateRange{{Start: date(2024, 2, 29), End: date(2024, 2, 29)}},
		},
		{
			name:     "scheduled monthly is the previous month",
			schedule: ScheduledMonthly,
			want:     []DateRange{{Start: date(2024, 2, 1), End: date(2024, 2, 29)}},
		},
		{
			name:     "manual daily splits into days",
			schedule: ManualDaily,
			explicit: &DateRange{Start: date(2024, 1, 30), End: date(2024, 2, 1)},
			want: []DateRange{
				{Start: date(2024, 1, 30), End: date(2024, 1, 30)},
				{Start: date(2024, 1, 31), End: date(2024, 1, 31)},
				{Start: date(2024, 2, 1), End: date(2024, 2, 1)},
			},
		},
		{
			name:     "manual monthly clips to the range",
			schedule: ManualMonthly,
			explicit: &DateRange{Start: date(2023, 12, 15), End: date(2024, 2, 10)},
			want: []DateRange{
				{Start: date(2023, 12, 15), End: date(2023, 12, 31)},
				{Start: date(2024, 1, 1), End: date(2024, 1, 31)},
				{Start: date(2024, 2, 1), End: date(2024, 2, 10)},
			},
		},
		{
			name:     "manual single day",
			schedule: ManualMonthly,
			explicit: &DateRange{Start: date(2024, 5, 5), End: date(2024, 5, 5)},
			want:     []DateRange{{Start: date(2024, 5, 5), End: date(2024, 5, 5)}},
		},
		{
			name:     "manual without range",
			schedule: ManualDaily,
			wantErr:  true,
		},
		{
			name:     "end before start",
			schedule: ManualDaily,
			explicit: &DateRange{Start: date(2024, 2, 2), End: date(2024, 2, 1)},
			wantErr:  true,
		},
		{
			name:     "unknown schedule",
			schedule: Schedule("hourly"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Windows(tt.schedule, today, tt.explicit)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedule(t *testing.T) {
	assert.Equal(t, domain.KindScheduled, ScheduledDaily.Kind())
	assert.Equal(t, domain.KindScheduled, ScheduledMonthly.Kind())
	assert.Equal(t, domain.KindManual, ManualDaily.Kind())
	assert.Equal(t, domain.KindManual, ManualMonthly.Kind())

	s, err := ParseSchedule("manual_monthly")
	require.NoError(t, err)
	assert.Equal(t, ManualMonthly, s)

	_, err = ParseSchedule("weekly")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLoadDefinitions(t *testing.T) {
	defs, err := LoadDefinitions("testdata/reports.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "daily_pages", defs[0].Name)
	assert.Equal(t, ScheduledDaily, defs[0].Schedule)
	assert.Equal(t, []string{"ga:date", "ga:pagePath", "ga:campaign"}, defs[0].Dimensions)
	assert.Equal(t, domain.Metric{Name: "bounceRate", Expression: "ga:bounceRate", Type: "PERCENT"}, defs[0].Metrics[1])

	assert.Equal(t, "ga:medium==organic", defs[1].Filter)

	require.NotNil(t, defs[2].DateRange)
	assert.Equal(t, date(2024, 1, 30), defs[2].DateRange.Start.UTC())
	assert.Equal(t, date(2024, 2, 2), defs[2].DateRange.End.UTC())
}

func TestLoadDefinitions_Errors(t *testing.T) {
	_, err := LoadDefinitions("testdata/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read definitions file")

	_, err = LoadDefinitions("testdata/invalid_reports.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "needs a date_range")
}

func TestReportDefinition_Due(t *testing.T) {
	monthly := ReportDefinition{Schedule: ScheduledMonthly}
	daily := ReportDefinition{Schedule: ScheduledDaily}

	assert.True(t, monthly.Due(date(2024, 3, 1)))
	assert.False(t, monthly.Due(date(2024, 3, 2)))
	assert.True(t, daily.Due(date(2024, 3, 2)))
}

func testAccounts() []domain.Account {
	return []domain.Account{
		{
			AccountID:   "acct-1",
			ViewID:      "1001",
			Credentials: `{"type":"service_account"}`,
			VdpPatterns: domain.VdpPatterns{{New: "/new/", Used: "/used/"}},
		},
		{AccountID: "acct-2", ViewID: "1002"}, // no credentials
		{AccountID: "acct-3", ViewID: "1003", Credentials: `{"type":"service_account"}`},
	}
}

func backfill() ReportDefinition {
	return ReportDefinition{
		Name:       "backfill",
		Schedule:   ManualDaily,
		Dimensions: []string{"ga:pagePath"},
		Metrics:    []domain.Metric{{Name: "pageviews", Expression: "ga:pageviews", Type: "INTEGER"}},
		SinkTable:  "ga.pages",
		DateRange:  &DateRange{Start: date(2024, 1, 1), End: date(2024, 1, 2)},
	}
}

func TestPlan(t *testing.T) {
	specs, err := Plan(backfill(), testAccounts(), date(2024, 3, 1))
	require.NoError(t, err)

	// 2 days x 2 accounts with credentials
	require.Len(t, specs, 4)

	assert.Equal(t, "acct-1", specs[0].AccountID)
	assert.Equal(t, "1001", specs[0].ViewID)
	assert.Equal(t, date(2024, 1, 1), specs[0].DateRangeStart)
	assert.Equal(t, []classifier.VdpPattern{{New: "/new/", Used: "/used/"}}, specs[0].VdpURLPatterns)
	assert.Equal(t, "acct-3", specs[1].AccountID)
	assert.Equal(t, date(2024, 1, 2), specs[2].DateRangeStart)

	specs[0].Dimensions[0] = "mutated"
	assert.Equal(t, "ga:pagePath", specs[1].Dimensions[0])
}

func TestPlan_InvalidDefinition(t *testing.T) {
	def := backfill()
	def.SinkTable = ""

	_, err := Plan(def, testAccounts(), date(2024, 3, 1))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

type fakeAccounts struct {
	accounts []domain.Account
	err      error
}

func (f *fakeAccounts) Accounts(ctx context.Context) ([]domain.Account, error) {
	return f.accounts, f.err
}

type enqueueCall struct {
	kind domain.Kind
	jobs []domain.NewJob
}

type fakeQueue struct {
	calls []enqueueCall
	err   error
	next  int64
}

func (f *fakeQueue) Enqueue(ctx context.Context, kind domain.Kind, jobs []domain.NewJob) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, enqueueCall{kind: kind, jobs: jobs})
	ids := make([]int64, len(jobs))
	for i := range jobs {
		f.next++
		ids[i] = f.next
	}
	return ids, nil
}

type fakeEncoder struct {
	err error
}

func (f *fakeEncoder) Encode(spec *domain.JobSpec) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return spec.ReportName + "|" + spec.AccountID + "|" + spec.DateRangeStart.Format(time.DateOnly), nil
}

func newTestGenerator(queue *fakeQueue, enc *fakeEncoder, accounts *fakeAccounts, today time.Time) *Generator {
	return New(&Config{
		Accounts: accounts,
		Queue:    queue,
		Encoder:  enc,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return today },
	})
}

func TestGenerator_Enqueue(t *testing.T) {
	queue := &fakeQueue{}
	g := newTestGenerator(queue, &fakeEncoder{}, &fakeAccounts{}, date(2024, 3, 1))

	ids, err := g.Enqueue(context.Background(), backfill(), testAccounts())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	require.Len(t, queue.calls, 1)
	assert.Equal(t, domain.KindManual, queue.calls[0].kind)
	assert.Equal(t, domain.NewJob{AccountID: "acct-1", Payload: "backfill|acct-1|2024-01-01"}, queue.calls[0].jobs[0])
}

func TestGenerator_Enqueue_NoAccounts(t *testing.T) {
	queue := &fakeQueue{}
	g := newTestGenerator(queue, &fakeEncoder{}, &fakeAccounts{}, date(2024, 3, 1))

	ids, err := g.Enqueue(context.Background(), backfill(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, queue.calls)
}

func TestGenerator_Enqueue_EncodeError(t *testing.T) {
	queue := &fakeQueue{}
	g := newTestGenerator(queue, &fakeEncoder{err: domain.ErrValidation}, &fakeAccounts{}, date(2024, 3, 1))

	_, err := g.Enqueue(context.Background(), backfill(), testAccounts())
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, queue.calls)
}

func TestGenerator_Run(t *testing.T) {
	defs, err := LoadDefinitions("testdata/reports.yaml")
	require.NoError(t, err)

	t.Run("due only skips monthly outside the first day", func(t *testing.T) {
		queue := &fakeQueue{}
		g := newTestGenerator(queue, &fakeEncoder{}, &fakeAccounts{accounts: testAccounts()}, date(2024, 3, 2))

		n, err := g.Run(context.Background(), defs, true)
		require.NoError(t, err)

		// daily: 1 window x 2 accounts, backfill: 4 days x 2 accounts
		assert.Equal(t, 10, n)
		require.Len(t, queue.calls, 2)
		assert.Equal(t, domain.KindScheduled, queue.calls[0].kind)
		assert.Equal(t, domain.KindManual, queue.calls[1].kind)
	})

	t.Run("all definitions", func(t *testing.T) {
		queue := &fakeQueue{}
		g := newTestGenerator(queue, &fakeEncoder{}, &fakeAccounts{accounts: testAccounts()}, date(2024, 3, 2))

		n, err := g.Run(context.Background(), defs, false)
		require.NoError(t, err)
		assert.Equal(t, 12, n)
		assert.Len(t, queue.calls, 3)
	})

	t.Run("enqueue failure is reported after all definitions", func(t *testing.T) {
		queue := &fakeQueue{err: errors.New("connection refused")}
		g := newTestGenerator(queue, &fakeEncoder{}, &fakeAccounts{accounts: testAccounts()}, date(2024, 3, 1))

		n, err := g.Run(context.Background(), defs, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, 0, n)
	})

	t.Run("account load failure", func(t *testing.T) {
		g := newTestGenerator(&fakeQueue{}, &fakeEncoder{}, &fakeAccounts{err: errors.New("boom")}, date(2024, 3, 1))

		_, err := g.Run(context.Background(), defs, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load accounts")
	})
}
