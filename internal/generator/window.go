package generator

import (
	"fmt"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
)

// day truncates t to midnight UTC of its calendar date
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func lastOfMonth(t time.Time) time.Time {
	return firstOfMonth(t).AddDate(0, 1, -1)
}

// Windows returns the date windows a schedule covers. Scheduled windows are relative to
// today; manual windows split the explicit range into days or calendar months.
func Windows(schedule Schedule, today time.Time, explicit *DateRange) ([]DateRange, error) {
	today = day(today)

	switch schedule {
	case ScheduledDaily:
		yesterday := today.AddDate(0, 0, -1)
		return []DateRange{{Start: yesterday, End: yesterday}}, nil

	case ScheduledMonthly:
		prev := firstOfMonth(today).AddDate(0, -1, 0)
		return []DateRange{{Start: prev, End: lastOfMonth(prev)}}, nil

	case ManualDaily, ManualMonthly:
		if explicit == nil {
			return nil, fmt.Errorf("%w: schedule %s needs a date range", domain.ErrValidation, schedule)
		}
		start, end := day(explicit.Start), day(explicit.End)
		if end.Before(start) {
			return nil, fmt.Errorf("%w: date range end %s is before start %s",
				domain.ErrValidation, end.Format(time.DateOnly), start.Format(time.DateOnly))
		}
		if schedule == ManualDaily {
			return splitDays(start, end), nil
		}
		return splitMonths(start, end), nil

	default:
		return nil, fmt.Errorf("%w: unknown schedule %q", domain.ErrValidation, schedule)
	}
}

func splitDays(start, end time.Time) []DateRange {
	var out []DateRange
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, DateRange{Start: d, End: d})
	}
	return out
}

// splitMonths clips the first and last month to the range
func splitMonths(start, end time.Time) []DateRange {
	var out []DateRange
	for s := start; !s.After(end); s = firstOfMonth(s).AddDate(0, 1, 0) {
		e := lastOfMonth(s)
		if e.After(end) {
			e = end
		}
		out = append(out, DateRange{Start: s, End: e})
	}
	return out
}
