package report

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"
)

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 3 * time.Second
)

var rateLimitPattern = regexp.MustCompile(`(?i)requests per user per (\d+) seconds`)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy retries a call with a fixed delay. A rate-limit error naming its window
// widens the delay to that window for the remaining attempts of the call.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *slog.Logger
	Sleep       SleepFunc
	// OnFailure is called for every failed attempt
	OnFailure func(attempt int, err error)
}

// NewRetryPolicy creates a policy with the default ceiling and delay
func NewRetryPolicy(logger *slog.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
		Logger:      logger,
		Sleep:       Sleep,
	}
}

// RateLimitWindow returns the window named by a rate-limit error, if any
func RateLimitWindow(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := rateLimitPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	seconds, convErr := strconv.Atoi(m[1])
	if convErr != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// Do runs op until it succeeds, MaxAttempts is reached or ctx is done
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	delay := p.Delay
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if window, ok := RateLimitWindow(err); ok {
			delay = max(delay, window)
		}

		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}
		if p.Logger != nil {
			p.Logger.Error("Report request failed",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.Duration("retry_after", delay),
				slog.String("error", err.Error()),
			)
		}

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
