package classifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// PatternLoader reads the SRP pattern set from its source of truth
type PatternLoader func(ctx context.Context) ([]SrpPattern, error)

// PatternCache holds the process-wide SRP pattern set. It is written once, under mu,
// and read without locking afterwards.
type PatternCache struct {
	mu       sync.Mutex
	patterns atomic.Pointer[[]SrpPattern]
}

// NewPatternCache creates an empty cache
func NewPatternCache() *PatternCache {
	return &PatternCache{}
}

// EnsureLoaded populates the cache on first use and returns the cached patterns.
// Concurrent callers block until the first load finishes. A failed load leaves the
// cache empty so a later call can retry.
func (c *PatternCache) EnsureLoaded(ctx context.Context, load PatternLoader) ([]SrpPattern, error) {
	if p := c.patterns.Load(); p != nil {
		return *p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p := c.patterns.Load(); p != nil {
		return *p, nil
	}

	patterns, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load srp patterns: %w", err)
	}
	if patterns == nil {
		patterns = []SrpPattern{}
	}

	c.patterns.Store(&patterns)
	return patterns, nil
}

// Patterns returns the cached patterns, or nil before the first successful load
func (c *PatternCache) Patterns() []SrpPattern {
	if p := c.patterns.Load(); p != nil {
		return *p
	}
	return nil
}

// Loaded reports whether the cache has been populated
func (c *PatternCache) Loaded() bool {
	return c.patterns.Load() != nil
}
