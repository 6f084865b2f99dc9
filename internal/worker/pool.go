package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// batchRegistry tracks running pipelines by batch id
type batchRegistry struct {
	mu      sync.Mutex
	running map[string]time.Time
}

func newBatchRegistry() *batchRegistry {
	return &batchRegistry{running: make(map[string]time.Time)}
}

func (r *batchRegistry) add(id string, started time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[id] = started
}

func (r *batchRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

// Len returns the number of running pipelines
func (r *batchRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// IDs returns the running batch ids, oldest first
func (r *batchRegistry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.running[ids[i]].Before(r.running[ids[j]])
	})
	return ids
}

// admit starts a pipeline whenever a slot is free. Acquire blocks while all slots are
// taken and returns once ctx is canceled.
func (w *Worker) admit(ctx context.Context) {
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}
		if ctx.Err() != nil {
			w.sem.Release(1)
			return
		}

		batchID := uuid.NewString()
		w.batches.add(batchID, w.now())
		w.metrics.BatchStarted(string(w.kind))

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.sem.Release(1)
			defer w.metrics.BatchFinished(string(w.kind))
			defer w.batches.remove(batchID)

			w.runPipeline(ctx, batchID)
		}()
	}
}

// runPipeline processes one batch, then waits out the configured delay before the slot
// is handed back. A pipeline that claimed nothing waits at least idleWait. A panic ends
// only this pipeline.
func (w *Worker) runPipeline(ctx context.Context, batchID string) {
	logger := w.logger.With(slog.String("batch_id", batchID))

	claimed := 0
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Pipeline panicked",
					slog.String("panic", fmt.Sprint(r)),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		claimed = w.processBatch(ctx, batchID, logger)
	}()

	wait := w.waitTime
	if claimed == 0 && wait < w.idleWait {
		wait = w.idleWait
	}
	if wait > 0 {
		// canceled sleeps just end the pipeline early
		_ = w.sleep(ctx, wait)
	}
}
