// Package stats tracks product view counts and flushes them to the catalog
// in batches.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFlushInterval is how often buffered view counts are pushed to the
// sink when the background loop is running.
const DefaultFlushInterval = 30 * time.Second

// ViewSink receives accumulated view deltas, typically a catalog repository.
type ViewSink interface {
	IncrementViews(ctx context.Context, id string, delta int64) error
}

// ViewTracker buffers view events in memory and periodically flushes the
// accumulated deltas to the sink. Recording is cheap and never blocks on the
// database; the popular sort tolerates counts lagging by one flush interval.
type ViewTracker struct {
	sink     ViewSink
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	pending map[string]int64

	recorded int64 // Total views recorded
	flushed  int64 // Total views successfully flushed

	stop chan struct{}
	done chan struct{}
}

// NewViewTracker creates a tracker flushing to sink every interval. A zero
// or negative interval falls back to DefaultFlushInterval.
func NewViewTracker(sink ViewSink, interval time.Duration, logger *slog.Logger) *ViewTracker {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &ViewTracker{
		sink:     sink,
		logger:   logger,
		interval: interval,
		pending:  make(map[string]int64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Record buffers one view for the product.
func (t *ViewTracker) Record(productID string) {
	if productID == "" {
		return
	}
	atomic.AddInt64(&t.recorded, 1)

	t.mu.Lock()
	t.pending[productID]++
	t.mu.Unlock()
}

// Flush pushes all buffered deltas to the sink. Deltas that fail to apply
// are re-buffered so views are not lost to a transient sink error.
func (t *ViewTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	batch := t.pending
	t.pending = make(map[string]int64)
	t.mu.Unlock()

	var firstErr error
	for id, delta := range batch {
		if err := t.sink.IncrementViews(ctx, id, delta); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			t.logger.Warn("failed to flush view counts",
				slog.String("product_id", id),
				slog.Int64("delta", delta),
				slog.String("error", err.Error()),
			)

			t.mu.Lock()
			t.pending[id] += delta
			t.mu.Unlock()
			continue
		}
		atomic.AddInt64(&t.flushed, delta)
	}
	return firstErr
}

// Start launches the periodic flush loop.
func (t *ViewTracker) Start() {
	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				t.Flush(ctx)
				cancel()
			case <-t.stop:
				return
			}
		}
	}()
}

// Stop halts the flush loop and performs a final flush so buffered views
// survive shutdown.
func (t *ViewTracker) Stop(ctx context.Context) error {
	close(t.stop)
	<-t.done
	return t.Flush(ctx)
}

// Recorded returns the total number of views recorded.
func (t *ViewTracker) Recorded() int64 {
	return atomic.LoadInt64(&t.recorded)
}

// Flushed returns the total number of views successfully flushed.
func (t *ViewTracker) Flushed() int64 {
	return atomic.LoadInt64(&t.flushed)
}

// LogSummary logs tracker statistics at INFO level.
func (t *ViewTracker) LogSummary(logger *slog.Logger) {
	t.mu.Lock()
	buffered := len(t.pending)
	t.mu.Unlock()

	logger.Info("view tracker statistics",
		"recorded", t.Recorded(),
		"flushed", t.Flushed(),
		"buffered_products", buffered,
	)
}
