package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Recorder folds updateStats deltas into a Sink and tracks the badge text.
// It is itself a Notifier, normally subscribed to a Bus.
type Recorder struct {
	sink   Sink
	logger *slog.Logger

	mu    sync.Mutex
	badge string
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Publish re-reads the stored totals, adds the event's deltas and writes
// them back. Events of other types are ignored.
func (r *Recorder) Publish(ctx context.Context, ev Event) error {
	if ev.Type != EventUpdateStats {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.sink.Get(ctx)
	if err != nil {
		return fmt.Errorf("stats: read totals: %w", err)
	}
	next := cur.Add(ev.Counts())
	if err := r.sink.Set(ctx, next); err != nil {
		return fmt.Errorf("stats: write totals: %w", err)
	}
	r.badge = FormatCount(next.Total())
	r.logger.Debug("stats: recorded", "skipped", next.Skipped, "spedUp", next.SpedUp)
	return nil
}

// Totals returns the stored totals.
func (r *Recorder) Totals(ctx context.Context) (Counts, error) {
	return r.sink.Get(ctx)
}

// Reset zeroes the stored totals and clears the badge. Deltas published
// afterwards are added to the zeroed totals.
func (r *Recorder) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sink.Set(ctx, Counts{}); err != nil {
		return fmt.Errorf("stats: reset: %w", err)
	}
	r.badge = ""
	return nil
}

// Badge is the current badge text.
func (r *Recorder) Badge() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badge
}

// Sync refreshes the badge from the stored totals, e.g. after startup.
func (r *Recorder) Sync(ctx context.Context) error {
	c, err := r.sink.Get(ctx)
	if err != nil {
		return fmt.Errorf("stats: read totals: %w", err)
	}
	r.mu.Lock()
	r.badge = FormatCount(c.Total())
	r.mu.Unlock()
	return nil
}
