package stats

import (
	"context"
	"log/slog"
)

// Aggregator accumulates the deltas produced by one engine and publishes
// them after each pass. It is owned by a single goroutine and is not safe
// for concurrent use.
type Aggregator struct {
	notifier Notifier
	logger   *slog.Logger
	pending  Counts
}

// NewAggregator returns an Aggregator publishing to n. A nil n drops every
// flush.
func NewAggregator(n Notifier, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{notifier: n, logger: logger}
}

// Add records deltas from one component.
func (a *Aggregator) Add(c Counts) {
	a.pending = a.pending.Add(c)
}

// Pending reports the deltas not yet flushed.
func (a *Aggregator) Pending() Counts { return a.pending }

// Flush publishes the pending deltas as one updateStats event and clears
// them. Nothing is sent when no delta accumulated. Delivery is at most
// once: a failed publish is logged and the deltas are dropped.
func (a *Aggregator) Flush(ctx context.Context) {
	if a.pending.IsZero() {
		return
	}
	ev := Event{Type: EventUpdateStats, Skipped: a.pending.Skipped, SpedUp: a.pending.SpedUp}
	a.pending = Counts{}
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Publish(ctx, ev); err != nil {
		a.logger.Debug("stats: publish dropped", "skipped", ev.Skipped, "spedUp", ev.SpedUp, "error", err)
	}
}
