// Package stats carries intervention counters from the engine to whoever
// displays or persists them.
//
// The engine never owns totals. It accumulates deltas in an Aggregator and
// publishes them as updateStats events; a Recorder folds those deltas into
// a Sink, re-reading the stored totals each time so an external reset never
// races with counts still in flight.
package stats

import (
	"context"
	"strconv"
	"sync"
)

// EventUpdateStats is the only event type the engine emits.
const EventUpdateStats = "updateStats"

// Counts is a pair of intervention counters. Depending on context it holds
// either stored totals or per-pass deltas.
type Counts struct {
	Skipped int64 `json:"skipped"`
	SpedUp  int64 `json:"spedUp"`
}

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{Skipped: c.Skipped + o.Skipped, SpedUp: c.SpedUp + o.SpedUp}
}

func (c Counts) IsZero() bool { return c.Skipped == 0 && c.SpedUp == 0 }

// Total is the number shown on the badge.
func (c Counts) Total() int64 { return c.Skipped + c.SpedUp }

// Event is a stats message. Skipped and SpedUp are deltas, not totals.
type Event struct {
	Type    string `json:"type"`
	Skipped int64  `json:"skipped"`
	SpedUp  int64  `json:"spedUp"`
}

// Counts returns the deltas carried by the event.
func (e Event) Counts() Counts { return Counts{Skipped: e.Skipped, SpedUp: e.SpedUp} }

// Sink stores the authoritative totals.
type Sink interface {
	Get(ctx context.Context) (Counts, error)
	Set(ctx context.Context, c Counts) error
}

// Notifier delivers events on a best-effort basis. Callers on the engine
// hot path ignore the returned error.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// MemorySink is a Sink held in process memory.
type MemorySink struct {
	mu sync.Mutex
	c  Counts
}

func (m *MemorySink) Get(context.Context) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c, nil
}

func (m *MemorySink) Set(_ context.Context, c Counts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c = c
	return nil
}

// FormatCount renders a total for a badge: empty for zero, one decimal
// with a K or M suffix from a thousand upwards.
func FormatCount(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}
