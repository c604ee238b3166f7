package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/stealthmode/dom"
	"github.com/use-agent/stealthmode/settings"
	"github.com/use-agent/stealthmode/stats"
)

// Options configures a Runner. Every field is optional.
type Options struct {
	// Settings supplies the enabled switch and its live updates.
	Settings settings.Store

	// Notifier receives one updateStats event per productive pass.
	Notifier stats.Notifier

	// Debounce delays mutation passes until notifications pause for this
	// long. Zero runs one pass per notification.
	Debounce time.Duration

	Logger *slog.Logger
}

// Status is a point-in-time view of a Runner, safe to read from any
// goroutine.
type Status struct {
	Strategy           string       `json:"strategy"`
	Enabled            bool         `json:"enabled"`
	URL                string       `json:"url"`
	InterventionActive bool         `json:"interventionActive"`
	Passes             int64        `json:"passes"`
	Counts             stats.Counts `json:"counts"`
}

// Runner drives one Strategy against one document. All engine state is
// touched only by the goroutine executing Run.
type Runner struct {
	doc      dom.Document
	strategy Strategy
	state    *State
	agg      *stats.Aggregator
	store    settings.Store
	debounce time.Duration
	logger   *slog.Logger

	enabledSig chan struct{}

	mu     sync.Mutex
	status Status
}

func NewRunner(doc dom.Document, strategy Strategy, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("strategy", strategy.Name())
	r := &Runner{
		doc:        doc,
		strategy:   strategy,
		state:      NewState(doc.Location()),
		agg:        stats.NewAggregator(opts.Notifier, logger),
		store:      opts.Settings,
		debounce:   opts.Debounce,
		logger:     logger,
		enabledSig: make(chan struct{}, 1),
	}
	r.publishStatus()
	return r
}

// Run drives the strategy until ctx is done. A first pass runs at once,
// then one per strategy interval, plus a mutation pass for every
// subtree-change notification.
func (r *Runner) Run(ctx context.Context) error {
	mutations, unsubscribe := r.doc.Subscribe()
	defer unsubscribe()

	if r.store != nil {
		cancel := r.store.OnChange(func(c settings.Change) {
			if c.Key != settings.KeyEnabled {
				return
			}
			select {
			case r.enabledSig <- struct{}{}:
			default:
			}
		})
		defer cancel()
		r.state.Enabled = settings.Enabled(ctx, r.store)
		r.publishStatus()
	}

	ticker := time.NewTicker(r.strategy.Interval())
	defer ticker.Stop()

	var (
		timer     *time.Timer
		debounced <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	r.logger.Info("runner: started", "url", r.state.LastURL, "enabled", r.state.Enabled)
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner: stopped", "url", r.state.LastURL)
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		case <-mutations:
			if r.debounce <= 0 {
				r.mutation(ctx)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			debounced = timer.C
		case <-debounced:
			debounced = nil
			r.mutation(ctx)
		case <-r.enabledSig:
			// Concurrent Sets may emit out of order, so the store is the
			// source of truth, not the change payload.
			r.setEnabled(settings.Enabled(ctx, r.store))
		}
	}
}

// Status returns the latest published status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runner) tick(ctx context.Context) {
	if !r.state.Enabled {
		return
	}
	r.record(ctx, r.strategy.Pass(r.doc, r.state))
}

func (r *Runner) mutation(ctx context.Context) {
	r.record(ctx, r.strategy.OnMutation(r.doc, r.state))
}

func (r *Runner) record(ctx context.Context, c stats.Counts) {
	r.release()
	r.agg.Add(c)
	r.agg.Flush(ctx)

	r.mu.Lock()
	r.status.Passes++
	r.status.Counts = r.status.Counts.Add(c)
	r.mu.Unlock()
	r.publishStatus()
}

func (r *Runner) setEnabled(enabled bool) {
	if !r.state.SetEnabled(enabled) {
		return
	}
	r.logger.Info("runner: enabled changed", "enabled", enabled)
	if !enabled {
		if d, ok := r.strategy.(Disabler); ok {
			d.OnDisable(r.doc, r.state)
			r.release()
		}
	}
	r.publishStatus()
}

// release frees the element handles of the pass that just ran, keeping
// the located media and player for the next one.
func (r *Runner) release() {
	if rel, ok := r.doc.(dom.Releaser); ok {
		rel.ReleaseExcept(r.state.Media, r.state.Player)
	}
}

func (r *Runner) publishStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Strategy = r.strategy.Name()
	r.status.Enabled = r.state.Enabled
	r.status.URL = r.state.LastURL
	r.status.InterventionActive = r.state.InterventionActive
}
