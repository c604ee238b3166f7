// Package engine detects ad playback on a page and intervenes: it mutes and
// fast-forwards ad media, clicks skip controls, hides overlays, dismisses
// anti-adblock notices and removes ad frames.
//
// Everything runs against a dom.Document and re-reads the page on every
// pass; no element reference is trusted beyond the pass that found it.
// A Runner drives one Strategy on one goroutine.
package engine

import (
	"time"

	"github.com/use-agent/stealthmode/dom"
	"github.com/use-agent/stealthmode/stats"
)

// Strategy is one way of treating a page. Both methods run on the runner
// goroutine and may mutate st.
type Strategy interface {
	Name() string

	// Interval is the cadence of Pass.
	Interval() time.Duration

	// Pass is one full timer-driven cycle. It is only called while the
	// engine is enabled.
	Pass(doc dom.Document, st *State) stats.Counts

	// OnMutation runs for every coalesced subtree-change notification,
	// whether or not the engine is enabled.
	OnMutation(doc dom.Document, st *State) stats.Counts
}

// Disabler is implemented by strategies that act when the engine is
// switched off.
type Disabler interface {
	OnDisable(doc dom.Document, st *State)
}

// State is the only memory an engine keeps between passes. It is owned by
// a single Runner and must not be shared.
type State struct {
	Enabled bool

	// LastURL is the last location seen by the navigation watcher.
	LastURL string

	// Media and Player are the references found by the latest Locate.
	// Either may be nil.
	Media  dom.Media
	Player dom.Element

	// InterventionActive is set while the controller holds media in the
	// intercepted state.
	InterventionActive bool
}

// NewState returns an enabled state anchored at location.
func NewState(location string) *State {
	return &State{Enabled: true, LastURL: location}
}

// SetEnabled flips the master switch and reports whether it changed.
func (s *State) SetEnabled(enabled bool) bool {
	if s.Enabled == enabled {
		return false
	}
	s.Enabled = enabled
	return true
}
