package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/use-agent/stealthmode/settings"
	"github.com/use-agent/stealthmode/stats"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	v, ok, err := s.Settings().Get(ctx, settings.KeyEnabled)
	if err != nil || !ok || v != true {
		t.Fatalf("enabled default: %v %v %v", v, ok, err)
	}
	c, err := s.Stats().Get(ctx)
	if err != nil || !c.IsZero() {
		t.Fatalf("stats default: %+v %v", c, err)
	}

	_ = s.Settings().Set(ctx, settings.KeyEnabled, false)
	_ = s.Stats().Set(ctx, stats.Counts{Skipped: 4})
	if err := s.EnsureDefaults(ctx); err != nil {
		t.Fatalf("second EnsureDefaults: %v", err)
	}
	if settings.Enabled(ctx, s.Settings()) {
		t.Error("EnsureDefaults overwrote enabled=false")
	}
	if c, _ := s.Stats().Get(ctx); c.Skipped != 4 {
		t.Errorf("EnsureDefaults overwrote stats: %+v", c)
	}
}

func TestSettingsRoundTripAndNotify(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	st := s.Settings()

	if _, ok, err := st.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	var changes []settings.Change
	cancel := st.OnChange(func(c settings.Change) { changes = append(changes, c) })
	defer cancel()

	if err := st.Set(ctx, settings.KeyEnabled, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_ = st.Set(ctx, settings.KeyEnabled, true)
	_ = st.Set(ctx, settings.KeyEnabled, false)
	_ = st.Set(ctx, "label", "night mode")

	if len(changes) != 3 {
		t.Fatalf("changes: got %d, want 3", len(changes))
	}
	if c := changes[1]; c.Old != true || c.New != false {
		t.Errorf("enabled change: %+v", c)
	}
	if c := changes[0]; c.Old != nil {
		t.Errorf("first write should have nil Old, got %+v", c)
	}
	if v, _, _ := st.Get(ctx, "label"); v != "night mode" {
		t.Errorf("label: %v", v)
	}
}

func TestStatsWithRecorder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := stats.NewRecorder(s.Stats(), nil)

	_ = r.Publish(ctx, stats.Event{Type: stats.EventUpdateStats, Skipped: 2, SpedUp: 1})
	_ = r.Publish(ctx, stats.Event{Type: stats.EventUpdateStats, SpedUp: 4})

	c, err := s.Stats().Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c != (stats.Counts{Skipped: 2, SpedUp: 5}) {
		t.Errorf("totals: %+v", c)
	}
}

func TestOpenFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "stealth.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Stats().Set(ctx, stats.Counts{Skipped: 7, SpedUp: 3})
	_ = s.Settings().Set(ctx, settings.KeyEnabled, false)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if c, _ := s.Stats().Get(ctx); c != (stats.Counts{Skipped: 7, SpedUp: 3}) {
		t.Errorf("stats after reopen: %+v", c)
	}
	if settings.Enabled(ctx, s.Settings()) {
		t.Error("enabled=false lost after reopen")
	}
}
