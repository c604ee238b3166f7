// Package store persists settings and stats totals in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/stealthmode/settings"
	"github.com/use-agent/stealthmode/stats"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS stats (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	skipped    INTEGER NOT NULL DEFAULT 0,
	sped_up    INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);`

// SQLite is a settings.Store and a stats.Sink over one database. The two
// roles are exposed through Settings and Stats because both speak Get/Set.
type SQLite struct {
	db        *sql.DB
	listeners settings.Listeners
}

// Open opens (creating if needed) the database at path and applies the
// schema. An empty path or ":memory:" keeps everything in memory.
func Open(path string) (*SQLite, error) {
	memory := path == "" || path == ":memory:"
	if memory {
		path = ":memory:"
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// ":memory:" is per connection; a single connection also serializes
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// EnsureDefaults writes enabled=true and zero totals unless a value is
// already stored.
func (s *SQLite) EnsureDefaults(ctx context.Context) error {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, 'true', ?)
		ON CONFLICT(key) DO NOTHING`, settings.KeyEnabled, now); err != nil {
		return fmt.Errorf("store: default settings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stats (id, skipped, sped_up, updated_at) VALUES (1, 0, 0, ?)
		ON CONFLICT(id) DO NOTHING`, now); err != nil {
		return fmt.Errorf("store: default stats: %w", err)
	}
	return nil
}

// Settings returns the settings.Store view.
func (s *SQLite) Settings() settings.Store { return (*settingsView)(s) }

// Stats returns the stats.Sink view.
func (s *SQLite) Stats() stats.Sink { return (*statsView)(s) }

type settingsView SQLite

func (v *settingsView) Get(ctx context.Context, key string) (any, bool, error) {
	var raw string
	err := v.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	val, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value as JSON and notifies listeners when the stored text
// changed.
func (v *settingsView) Set(ctx context.Context, key string, value any) (err error) {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var old sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: read %s: %w", key, err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at`,
		key, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	if old.Valid && old.String == string(data) {
		return nil
	}
	var oldVal any
	if old.Valid {
		oldVal, _ = decode(old.String)
	}
	newVal, _ := decode(string(data))
	v.listeners.Emit(settings.Change{Key: key, Old: oldVal, New: newVal})
	return nil
}

func (v *settingsView) OnChange(fn func(settings.Change)) (cancel func()) {
	return v.listeners.Add(fn)
}

type statsView SQLite

func (v *statsView) Get(ctx context.Context) (stats.Counts, error) {
	var c stats.Counts
	err := v.db.QueryRowContext(ctx, `SELECT skipped, sped_up FROM stats WHERE id = 1`).Scan(&c.Skipped, &c.SpedUp)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.Counts{}, nil
	}
	if err != nil {
		return stats.Counts{}, fmt.Errorf("store: get stats: %w", err)
	}
	return c, nil
}

func (v *statsView) Set(ctx context.Context, c stats.Counts) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO stats (id, skipped, sped_up, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			skipped=excluded.skipped,
			sped_up=excluded.sped_up,
			updated_at=excluded.updated_at`,
		c.Skipped, c.SpedUp, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: set stats: %w", err)
	}
	return nil
}

func decode(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
