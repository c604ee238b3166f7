// Package settings defines the key/value store the engine reads its
// on/off switch from, with change notification.
package settings

import (
	"context"
	"sync"
)

// KeyEnabled is the engine's master switch. Absent means enabled.
const KeyEnabled = "enabled"

// Change describes one Set that altered a value.
type Change struct {
	Key string
	Old any
	New any
}

// Store is a settings backend. Listeners registered with OnChange are
// called synchronously after a successful Set, from the setter's goroutine.
// Concurrent Sets may notify in a different order than they wrote; a
// listener that needs the current value re-reads it with Get.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
	OnChange(fn func(Change)) (cancel func())
}

// Enabled reads KeyEnabled. Only an explicit false disables; a missing or
// unreadable value counts as enabled.
func Enabled(ctx context.Context, s Store) bool {
	v, ok, err := s.Get(ctx, KeyEnabled)
	if err != nil || !ok {
		return true
	}
	return AsBool(v, true)
}

// AsBool interprets a stored value as a boolean, falling back to def for
// anything else.
func AsBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch b {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	case int64:
		return b != 0
	case int:
		return b != 0
	case float64:
		return b != 0
	}
	return def
}

// Listeners is a reusable OnChange registry for Store implementations.
type Listeners struct {
	mu   sync.Mutex
	fns  map[int]func(Change)
	next int
}

// Add registers fn. The returned cancel is idempotent.
func (l *Listeners) Add(fn func(Change)) (cancel func()) {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(Change))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Emit calls every listener with c.
func (l *Listeners) Emit(c Change) {
	l.mu.Lock()
	fns := make([]func(Change), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Memory is a Store held in process memory.
type Memory struct {
	mu        sync.RWMutex
	values    map[string]any
	listeners Listeners
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]any)}
}

func (m *Memory) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value and notifies listeners when it differs from the old
// value. Values must be comparable.
func (m *Memory) Set(_ context.Context, key string, value any) error {
	m.mu.Lock()
	old, existed := m.values[key]
	m.values[key] = value
	m.mu.Unlock()

	if existed && old == value {
		return nil
	}
	m.listeners.Emit(Change{Key: key, Old: old, New: value})
	return nil
}

func (m *Memory) OnChange(fn func(Change)) (cancel func()) {
	return m.listeners.Add(fn)
}
