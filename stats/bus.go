package stats

import (
	"context"
	"errors"
	"sync"
)

// Bus fans an event out to every subscribed Notifier, in process. It lets
// many engines share one recorder and one webhook.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]Notifier
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Notifier)}
}

// Subscribe adds n to the fan-out. The returned cancel is idempotent.
func (b *Bus) Subscribe(n Notifier) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = n
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber and joins their errors.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	subs := make([]Notifier, 0, len(b.subs))
	for _, n := range b.subs {
		subs = append(subs, n)
	}
	b.mu.RUnlock()

	var errs []error
	for _, n := range subs {
		if err := n.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
