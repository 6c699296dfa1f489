package docstore

import (
	"sync"
)

// LocalBus fans changes out to the subscriptions of this process.
type LocalBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan struct{} // path -> subscription -> wake signal
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[uint64]chan struct{})}
}

// register returns a wake channel with room for one pending signal.
func (b *LocalBus) register(path string) (uint64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan struct{}, 1)
	if b.subs[path] == nil {
		b.subs[path] = make(map[uint64]chan struct{})
	}
	b.subs[path][id] = ch
	return id, ch
}

func (b *LocalBus) unregister(path string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.subs[path]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, path)
		}
	}
}

// Notify wakes every subscription on the changed path.
// A subscription already holding a pending signal is skipped, so a burst of writes
// costs at most one re-query.
func (b *LocalBus) Notify(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[change.Path] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Count reports the number of live subscriptions.
func (b *LocalBus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}
