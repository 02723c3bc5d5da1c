// Package notify provides ordered publish/subscribe primitives. Registry
// keeps handlers per key in registration order; Hub layers typed topics on
// top of it for consumer-facing client events.
package notify

import (
	"sync"
)

type subscription[V any] struct {
	id      uint64
	handler V
}

// Registry stores handlers per key. Handlers returns them in the order they
// were subscribed. The zero value is ready to use.
type Registry[K comparable, V any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[K][]subscription[V]
}

// Subscribe adds handler under key and returns a func that removes it.
// Calling the returned func more than once is a no-op.
func (r *Registry[K, V]) Subscribe(key K, handler V) (unsubscribe func()) {
	r.mu.Lock()
	if r.subs == nil {
		r.subs = make(map[K][]subscription[V])
	}
	r.nextID++
	id := r.nextID
	r.subs[key] = append(r.subs[key], subscription[V]{id: id, handler: handler})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, id) })
	}
}

func (r *Registry[K, V]) remove(key K, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[key]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		kept := make([]subscription[V], 0, len(subs)-1)
		kept = append(kept, subs[:i]...)
		kept = append(kept, subs[i+1:]...)
		if len(kept) == 0 {
			delete(r.subs, key)
		} else {
			r.subs[key] = kept
		}
		return
	}
}

// Handlers returns a snapshot of the handlers for key. Handlers added or
// removed while the caller iterates do not affect the snapshot.
func (r *Registry[K, V]) Handlers(key K) []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[key]
	handlers := make([]V, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}

func (r *Registry[K, V]) Len(key K) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key])
}
