package pubsub

import (
	"log"
	"sync"
)

// Broadcaster fans a snapshot out to registered listeners. It backs the shared
// stores so that every consumer observes the same state without polling.
//
// Notify runs listeners synchronously, in registration order, and recovers a
// panicking listener so one failing consumer cannot break fan-out to the rest.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	order     []uint64
	listeners map[uint64]func(T)
	logger    *log.Logger
}

// New constructs an empty broadcaster.
func New[T any](logger *log.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster[T]{
		listeners: make(map[uint64]func(T)),
		logger:    logger,
	}
}

// Subscribe registers a listener and returns a closure that removes it.
// Unsubscribing twice is harmless.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Notify delivers the snapshot to all current listeners.
func (b *Broadcaster[T]) Notify(snapshot T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.listeners))
	live := b.order[:0]
	for _, id := range b.order {
		if fn, ok := b.listeners[id]; ok {
			fns = append(fns, fn)
			live = append(live, id)
		}
	}
	b.order = live
	b.mu.Unlock()

	for _, fn := range fns {
		b.invoke(fn, snapshot)
	}
}

// Len returns the number of registered listeners.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster[T]) invoke(fn func(T), snapshot T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("pubsub: listener panic recovered: %v", r)
		}
	}()
	fn(snapshot)
}
