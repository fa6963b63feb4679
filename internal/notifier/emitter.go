package notifier

import "sync"

// Emitter delivers events synchronously to registered callbacks.
type Emitter[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T)
}

// NewEmitter creates an empty Emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{listeners: make(map[uint64]func(T))}
}

// On registers fn and returns the function that removes it again.
// The returned function is safe to call more than once.
func (e *Emitter[T]) On(fn func(T)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Fire calls every registered callback with v.
// Callbacks run outside the emitter lock, so they may subscribe or unsubscribe.
func (e *Emitter[T]) Fire(v T) {
	e.mu.RLock()
	fns := make([]func(T), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered callbacks.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
