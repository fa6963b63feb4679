// Package notifier provides the subscription primitives shared by the host
// bridge, the preview panels and the rendered surfaces.
package notifier

import "sync"

// Notifier broadcasts the latest value to all subscribed channels.
// Each listener channel holds at most one pending value; a newer broadcast
// replaces a value the listener has not consumed yet.
type Notifier[T any] struct {
	mu        sync.RWMutex
	listeners map[chan T]struct{}
}

// New creates a new Notifier instance.
func New[T any]() *Notifier[T] {
	return &Notifier[T]{
		listeners: make(map[chan T]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast values.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier[T]) Subscribe() chan T {
	ch := make(chan T, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier[T]) Unsubscribe(ch chan T) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast sends v to all listeners without blocking.
func (n *Notifier[T]) Broadcast(v T) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		// Drop a stale pending value so the listener sees the newest one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active listeners.
func (n *Notifier[T]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
