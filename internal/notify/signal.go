// Package notify provides the notification primitives behind the tree index:
// ordered observer sets and a coalescing scheduler that batches notification
// passes so bursts of mutations collapse into single deliveries.
package notify

import "sync"

// Signal is an ordered observer set for values of type T. Callbacks run in
// registration order. A notification pass operates on a snapshot taken at
// entry: observers added during the pass wait for the next one, and an
// observer removed mid-pass may still receive one final call.
//
// The zero value is ready to use.
type Signal[T any] struct {
	mu   sync.Mutex
	subs []*signalEntry[T]
}

type signalEntry[T any] struct {
	fn func(T)
}

// Subscribe registers fn and returns its unsubscribe function. The returned
// function is idempotent and remains safe to call after Clear.
func (s *Signal[T]) Subscribe(fn func(T)) func() {
	e := &signalEntry[T]{fn: fn}
	s.mu.Lock()
	s.subs = append(s.subs, e)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, cur := range s.subs {
				if cur == e {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify calls every currently registered observer with v. No internal lock
// is held during the calls, so observers may subscribe, unsubscribe, or
// notify again from inside the pass.
func (s *Signal[T]) Notify(v T) {
	s.mu.Lock()
	snapshot := make([]*signalEntry[T], len(s.subs))
	copy(snapshot, s.subs)
	s.mu.Unlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

// Len reports the number of registered observers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Clear drops every observer at once. Unsubscribe functions handed out
// earlier become no-ops.
func (s *Signal[T]) Clear() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}
