// Package observer provides typed publish/subscribe primitives: a
// synchronous Subject for in-process listeners and a buffered FanOut for
// channel consumers that must never block the publisher.
package observer

import (
	"sync"

	"github.com/google/uuid"
)

type subscriber[T any] struct {
	id uuid.UUID
	fn func(T)
}

// Subject delivers each notification to every subscriber, synchronously and
// in subscription order. Callbacks may subscribe or unsubscribe; changes take
// effect from the next notification.
type Subject[T any] struct {
	mu   sync.RWMutex
	subs []subscriber[T]
}

// Subscribe registers fn and returns its subscription id.
func (s *Subject[T]) Subscribe(fn func(T)) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()
	return id
}

// Unsubscribe removes the subscription. Returns false if id is unknown.
func (s *Subject[T]) Unsubscribe(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			// copy-on-write so an in-flight Notify keeps its snapshot
			next := make([]subscriber[T], 0, len(s.subs)-1)
			next = append(next, s.subs[:i]...)
			s.subs = append(next, s.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Notify calls every subscriber with v.
func (s *Subject[T]) Notify(v T) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of subscribers.
func (s *Subject[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
