package broadcast

import "sync"

// State holds a current value and tells subscribers when it changes.
// A new subscriber first receives the current value. Setting the value it
// already has emits nothing. A subscriber that falls behind skips the values
// it missed but never receives the same value twice in a row.
type State[T comparable] struct {
	mu          sync.Mutex
	current     T
	subscribers map[<-chan T]*stateSub[T]
}

type stateSub[T comparable] struct {
	ch chan T
	// last is the most recently queued value; before is the one queued
	// ahead of it, which the reader has consumed once last is queued.
	last      T
	before    T
	hasBefore bool
}

// NewState creates a State holding initial.
func NewState[T comparable](initial T) *State[T] {
	return &State[T]{current: initial, subscribers: make(map[<-chan T]*stateSub[T])}
}

// Get returns the current value.
func (s *State[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set stores v and notifies subscribers if it differs from the current value.
// It reports whether the value changed.
func (s *State[T]) Set(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.current {
		return false
	}
	s.current = v
	for _, sub := range s.subscribers {
		sub.offer(v)
	}
	return true
}

// Update applies fn to the current value under the lock and stores the
// result like Set.
func (s *State[T]) Update(fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := fn(s.current)
	if v == s.current {
		return false
	}
	s.current = v
	for _, sub := range s.subscribers {
		sub.offer(v)
	}
	return true
}

// Subscribe returns a channel that immediately holds the current value.
func (s *State[T]) Subscribe() <-chan T {
	sub := &stateSub[T]{ch: make(chan T, 1)}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ch <- s.current
	sub.last = s.current
	s.subscribers[sub.ch] = sub
	return sub.ch
}

// Unsubscribe removes and closes a subscription.
func (s *State[T]) Unsubscribe(ch <-chan T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(sub.ch)
	}
}

// offer queues v, replacing an unread value. Only called with the State's
// lock held, so no other sender can fill the slot in between.
func (sub *stateSub[T]) offer(v T) {
	select {
	case sub.ch <- v:
		sub.before, sub.hasBefore = sub.last, true
		sub.last = v
		return
	default:
	}

	select {
	case <-sub.ch:
		// The reader last saw sub.before. If v brings it back there, the
		// missed change cancels out and nothing is queued.
		if sub.hasBefore && v == sub.before {
			sub.last = sub.before
			return
		}
		sub.ch <- v
		sub.last = v
	default:
		// The reader consumed sub.last in the meantime.
		sub.ch <- v
		sub.before, sub.hasBefore = sub.last, true
		sub.last = v
	}
}
