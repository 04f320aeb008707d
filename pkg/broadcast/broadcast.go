// Package broadcast fans values out to any number of subscriber channels.
package broadcast

import "sync"

// Broadcaster delivers every published value to each subscriber, in order.
// Publish never blocks: values a subscriber has not read yet wait in its own
// queue, which grows as needed.
type Broadcaster[T any] struct {
	mu          sync.Mutex
	subscribers map[<-chan T]*subscriber[T]
	closed      bool
}

type subscriber[T any] struct {
	out  chan T
	wake chan struct{}
	// done stops delivery at once. draining delivers what is queued, then
	// closes out.
	done chan struct{}

	mu       sync.Mutex
	pending  []T
	draining bool
}

// New creates a Broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subscribers: make(map[<-chan T]*subscriber[T])}
}

// Subscribe returns a channel receiving values published from now on.
// Call Unsubscribe when done. After Close the channel is returned closed.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	s := &subscriber[T]{
		out:  make(chan T),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.out)
		return s.out
	}
	b.subscribers[s.out] = s
	go s.pump()
	return s.out
}

// Unsubscribe removes a subscription and closes its channel. Values it had
// not received yet are dropped.
func (b *Broadcaster[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(s.done)
	}
}

// Publish queues v for every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, s := range b.subscribers {
		s.push(v)
	}
}

// Count returns the number of subscribers.
func (b *Broadcaster[T]) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close ends every subscription once it has delivered what was published
// before. Later Publish calls are dropped. Subscribers stay counted until
// they Unsubscribe.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subscribers {
		s.drain()
	}
}

func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber[T]) drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued value. ok is false when nothing is queued;
// last then reports whether the subscription is draining.
func (s *subscriber[T]) next() (v T, ok, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.pending = nil
		return v, false, s.draining
	}
	v = s.pending[0]
	var zero T
	s.pending[0] = zero
	s.pending = s.pending[1:]
	return v, true, false
}

func (s *subscriber[T]) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		v, ok, last := s.next()
		if !ok {
			if last {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
