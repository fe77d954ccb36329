// Package stream provides a small push-based observable used by the caches
// to publish data and state to consumers.
//
// A Subject multicasts to any number of subscribers, replays its latest value
// to each new subscriber and drops consecutive values that its EqualFunc
// reports as identical. Subscriber channels are unbounded so a slow consumer
// never blocks the publisher.
package stream

import (
	"context"
	"sync"

	"github.com/smallnest/chanx"
)

// EqualFunc reports whether two consecutive values are the same emission.
type EqualFunc[T any] func(a, b T) bool

// Subject holds the latest value of a stream.
type Subject[T any] struct {
	mu     sync.Mutex
	value  T
	equal  EqualFunc[T]
	subs   map[uint64]*subscription[T]
	nextID uint64
	closed bool
}

// subscription owns the buffering goroutine of one subscriber. Cancelling
// stop ends that goroutine even when buffered values were never read.
type subscription[T any] struct {
	ch   *chanx.UnboundedChan[T]
	stop context.CancelFunc
}

// New creates a subject seeded with initial. A nil equal disables
// de-duplication.
func New[T any](initial T, equal EqualFunc[T]) *Subject[T] {
	return &Subject[T]{
		value: initial,
		equal: equal,
		subs:  make(map[uint64]*subscription[T]),
	}
}

// Value returns the latest value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Publish stores v and fans it out. It returns false when v was dropped as a
// duplicate of the current value or the subject is closed.
func (s *Subject[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.equal != nil && s.equal(s.value, v) {
		return false
	}
	s.value = v
	for _, sub := range s.subs {
		sub.ch.In <- v
	}
	return true
}

// Subscribe returns a channel that first receives the current value and then
// every published value. The channel is closed when ctx ends or the subject
// is closed.
func (s *Subject[T]) Subscribe(ctx context.Context) <-chan T {
	bufCtx, stop := context.WithCancel(context.Background())
	sub := &subscription[T]{ch: chanx.NewUnboundedChan[T](bufCtx, 4), stop: stop}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(sub.ch.In)
		stop()
		return sub.ch.Out
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	sub.ch.In <- s.value
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.unsubscribe(id)
		sub.stop()
	}()

	return sub.ch.Out
}

// Subscribers returns the number of live subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(sub.ch.In)
	}
}

// Close ends every subscription. Values already buffered are still delivered
// to subscribers that keep reading; the rest are dropped once the
// subscriber's context ends. Later publishes are ignored.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch.In)
	}
}

// Comparable de-duplicates with ==.
func Comparable[T comparable]() EqualFunc[T] {
	return func(a, b T) bool { return a == b }
}

// SameSlice treats two slices as equal only when they share the same backing
// array and length, mirroring reference equality. A nil slice never equals a
// non-nil one, so "not loaded" and "loaded but empty" stay distinct.
func SameSlice[E any](a, b []E) bool {
	if (a == nil) != (b == nil) || len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// SamePointer de-duplicates pointers by identity.
func SamePointer[E any](a, b *E) bool {
	return a == b
}
