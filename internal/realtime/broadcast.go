// Package realtime – Broadcast
//
// A bounded multi-consumer ring. Every subscriber reads the same sequence of
// values at its own pace; one that falls more than the capacity behind gets a
// LagError reporting how many values it missed and resumes at the oldest one
// still buffered. Senders never block.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Recv once the channel is closed and drained,
	// and by Send after Close.
	ErrClosed = errors.New("broadcast: channel closed")
	// ErrNoSubscribers is returned by Send when nobody is listening. The
	// value is not buffered.
	ErrNoSubscribers = errors.New("broadcast: no subscribers")
)

// LagError reports that a subscriber fell more than the channel capacity
// behind and Skipped values were overwritten. The next Recv resumes at the
// oldest value still buffered.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, skipped %d", e.Skipped)
}

// Broadcast is a bounded multi-subscriber channel. Every subscriber sees
// every value in send order. Send never blocks: once the ring is full the
// oldest value is overwritten and slow subscribers observe a LagError.
type Broadcast[T any] struct {
	mu     sync.RWMutex
	ring   []T
	tail   uint64 // sequence of the next value to be written
	subs   int
	closed bool
	notify chan struct{} // closed and replaced on every Send
}

// NewBroadcast returns a channel buffering up to capacity values (min 1).
func NewBroadcast[T any](capacity int) *Broadcast[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcast[T]{
		ring:   make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Send publishes v to all current subscribers and returns how many there were.
func (b *Broadcast[T]) Send(v T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.subs == 0 {
		return 0, ErrNoSubscribers
	}
	b.ring[b.tail%uint64(len(b.ring))] = v
	b.tail++
	close(b.notify)
	b.notify = make(chan struct{})
	return b.subs, nil
}

// Subscribe registers a receiver that observes values sent from now on.
func (b *Broadcast[T]) Subscribe() *Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs++
	return &Subscriber[T]{b: b, next: b.tail}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcast[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs
}

// Close marks the channel closed. Subscribers drain what is buffered and
// then receive ErrClosed.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Subscriber is one receiving end of a Broadcast. It must be used from a
// single goroutine.
type Subscriber[T any] struct {
	b    *Broadcast[T]
	next uint64
	once sync.Once
}

// Recv blocks until the next value is available, the subscriber lagged,
// the channel is closed, or ctx is done.
func (s *Subscriber[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	b := s.b
	for {
		b.mu.RLock()
		if s.next < b.tail {
			capacity := uint64(len(b.ring))
			if b.tail-s.next > capacity {
				oldest := b.tail - capacity
				skipped := oldest - s.next
				s.next = oldest
				b.mu.RUnlock()
				return zero, &LagError{Skipped: skipped}
			}
			v := b.ring[s.next%capacity]
			s.next++
			b.mu.RUnlock()
			return v, nil
		}
		if b.closed {
			b.mu.RUnlock()
			return zero, ErrClosed
		}
		wait := b.notify
		b.mu.RUnlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscriber[T]) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		s.b.subs--
		s.b.mu.Unlock()
	})
}
