// Package ringchan provides a bounded channel that drops its oldest element
// instead of blocking the producer.
package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded. Consumers read from C() like a regular channel.
//
//	rc := ringchan.New[scanner.DeviceEvent](100)
//	rc.Send(event) // drops the oldest event once 100 are pending
//	for ev := range rc.C() { ... }
type RingChannel[T any] struct {
	ch          chan T
	written     atomic.Int64
	overwritten atomic.Int64
}

// Stats is a point-in-time copy of the RingChannel counters.
type Stats struct {
	Written     int64
	Overwritten int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full. It
// reports whether an element was dropped.
func (rc *RingChannel[T]) Send(v T) (dropped bool) {
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
			// a consumer drained the buffer in between; retry the send
		}
	}
}

// Close closes the underlying channel. Sending afterwards panics.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Stats returns the current counter values.
func (rc *RingChannel[T]) Stats() Stats {
	return Stats{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
	}
}
