// Package buffer provides a generic, thread-safe bounded queue with overflow policies.
//
// Transports use it for their receive inbox (DropOldest: stale responses are the least
// useful) and for their outbound queue (Reject: a full outbound queue is reported to the
// caller as a busy transport rather than blocking the send).
package buffer

import (
	"errors"
)

// ErrFull is returned by Write under the Reject policy when the buffer is at capacity
var ErrFull = errors.New("buffer full")

// ErrClosed is returned by Write after Close
var ErrClosed = errors.New("buffer closed")

// Buffer represents a bounded FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. Behavior when full depends on the overflow policy.
	Write(item T) error

	// Read removes and returns the oldest item, or false if empty.
	Read() (T, bool)

	// Drain removes and returns every buffered item, oldest first.
	Drain() []T

	// Notify returns a channel that receives a signal after writes. Signals coalesce.
	Notify() <-chan struct{}

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum number of items.
	Capacity() int

	// Clear discards all items and returns how many were discarded.
	Clear() int

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close rejects further writes. Buffered items remain readable.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota

	// Reject refuses the new item and returns ErrFull.
	Reject
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the configuration form of a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "drop_oldest":
		return DropOldest, nil
	case "reject":
		return Reject, nil
	default:
		return DropOldest, errors.New("unknown overflow policy: " + s)
	}
}

// DropCallback is called with an item removed by the DropOldest policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a new circular buffer with the specified capacity and options.
// Returns an error if metrics registration fails when metrics are requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
