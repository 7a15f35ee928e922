package transport

import (
	stderrors "errors"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/pkg/buffer"
)

// Default queue capacities used by the buffered bindings
const (
	DefaultInboxSize  = 256
	DefaultOutboxSize = 64
)

// Queue is a bounded payload queue shared by the bindings whose underlying client delivers
// messages on its own goroutine (MQTT, WebSocket, NATS, loopback).
type Queue struct {
	name string
	buf  buffer.Buffer[[]byte]
}

// NewInbox creates a receive queue. When full, the oldest payload is dropped: a stale
// response is worth less than a fresh one.
func NewInbox(name string, capacity int, opts ...buffer.Option[[]byte]) (*Queue, error) {
	if capacity <= 0 {
		capacity = DefaultInboxSize
	}
	opts = append([]buffer.Option[[]byte]{buffer.WithOverflowPolicy[[]byte](buffer.DropOldest)}, opts...)
	return newQueue(name, capacity, opts)
}

// NewOutbox creates a send queue. When full, Push fails with errors.ErrTransportBusy.
func NewOutbox(name string, capacity int, opts ...buffer.Option[[]byte]) (*Queue, error) {
	if capacity <= 0 {
		capacity = DefaultOutboxSize
	}
	opts = append(opts, buffer.WithOverflowPolicy[[]byte](buffer.Reject))
	return newQueue(name, capacity, opts)
}

func newQueue(name string, capacity int, opts []buffer.Option[[]byte]) (*Queue, error) {
	buf, err := buffer.NewCircularBuffer(capacity, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Queue", "newQueue", "buffer creation")
	}
	return &Queue{name: name, buf: buf}, nil
}

// Push enqueues a payload.
func (q *Queue) Push(data []byte) error {
	err := q.buf.Write(data)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, buffer.ErrFull):
		return errors.WrapTransient(errors.ErrTransportBusy, q.name, "Push", "enqueue payload")
	case stderrors.Is(err, buffer.ErrClosed):
		return errors.WrapFatal(errors.ErrTransportClosed, q.name, "Push", "enqueue payload")
	default:
		return errors.Wrap(err, q.name, "Push", "enqueue payload")
	}
}

// Pop dequeues the oldest payload without blocking.
func (q *Queue) Pop() ([]byte, bool) {
	return q.buf.Read()
}

// PopWait dequeues the oldest payload, waiting up to wait for one to arrive.
func (q *Queue) PopWait(wait time.Duration) ([]byte, bool) {
	if data, ok := q.buf.Read(); ok || wait <= 0 {
		return data, ok
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-q.buf.Notify():
			if data, ok := q.buf.Read(); ok {
				return data, true
			}
		case <-timer.C:
			return q.buf.Read()
		}
	}
}

// Ready signals after pushes. Signals coalesce, so readers must drain with Pop.
func (q *Queue) Ready() <-chan struct{} {
	return q.buf.Notify()
}

// Clear discards everything queued and returns the number of payloads discarded.
func (q *Queue) Clear() int {
	return q.buf.Clear()
}

// Len returns the number of queued payloads.
func (q *Queue) Len() int {
	return q.buf.Size()
}

// Dropped returns how many payloads were dropped or rejected because the queue was full.
func (q *Queue) Dropped() int64 {
	s := q.buf.Stats()
	return s.Drops() + s.Rejects()
}

// Close rejects further pushes. Queued payloads stay readable.
func (q *Queue) Close() error {
	return q.buf.Close()
}
