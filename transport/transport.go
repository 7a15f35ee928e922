// Package transport defines the duplex byte channel the request client talks over and the
// registry that creates transports by kind.
//
// A transport moves opaque payloads. It never decodes, correlates or retries: Send either
// hands the payload to the channel or fails fast, and Receive returns whatever is buffered
// without blocking past the wait it is given.
package transport

import (
	"context"
	"time"
)

// Transport is a duplex channel to the gateway daemon.
type Transport interface {
	// Name identifies the binding in logs and metrics (e.g. "mqtt", "posixmq").
	Name() string

	// Connect performs the I/O needed before the first Send. Calling it on a
	// connected transport is a no-op.
	Connect(ctx context.Context) error

	// Send hands data to the channel. It returns an error matching
	// errors.ErrTransportBusy when outbound capacity is exhausted instead of blocking.
	Send(ctx context.Context, data []byte) error

	// Receive returns the next inbound payload. ok is false when nothing arrived within
	// wait; a zero wait never blocks. A non-nil error reports a channel fault.
	Receive(wait time.Duration) (data []byte, ok bool, err error)

	// Close releases the channel. Send and Receive fail after Close.
	Close() error
}
