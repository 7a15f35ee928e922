// Package loopback provides an in-memory transport. Requests are kept in a bounded queue
// that a peer (a test or an in-process responder) consumes, and replies are injected into
// the receive queue.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/transport"
)

// Kind is the registry name of the loopback transport.
const Kind = "loopback"

// Config configures a loopback transport
type Config struct {
	// Capacity bounds both the request and the reply queue.
	Capacity int `json:"capacity"`
	// Echo returns every request unmodified as its own reply.
	Echo bool `json:"echo"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{Capacity: transport.DefaultOutboxSize}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Capacity < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: capacity must not be negative", errors.ErrInvalidConfig),
			"loopback", "Validate", "capacity check")
	}
	return nil
}

// Responder produces the replies to one request. It runs synchronously inside Send.
type Responder func(request []byte) [][]byte

// Echo replies with the request itself.
func Echo() Responder {
	return func(request []byte) [][]byte {
		return [][]byte{request}
	}
}

// Transport is the in-memory binding.
type Transport struct {
	requests  *transport.Queue
	replies   *transport.Queue
	responder Responder
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	sent   int
}

// Option configures a Transport
type Option func(*Transport)

// WithResponder answers every request in Send.
func WithResponder(r Responder) Option {
	return func(t *Transport) { t.responder = r }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a loopback transport
func New(cfg Config, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}

	requests, err := transport.NewOutbox("loopback", cfg.Capacity)
	if err != nil {
		return nil, errors.Wrap(err, "loopback", "New", "request queue creation")
	}
	replies, err := transport.NewInbox("loopback", cfg.Capacity)
	if err != nil {
		return nil, errors.Wrap(err, "loopback", "New", "reply queue creation")
	}

	t := &Transport{requests: requests, replies: replies, logger: slog.Default()}
	if cfg.Echo {
		t.responder = Echo()
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Register adds the loopback kind to a registry.
func Register(r *transport.Registry) error {
	return r.Register(transport.Registration{
		Kind:        Kind,
		Description: "in-memory queue pair, optionally echoing requests",
		Factory: func(raw json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
			cfg := DefaultConfig()
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, errors.WrapInvalid(err, "loopback", "Factory", "config parsing")
			}
			return New(cfg, WithLogger(deps.Logger))
		},
	})
}

// Name returns "loopback".
func (t *Transport) Name() string { return Kind }

// Connect is a no-op.
func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "loopback", "Connect", "state check")
	}
	return nil
}

// Send queues a request. A full request queue reports errors.ErrTransportBusy.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "loopback", "Send", "context check")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "loopback", "Send", "state check")
	}

	if err := t.requests.Push(data); err != nil {
		return err
	}
	t.sent++

	if t.responder == nil {
		return nil
	}
	req, _ := t.requests.Pop()
	for _, reply := range t.responder(req) {
		if err := t.replies.Push(reply); err != nil {
			t.logger.Warn("Loopback reply dropped", "error", err)
		}
	}
	return nil
}

// Receive returns the next reply, waiting up to wait.
func (t *Transport) Receive(wait time.Duration) ([]byte, bool, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, false, errors.WrapFatal(errors.ErrTransportClosed, "loopback", "Receive", "state check")
	}

	data, ok := t.replies.PopWait(wait)
	return data, ok, nil
}

// Close closes both queues.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	_ = t.requests.Close()
	return t.replies.Close()
}

// Inject places a reply in the receive queue, as if the daemon had sent it.
func (t *Transport) Inject(data []byte) error {
	return t.replies.Push(data)
}

// NextRequest takes the oldest unanswered request, waiting up to wait.
func (t *Transport) NextRequest(wait time.Duration) ([]byte, bool) {
	return t.requests.PopWait(wait)
}

// Pending returns the number of queued replies.
func (t *Transport) Pending() int {
	return t.replies.Len()
}

// Sent returns how many requests were accepted.
func (t *Transport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}
