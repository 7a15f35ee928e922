// Package posixmq binds the client to the daemon's MqMessaging interface: a pair of
// bounded POSIX message queues.
//
// Sends are non-blocking, so a full request queue is reported as a busy transport. The
// response queue is read with a bounded wait.
package posixmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/transport"
)

// Transport is the POSIX message queue binding.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu     sync.Mutex
	tx     *mqueue
	rx     *mqueue
	closed bool
}

// New creates an unconnected transport.
func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With("transport", Kind, "tx", cfg.RequestQueue, "rx", cfg.ResponseQueue),
	}, nil
}

// Register adds the posixmq kind to a registry.
func Register(r *transport.Registry) error {
	return r.Register(transport.Registration{
		Kind:        Kind,
		Description: "daemon MqMessaging POSIX queue pair",
		Factory: func(raw json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
			cfg := DefaultConfig()
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, errors.WrapInvalid(err, "posixmq", "Factory", "config parsing")
			}
			t, err := New(cfg, deps.Logger)
			if err != nil {
				return nil, err
			}
			if deps.Metrics != nil {
				t.metrics = deps.Metrics.CoreMetrics()
			}
			return t, nil
		},
	})
}

// Name returns "posixmq".
func (t *Transport) Name() string { return Kind }

// Connect opens both queues, creating them if configured to.
func (t *Transport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "posixmq", "Connect", "state check")
	}
	if t.tx != nil {
		return nil
	}

	create := 0
	if t.cfg.Create {
		create = flagCreate
	}

	rx, err := openQueue(t.cfg.ResponseQueue, flagsReceive|create, t.cfg.MaxMessages, t.cfg.MaxMessageSize)
	if err != nil {
		return t.openErr(err, t.cfg.ResponseQueue)
	}
	tx, err := openQueue(t.cfg.RequestQueue, flagsSend|create, t.cfg.MaxMessages, t.cfg.MaxMessageSize)
	if err != nil {
		_ = rx.close()
		return t.openErr(err, t.cfg.RequestQueue)
	}

	t.tx, t.rx = tx, rx
	t.setConnected(true)
	t.logger.Info("Message queues opened")
	return nil
}

func (t *Transport) openErr(err error, name string) error {
	wrapped := fmt.Errorf("%w: open %s: %w", errors.ErrNoConnection, name, err)
	if isUnsupported(err) {
		return errors.WrapFatal(wrapped, "posixmq", "Connect", "open queue")
	}
	return errors.WrapTransient(wrapped, "posixmq", "Connect", "open queue")
}

// Send writes one message to the request queue without blocking.
func (t *Transport) Send(_ context.Context, data []byte) error {
	tx, _, err := t.queues("Send")
	if err != nil {
		return err
	}
	if limit := tx.limit(); limit > 0 && len(data) > limit {
		return errors.WrapInvalid(fmt.Errorf("%w: message of %d bytes exceeds queue limit of %d", errors.ErrInvalidData, len(data), limit),
			"posixmq", "Send", "size check")
	}

	if err := tx.send(data); err != nil {
		if isBusy(err) {
			return errors.WrapTransient(errors.ErrTransportBusy, "posixmq", "Send", "enqueue request")
		}
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err), "posixmq", "Send", "enqueue request")
	}
	return nil
}

// Receive reads one message from the response queue, waiting up to wait.
func (t *Transport) Receive(wait time.Duration) ([]byte, bool, error) {
	_, rx, err := t.queues("Receive")
	if err != nil {
		return nil, false, err
	}

	data, ok, err := rx.receive(wait)
	if err != nil {
		return nil, false, errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err),
			"posixmq", "Receive", "dequeue response")
	}
	return data, ok, nil
}

// Close closes both queue descriptors. Queues are left in place for the daemon.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	if t.tx != nil {
		errs = append(errs, t.tx.close())
	}
	if t.rx != nil {
		errs = append(errs, t.rx.close())
	}
	t.tx, t.rx = nil, nil
	t.setConnected(false)

	for _, err := range errs {
		if err != nil {
			return errors.Wrap(err, "posixmq", "Close", "close queue")
		}
	}
	return nil
}

// Unlink removes both queues from the system.
func (t *Transport) Unlink() error {
	for _, name := range []string{t.cfg.RequestQueue, t.cfg.ResponseQueue} {
		if err := unlinkQueue(name); err != nil {
			return errors.Wrap(err, "posixmq", "Unlink", "unlink "+name)
		}
	}
	return nil
}

func (t *Transport) queues(op string) (*mqueue, *mqueue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		return nil, nil, errors.WrapFatal(errors.ErrTransportClosed, "posixmq", op, "state check")
	case t.tx == nil:
		return nil, nil, errors.WrapTransient(errors.ErrNoConnection, "posixmq", op, "state check")
	}
	return t.tx, t.rx, nil
}

func (t *Transport) setConnected(connected bool) {
	if t.metrics != nil {
		t.metrics.SetTransportConnected(Kind, connected)
	}
}
