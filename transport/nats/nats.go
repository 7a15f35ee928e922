// Package nats binds the client to a NATS subject pair. Requests are published on the
// request subject and responses arrive on the response subject, for deployments that
// bridge the daemon's messaging onto NATS.
package nats

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	gonats "github.com/nats-io/nats.go"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/natsclient"
	"github.com/c360/iqrfgw/pkg/tlsutil"
	"github.com/c360/iqrfgw/transport"
)

// Transport is the NATS binding.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics
	client  *natsclient.Client
	inbox   *transport.Queue

	mu        sync.Mutex
	connected bool
	closed    bool
}

// New creates an unconnected transport.
func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	inbox, err := transport.NewInbox(Kind, cfg.InboxSize)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		cfg:    cfg,
		logger: logger.With("transport", Kind, "url", cfg.URL),
		inbox:  inbox,
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(natsclient.SlogLogger(t.logger)),
		natsclient.WithTimeout(cfg.connectTimeout),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithDisconnectCallback(func(error) { t.setConnected(false) }),
		natsclient.WithReconnectCallback(func() { t.setConnected(true) }),
	}
	if cfg.ReconnectBufSize != 0 {
		opts = append(opts, natsclient.WithReconnectBufSize(cfg.ReconnectBufSize))
	}
	if cfg.reconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.reconnectWait))
	}
	if cfg.pingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(cfg.pingInterval))
	}
	if cfg.drainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(cfg.drainTimeout))
	}
	if cfg.secure() {
		tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
		if err != nil {
			return nil, errors.Wrap(err, "nats", "New", "TLS setup")
		}
		opts = append(opts, natsclient.WithTLS(tlsConfig))
	}
	if cfg.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.Name))
	}
	if cfg.TokenEnv != "" {
		opts = append(opts, natsclient.WithToken(os.Getenv(cfg.TokenEnv)))
	}
	if cfg.UsernameEnv != "" {
		opts = append(opts, natsclient.WithCredentials(os.Getenv(cfg.UsernameEnv), os.Getenv(cfg.PasswordEnv)))
	}

	t.client, err = natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Register adds the nats kind to a registry.
func Register(r *transport.Registry) error {
	return r.Register(transport.Registration{
		Kind:        Kind,
		Description: "NATS subject pair bridged to the daemon",
		Factory: func(raw json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
			cfg := DefaultConfig()
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, errors.WrapInvalid(err, "nats", "Factory", "config parsing")
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

// Name returns "nats".
func (t *Transport) Name() string { return Kind }

// Client exposes the underlying connection manager.
func (t *Transport) Client() *natsclient.Client { return t.client }

// Connect connects, subscribes to the response subject and flushes the subscription to
// the server so no response published after Connect returns is missed.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "nats", "Connect", "state check")
	}
	if t.connected {
		return nil
	}

	if err := t.client.Connect(ctx); err != nil {
		t.recordError(metric.OpConnect)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrNoConnection, err), "nats", "Connect", "connect")
	}

	err := t.client.Subscribe(t.cfg.ResponseSubject, func(data []byte) {
		if err := t.inbox.Push(data); err != nil {
			t.logger.Debug("Response dropped", "error", err)
		}
	})
	if err == nil {
		err = t.client.Flush(ctx)
	}
	if err != nil {
		t.recordError(metric.OpConnect)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err), "nats", "Connect", "subscribe")
	}

	t.connected = true
	t.metricsConnected(true)
	t.logger.Info("NATS transport connected",
		"request_subject", t.cfg.RequestSubject, "response_subject", t.cfg.ResponseSubject)
	return nil
}

// Send publishes on the request subject. A full reconnect buffer reports
// errors.ErrTransportBusy.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "nats", "Send", "context check")
	}
	if err := t.state("Send"); err != nil {
		return err
	}

	err := t.client.Publish(ctx, t.cfg.RequestSubject, data)
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gonats.ErrReconnectBufExceeded):
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrTransportBusy, err), "nats", "Send", "publish")
	case stderrors.Is(err, gonats.ErrMaxPayload):
		return errors.WrapInvalid(err, "nats", "Send", "publish")
	default:
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, err), "nats", "Send", "publish")
	}
}

// Receive returns the next buffered response, waiting up to wait.
func (t *Transport) Receive(wait time.Duration) ([]byte, bool, error) {
	if data, ok := t.inbox.Pop(); ok {
		return data, true, nil
	}
	if err := t.state("Receive"); err != nil {
		return nil, false, err
	}
	data, ok := t.inbox.PopWait(wait)
	return data, ok, nil
}

// Close drains the connection and releases the inbox.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	err := t.client.Close(context.Background())
	_ = t.inbox.Close()
	t.metricsConnected(false)
	t.logger.Info("NATS transport closed")
	return errors.Wrap(err, "nats", "Close", "close connection")
}

func (t *Transport) state(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		return errors.WrapFatal(errors.ErrTransportClosed, "nats", op, "state check")
	case !t.connected:
		return errors.WrapTransient(errors.ErrNoConnection, "nats", op, "state check")
	case t.client.Status() == natsclient.StatusDisconnected:
		// nats.go gave up reconnecting
		return errors.WrapTransient(errors.ErrConnectionLost, "nats", op, "state check")
	}
	return nil
}

func (t *Transport) setConnected(up bool) {
	t.metricsConnected(up)
	if !up {
		t.recordError(metric.OpConnection)
	}
}

func (t *Transport) metricsConnected(up bool) {
	if t.metrics != nil {
		t.metrics.SetTransportConnected(Kind, up)
	}
}

func (t *Transport) recordError(op string) {
	if t.metrics != nil {
		t.metrics.RecordTransportError(Kind, op)
	}
}
