// Package websocket binds the client to the daemon's WebSocket messaging interface. One
// connection carries both directions; a read pump buffers inbound frames and a write pump
// sends queued requests.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/pkg/retry"
	"github.com/c360/iqrfgw/pkg/tlsutil"
	"github.com/c360/iqrfgw/transport"
)

// Transport is the WebSocket binding.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics
	dialer  *websocket.Dialer
	retry   retry.Config

	inbox  *transport.Queue
	outbox *transport.Queue

	mu      sync.Mutex
	conn    *websocket.Conn
	lostErr error
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
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
	outbox, err := transport.NewOutbox(Kind, cfg.OutboxSize)
	if err != nil {
		return nil, err
	}

	return &Transport{
		cfg:    cfg,
		logger: logger.With("transport", Kind, "url", cfg.URL),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		retry:  retry.Dial(),
		inbox:  inbox,
		outbox: outbox,
	}, nil
}

// Register adds the websocket kind to a registry.
func Register(r *transport.Registry) error {
	return r.Register(transport.Registration{
		Kind:        Kind,
		Description: "daemon WebSocket messaging connection",
		Factory: func(raw json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
			cfg := DefaultConfig()
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, errors.WrapInvalid(err, "websocket", "Factory", "config parsing")
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

// Name returns "websocket".
func (t *Transport) Name() string { return Kind }

// Connect dials the daemon, retrying with backoff, and starts the pumps.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.WrapFatal(errors.ErrTransportClosed, "websocket", "Connect", "state check")
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if t.cfg.secure() && t.dialer.TLSClientConfig == nil {
		tlsConfig, err := tlsutil.LoadClientConfig(t.cfg.TLS)
		if err != nil {
			return errors.Wrap(err, "websocket", "Connect", "TLS setup")
		}
		t.dialer.TLSClientConfig = tlsConfig
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = conn.Close()
		return errors.WrapFatal(errors.ErrTransportClosed, "websocket", "Connect", "state check")
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.attach(conn)
	t.wg.Add(1)
	go t.writePump()
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	for k, v := range t.cfg.Headers {
		headers.Set(k, v)
	}
	if t.cfg.BearerTokenEnv != "" {
		if token := os.Getenv(t.cfg.BearerTokenEnv); token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	conn, err := retry.DoWithResult(ctx, t.retry, func() (*websocket.Conn, error) {
		conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, headers)
		if err != nil {
			t.recordError(metric.OpConnect)
			// a rejected handshake will not succeed on retry
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, retry.NonRetryable(fmt.Errorf("handshake rejected with %s: %w", resp.Status, err))
			}
			t.logger.Debug("Dial attempt failed", "error", err)
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrNoConnection, err), "websocket", "Connect", "dial")
	}
	return conn, nil
}

// attach installs conn and starts its read pump. Caller holds t.mu.
func (t *Transport) attach(conn *websocket.Conn) {
	t.conn = conn
	t.lostErr = nil
	t.wg.Add(1)
	go t.readPump(conn)

	t.setConnected(true)
	t.logger.Info("WebSocket connected")
}

// readPump buffers inbound frames until the connection fails.
func (t *Transport) readPump(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.connectionLost(conn, err)
			return
		}
		if err := t.inbox.Push(data); err != nil {
			t.logger.Debug("Response dropped", "error", err)
		}
	}
}

func (t *Transport) connectionLost(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.lostErr = fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
	ctx := t.ctx
	t.mu.Unlock()

	_ = conn.Close()
	t.setConnected(false)
	t.recordError(metric.OpConnection)
	t.logger.Warn("WebSocket connection lost", "error", err, "reconnect", t.cfg.Reconnect)

	if t.cfg.Reconnect {
		t.wg.Add(1)
		go t.reconnect(ctx)
	}
}

func (t *Transport) reconnect(ctx context.Context) {
	defer t.wg.Done()

	for ctx.Err() == nil {
		conn, err := t.dial(ctx)
		if err != nil {
			// lostErr stays set, so pending and later requests fail as transport errors
			if retry.IsNonRetryable(err) {
				t.logger.Error("Reconnect abandoned", "error", err)
				return
			}
			t.logger.Warn("Reconnect failed", "error", err)

			pause := time.NewTimer(t.retry.MaxDelay)
			select {
			case <-ctx.Done():
				pause.Stop()
				return
			case <-pause.C:
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.attach(conn)
		t.mu.Unlock()
		return
	}
}

// writePump sends queued requests in order on the current connection.
func (t *Transport) writePump() {
	defer t.wg.Done()

	for {
		for {
			data, ok := t.outbox.Pop()
			if !ok {
				break
			}
			t.write(data)
		}

		select {
		case <-t.ctx.Done():
			return
		case <-t.outbox.Ready():
		}
	}
}

func (t *Transport) write(data []byte) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		t.logger.Warn("Request dropped, connection down")
		t.recordError(metric.OpWrite)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.logger.Warn("Write failed", "error", err)
		t.recordError(metric.OpWrite)
		// the read pump observes the failure and handles the reconnect
		_ = conn.Close()
	}
}

// Send queues a request for the write pump. A full queue reports errors.ErrTransportBusy.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "websocket", "Send", "context check")
	}
	if err := t.state("Send"); err != nil {
		return err
	}
	return t.outbox.Push(data)
}

// Receive returns the next buffered frame, waiting up to wait. Frames buffered before a
// disconnect are still delivered.
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

// Close sends a close frame, stops the pumps and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn, cancel := t.conn, t.cancel
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = t.outbox.Close()
	_ = t.inbox.Close()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	t.wg.Wait()

	t.setConnected(false)
	t.logger.Info("WebSocket closed")
	return nil
}

func (t *Transport) state(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		return errors.WrapFatal(errors.ErrTransportClosed, "websocket", op, "state check")
	case t.lostErr != nil:
		return errors.WrapTransient(t.lostErr, "websocket", op, "state check")
	case t.conn == nil:
		return errors.WrapTransient(errors.ErrNoConnection, "websocket", op, "state check")
	}
	return nil
}

func (t *Transport) setConnected(connected bool) {
	if t.metrics != nil {
		t.metrics.SetTransportConnected(Kind, connected)
	}
}

func (t *Transport) recordError(op string) {
	if t.metrics != nil {
		t.metrics.RecordTransportError(Kind, op)
	}
}
