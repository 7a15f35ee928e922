// Package mqtt binds the client to the daemon's MqttMessaging interface: requests are
// published on one topic and responses arrive on another.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/pkg/tlsutil"
	"github.com/c360/iqrfgw/transport"
)

// Transport is the MQTT binding. Responses are buffered by the subscription handler;
// requests are queued and published by a writer goroutine.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	inbox  *transport.Queue
	outbox *transport.Queue

	mu              sync.Mutex
	client          paho.Client
	lostErr         error
	publishFailures int
	closed          bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// maxPublishFailures consecutive failed publishes mark the connection lost.
const maxPublishFailures = 3

// New creates an unconnected transport.
func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "iqrfgw-" + uuid.NewString()[:8]
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
		logger: logger.With("transport", Kind, "broker", cfg.Broker, "client_id", cfg.ClientID),
		inbox:  inbox,
		outbox: outbox,
	}, nil
}

// Register adds the mqtt kind to a registry.
func Register(r *transport.Registry) error {
	return r.Register(transport.Registration{
		Kind:        Kind,
		Description: "daemon MqttMessaging request/response topic pair",
		Factory: func(raw json.RawMessage, deps transport.Dependencies) (transport.Transport, error) {
			cfg := DefaultConfig()
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, errors.WrapInvalid(err, "mqtt", "Factory", "config parsing")
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

// Name returns "mqtt".
func (t *Transport) Name() string { return Kind }

// Connect connects to the broker, subscribes to the response topic and starts the writer.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.WrapFatal(errors.ErrTransportClosed, "mqtt", "Connect", "state check")
	}
	if t.client != nil {
		return nil
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(t.cfg.connectTimeout).
		SetAutoReconnect(t.cfg.AutoReconnect).
		SetOnConnectHandler(t.onConnect).
		SetConnectionLostHandler(t.onConnectionLost)
	if t.cfg.UsernameEnv != "" {
		opts.SetUsername(os.Getenv(t.cfg.UsernameEnv))
	}
	if t.cfg.PasswordEnv != "" {
		opts.SetPassword(os.Getenv(t.cfg.PasswordEnv))
	}
	if t.cfg.secure() {
		tlsConfig, err := tlsutil.LoadClientConfig(t.cfg.TLS)
		if err != nil {
			return errors.Wrap(err, "mqtt", "Connect", "TLS setup")
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := paho.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), t.cfg.connectTimeout); err != nil {
		t.recordError(metric.OpConnect)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrNoConnection, err), "mqtt", "Connect", "broker connect")
	}

	// subscribe before returning so the response to a first request is not missed
	if err := waitToken(ctx, client.Subscribe(t.cfg.ResponseTopic, t.cfg.QoS, t.onMessage), t.cfg.connectTimeout); err != nil {
		client.Disconnect(250)
		t.recordError(metric.OpSubscribe)
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrSubscriptionFailed, err), "mqtt", "Connect", "subscribe")
	}

	writerCtx, cancel := context.WithCancel(context.Background())
	t.client = client
	t.cancel = cancel
	t.lostErr = nil
	t.publishFailures = 0
	t.wg.Add(1)
	go t.writeLoop(writerCtx, client)

	t.setConnected(true)
	t.logger.Info("Connected to MQTT broker", "request_topic", t.cfg.RequestTopic, "response_topic", t.cfg.ResponseTopic)
	return nil
}

func (t *Transport) onConnect(client paho.Client) {
	// resubscribe after an automatic reconnect; the clean session dropped the old one
	token := client.Subscribe(t.cfg.ResponseTopic, t.cfg.QoS, t.onMessage)
	go func() {
		if err := waitToken(context.Background(), token, t.cfg.connectTimeout); err != nil {
			t.logger.Error("Resubscribe failed", "error", err)
			t.recordError(metric.OpSubscribe)
		}
	}()

	t.mu.Lock()
	t.lostErr = nil
	t.publishFailures = 0
	t.mu.Unlock()
	t.setConnected(true)
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.logger.Warn("MQTT connection lost", "error", err, "auto_reconnect", t.cfg.AutoReconnect)
	t.setConnected(false)
	t.recordError(metric.OpConnection)

	if !t.cfg.AutoReconnect {
		t.mu.Lock()
		t.lostErr = fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
		t.mu.Unlock()
	}
}

func (t *Transport) onMessage(_ paho.Client, msg paho.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	if err := t.inbox.Push(payload); err != nil {
		t.logger.Debug("Response dropped", "error", err)
	}
}

// writeLoop publishes queued requests in order.
func (t *Transport) writeLoop(ctx context.Context, client paho.Client) {
	defer t.wg.Done()

	for {
		for {
			data, ok := t.outbox.Pop()
			if !ok {
				break
			}
			token := client.Publish(t.cfg.RequestTopic, t.cfg.QoS, false, data)
			err := waitToken(ctx, token, t.cfg.publishTimeout)
			if err != nil {
				t.logger.Warn("Publish failed", "error", err, "topic", t.cfg.RequestTopic)
				t.recordError(metric.OpWrite)
			}
			t.notePublish(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.outbox.Ready():
		}
	}
}

// notePublish counts consecutive publish failures. Once maxPublishFailures is reached the
// transport reports the connection lost until the next successful (re)connect, so waiting
// requests fail as transport errors instead of timing out.
func (t *Transport) notePublish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.publishFailures = 0
		return
	}
	t.publishFailures++
	if t.publishFailures >= maxPublishFailures && t.lostErr == nil {
		t.lostErr = fmt.Errorf("%w: %d publishes failed in a row: %w", errors.ErrConnectionLost, t.publishFailures, err)
		t.logger.Error("Publishing keeps failing, treating connection as lost", "failures", t.publishFailures)
	}
}

// Send queues a request for publishing. A full queue reports errors.ErrTransportBusy.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "mqtt", "Send", "context check")
	}
	if err := t.state("Send"); err != nil {
		return err
	}
	return t.outbox.Push(data)
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

// Close stops the writer and disconnects from the broker.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client, cancel := t.client, t.cancel
	t.mu.Unlock()

	_ = t.outbox.Close()
	_ = t.inbox.Close()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	if client != nil {
		client.Unsubscribe(t.cfg.ResponseTopic)
		client.Disconnect(250)
	}
	t.setConnected(false)
	t.logger.Info("Disconnected from MQTT broker")
	return nil
}

func (t *Transport) state(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		return errors.WrapFatal(errors.ErrTransportClosed, "mqtt", op, "state check")
	case t.client == nil:
		return errors.WrapTransient(errors.ErrNoConnection, "mqtt", op, "state check")
	case t.lostErr != nil:
		return errors.WrapTransient(t.lostErr, "mqtt", op, "state check")
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

// waitToken waits for a paho token, bounded by timeout and ctx.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.ErrConnectionTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
