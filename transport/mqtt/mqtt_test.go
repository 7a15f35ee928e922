package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/transport"
)

func TestConfig_Secure(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.secure())

	for _, broker := range []string{"ssl://gw:8883", "tls://gw:8883", "mqtts://gw:8883", "WSS://gw:443"} {
		cfg.Broker = broker
		assert.True(t, cfg.secure(), broker)
	}

	cfg.Broker = "tcp://gw:1883"
	cfg.TLS.ServerName = "gw.local"
	assert.True(t, cfg.secure())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no broker", func(c *Config) { c.Broker = "" }, "broker is required"},
		{"no topics", func(c *Config) { c.ResponseTopic = "" }, "response_topic are required"},
		{"wildcard publish", func(c *Config) { c.RequestTopic = "Iqrf/#" }, "wildcards"},
		{"bad qos", func(c *Config) { c.QoS = 3 }, "qos"},
		{"bad duration", func(c *Config) { c.ConnectTimeoutStr = "soon" }, "connect_timeout"},
		{"negative duration", func(c *Config) { c.PublishTimeoutStr = "-1s" }, "publish_timeout"},
		{"tls version", func(c *Config) { c.TLS.MinVersion = "1.0" }, "min_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 10*time.Second, cfg.connectTimeout)
				assert.Equal(t, 5*time.Second, cfg.publishTimeout)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTransport_NotConnected(t *testing.T) {
	tr, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Contains(t, tr.cfg.ClientID, "iqrfgw-")

	err = tr.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	_, _, err = tr.Receive(0)
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	require.NoError(t, tr.Close())
	err = tr.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, errors.ErrTransportClosed)
}

func TestTransport_ConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1"
	cfg.ConnectTimeoutStr = "500ms"
	cfg.AutoReconnect = false

	tr, err := New(cfg, nil)
	require.NoError(t, err)
	defer tr.Close()

	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))
}

func TestTransport_PublishFailureStreak(t *testing.T) {
	tr, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	tr.notePublish(errors.ErrConnectionTimeout)
	tr.notePublish(errors.ErrConnectionTimeout)
	tr.notePublish(nil)
	tr.notePublish(errors.ErrConnectionTimeout)
	assert.NoError(t, tr.lostErr, "a successful publish resets the streak")

	tr.notePublish(errors.ErrConnectionTimeout)
	tr.notePublish(errors.ErrConnectionTimeout)
	require.Error(t, tr.lostErr)
	assert.ErrorIs(t, tr.lostErr, errors.ErrConnectionLost)
	assert.ErrorIs(t, tr.lostErr, errors.ErrConnectionTimeout)
}

func TestTransport_FailingPublishesSurfaceAsConnectionLost(t *testing.T) {
	tr, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	// never connected, so every publish fails immediately
	client := paho.NewClient(paho.NewClientOptions().AddBroker("tcp://127.0.0.1:1"))
	tr.mu.Lock()
	tr.client = client
	tr.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	tr.wg.Add(1)
	go tr.writeLoop(ctx, client)
	defer func() {
		cancel()
		tr.wg.Wait()
	}()

	for i := 0; i < maxPublishFailures; i++ {
		require.NoError(t, tr.Send(ctx, []byte(`{"mType":"iqrfRaw"}`)))
	}

	require.Eventually(t, func() bool {
		_, _, err := tr.Receive(0)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err = tr.Receive(0)
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
	assert.True(t, errors.IsTransient(err))

	err = tr.Send(ctx, []byte("x"))
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
}

func TestRegister(t *testing.T) {
	r := transport.NewRegistry()
	require.NoError(t, Register(r))

	tr, err := r.Create(Kind, json.RawMessage(`{"broker":"tcp://broker:1883","client_id":"cli"}`), transport.Dependencies{})
	require.NoError(t, err)
	mt := tr.(*Transport)
	assert.Equal(t, "tcp://broker:1883", mt.cfg.Broker)
	assert.Equal(t, "Iqrf/DpaRequest", mt.cfg.RequestTopic)
	assert.Equal(t, "cli", mt.cfg.ClientID)

	_, err = r.Create(Kind, json.RawMessage(`{"qos":7}`), transport.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
