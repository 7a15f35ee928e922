//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
)

// startMosquitto runs an anonymous mosquitto broker and returns its URL.
func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// startDaemon answers every current-shape request with a successful response.
func startDaemon(t *testing.T, broker string) {
	t.Helper()

	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("fake-daemon")
	client := paho.NewClient(opts)
	require.NoError(t, waitToken(context.Background(), client.Connect(), 10*time.Second))
	t.Cleanup(func() { client.Disconnect(100) })

	handler := func(c paho.Client, msg paho.Message) {
		var req struct {
			MType string         `json:"mType"`
			Data  map[string]any `json:"data"`
		}
		if json.Unmarshal(msg.Payload(), &req) != nil {
			return
		}
		rsp, _ := json.Marshal(map[string]any{
			"mType": req.MType,
			"data": map[string]any{
				"msgId":     req.Data["msgId"],
				"rsp":       map[string]any{"rData": "00.00.06.83.00.00.00.44"},
				"status":    0,
				"statusStr": "ok",
			},
		})
		c.Publish("Iqrf/DpaResponse", 1, false, rsp)
	}
	require.NoError(t, waitToken(context.Background(), client.Subscribe("Iqrf/DpaRequest", 1, handler), 10*time.Second))
}

func TestIntegration_RequestResponse(t *testing.T) {
	broker := startMosquitto(t)
	startDaemon(t, broker)

	cfg := DefaultConfig()
	cfg.Broker = broker
	tr, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	codec, err := message.NewCodec(message.VariantCurrent)
	require.NoError(t, err)
	client, err := correlator.NewClient(tr, codec, correlator.WithTimeout(5*time.Second))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res := client.Request(context.Background(), "iqrfRaw", map[string]any{"rData": "00.00.06.03.ff.ff"})
		require.Equal(t, correlator.Success, res.Outcome, "request %d: %v", i, res.Err)
		assert.True(t, res.OK())
		assert.Equal(t, "00.00.06.83.00.00.00.44", res.Envelope.String("rData"))
	}
}

func TestIntegration_NoDaemonTimesOut(t *testing.T) {
	broker := startMosquitto(t)

	cfg := DefaultConfig()
	cfg.Broker = broker
	tr, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	codec, err := message.NewCodec(message.VariantLegacy)
	require.NoError(t, err)
	client, err := correlator.NewClient(tr, codec, correlator.WithTimeout(300*time.Millisecond))
	require.NoError(t, err)

	res := client.Request(context.Background(), "raw", map[string]any{"request": "00.00.06.03.ff.ff"})
	assert.Equal(t, correlator.Timeout, res.Outcome)
	assert.ErrorIs(t, res.Err, errors.ErrTimeout)
}
