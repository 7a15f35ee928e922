//go:build integration

package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/message"
	"github.com/c360/iqrfgw/natsclient"
)

// answer echoes every current-shape request back on the response subject as a success.
func answer(t *testing.T, daemon *natsclient.Client, cfg Config) {
	t.Helper()
	require.NoError(t, daemon.Subscribe(cfg.RequestSubject, func(data []byte) {
		var req map[string]any
		if json.Unmarshal(data, &req) != nil {
			return
		}
		body, _ := req["data"].(map[string]any)
		body["status"] = 0
		body["rsp"] = map[string]any{"nAdr": 1}
		delete(body, "req")
		rsp, _ := json.Marshal(req)
		_ = daemon.Publish(context.Background(), cfg.ResponseSubject, rsp)
	}))
	require.NoError(t, daemon.Flush(context.Background()))
}

func TestIntegration_Request(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithFastStartup())

	cfg := DefaultConfig()
	cfg.URL = tc.URL
	answer(t, tc.Client, cfg)

	tr, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	codec, err := message.NewCodec(message.VariantCurrent)
	require.NoError(t, err)
	client, err := correlator.NewClient(tr, codec, correlator.WithTimeout(2*time.Second))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res := client.Request(context.Background(), "iqrfEmbedLedg_Pulse", map[string]any{"nAdr": 1})
		require.Equal(t, correlator.Success, res.Outcome, "err: %v", res.Err)
		assert.True(t, res.OK())
		assert.Equal(t, res.CorrelationID, res.Envelope.CorrelationID)
	}
}

func TestIntegration_NoResponder(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithFastStartup())

	cfg := DefaultConfig()
	cfg.URL = tc.URL
	tr, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	codec, err := message.NewCodec(message.VariantLegacy)
	require.NoError(t, err)
	client, err := correlator.NewClient(tr, codec, correlator.WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	res := client.Request(context.Background(), "dpa", map[string]any{"request": "01.00.06.03.ff.ff"})
	assert.Equal(t, correlator.Timeout, res.Outcome)
	assert.Equal(t, "ERROR_TIMEOUT", res.StatusString())
}
