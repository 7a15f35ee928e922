package config

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, message.VariantCurrent, cfg.Variant())
	assert.Equal(t, correlator.ModeDrain, cfg.Mode())
	assert.Equal(t, time.Second, cfg.Timeout())
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.JSONEq(t, `{}`, string(cfg.TransportSection(TransportWebSocket)))
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "client.json", `{
		"protocol": "legacy",
		"timeout": "2500ms",
		"poll_interval": "5ms",
		"receive_mode": "single",
		"flush_before_send": true,
		"legacy_ctype": "dpa",
		"transport": {
			"kind": "mqtt",
			"mqtt": {"broker": "tcp://gw:1883", "qos": 1}
		}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, message.VariantLegacy, cfg.Variant())
	assert.Equal(t, correlator.ModeSingle, cfg.Mode())
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout())
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval())
	assert.True(t, cfg.FlushBeforeSend)
	assert.JSONEq(t, `{"broker": "tcp://gw:1883", "qos": 1}`, string(cfg.TransportSection(TransportMQTT)))
}

func TestLoader_LayersMergeDeep(t *testing.T) {
	base := writeFile(t, "base.yaml", `
protocol: current
timeout: 3s
transport:
  kind: websocket
  websocket:
    url: ws://gateway:1338
    inbox_size: 128
metrics:
  enabled: true
  port: 9100
`)
	site := writeFile(t, "site.json", `{
		"transport": {"websocket": {"url": "wss://site:443"}},
		"metrics": {"path": "/prom"}
	}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(site)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Timeout())
	assert.JSONEq(t, `{"url": "wss://site:443", "inbox_size": 128}`,
		string(cfg.TransportSection(TransportWebSocket)))
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, "/prom", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, "client.yml", `
transport:
  kind: websocket
  nats:
    request_subject: Gw.Req
`)
	t.Setenv("IQRFGW_TRANSPORT", "nats")
	t.Setenv("IQRFGW_NATS_URL", "nats://broker:4222")
	t.Setenv("IQRFGW_TIMEOUT", "750ms")
	t.Setenv("IQRFGW_PROTOCOL", "legacy")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout())
	assert.Equal(t, message.VariantLegacy, cfg.Variant())
	assert.JSONEq(t, `{"url": "nats://broker:4222", "request_subject": "Gw.Req"}`,
		string(cfg.TransportSection(TransportNATS)))
}

func TestLoader_EnvOverrideRejectsNul(t *testing.T) {
	loader := NewLoader()
	loader.getenv = func(key string) string {
		if key == "IQRFGW_WS_URL" {
			return "ws://a\x00b"
		}
		return ""
	}

	_, err := loader.Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_FileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrConfigNotFound))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "client.toml", `protocol = "legacy"`)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeFile(t, "client.json", `{"protocol": `)
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrParsingFailed))
	})

	t.Run("directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "layer.json")
		require.NoError(t, os.Mkdir(dir, 0755))
		_, err := NewLoader().LoadFile(dir)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
	})
}

func TestLoader_ValidationCanBeDisabled(t *testing.T) {
	path := writeFile(t, "client.json", `{"protocol": "v3"}`)

	loader := NewLoader()
	loader.EnableValidation(false)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v3", cfg.Protocol)

	loader.EnableValidation(true)
	_, err = loader.LoadFile(path)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty durations use defaults", func(c *Config) { c.TimeoutStr, c.PollIntervalStr = "", "" }, true},
		{"unknown protocol", func(c *Config) { c.Protocol = "v3" }, false},
		{"unknown receive mode", func(c *Config) { c.ReceiveMode = "burst" }, false},
		{"bad timeout", func(c *Config) { c.TimeoutStr = "soon" }, false},
		{"zero timeout", func(c *Config) { c.TimeoutStr = "0s" }, false},
		{"negative poll interval", func(c *Config) { c.PollIntervalStr = "-1ms" }, false},
		{"poll interval above timeout", func(c *Config) { c.PollIntervalStr = "2s" }, false},
		{"missing transport kind", func(c *Config) { c.Transport.Kind = "" }, false},
		{"unknown transport kind", func(c *Config) { c.Transport.Kind = "serial" }, false},
		{"negative workers", func(c *Config) { c.Batch.Workers = -1 }, false},
		{"negative retries", func(c *Config) { c.Batch.Retries = -1 }, false},
		{"metrics port out of range", func(c *Config) { c.Metrics.Enabled, c.Metrics.Port = true, 70000 }, false},
		{"metrics path", func(c *Config) { c.Metrics.Enabled, c.Metrics.Path = true, "metrics" }, false},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, false},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "expected invalid error, got %v", err)
		})
	}
}

func TestConfig_ClientOptions(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.ClientOptions(), 5)

	forward := false
	cfg.ForwardTimeout = &forward
	assert.Len(t, cfg.ClientOptions(), 6)
}

func TestConfig_RetryPolicy(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.RetryPolicy())

	cfg.Batch.Retries = 3
	policy := cfg.RetryPolicy()
	require.NotNil(t, policy)
	assert.Equal(t, 3, policy.MaxRetries)
	assert.True(t, policy.ShouldRetry(errors.ErrTransportBusy, 2))
	assert.False(t, policy.ShouldRetry(errors.ErrTransportBusy, 3))
}

func TestConfig_Codec(t *testing.T) {
	cfg := Default()
	cfg.Protocol = "legacy"
	cfg.LegacyCType = "iqrf"
	require.NoError(t, cfg.Validate())

	codec, err := cfg.Codec()
	require.NoError(t, err)
	assert.Equal(t, message.VariantLegacy, codec.Variant())

	data, err := codec.Encode(message.Envelope{CorrelationID: "1", Command: "raw"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ctype":"iqrf"`)
}

func TestConfig_SaveToFile(t *testing.T) {
	cfg := Default()
	cfg.Protocol = "legacy"
	cfg.Transport.Kind = TransportPosixMQ
	cfg.Transport.PosixMQ = json.RawMessage(`{"request_queue":"iqrf-daemon-100"}`)

	for _, name := range []string{"saved.yaml", "saved.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveToFile(path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := NewLoader().LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, message.VariantLegacy, loaded.Variant())
			assert.Equal(t, TransportPosixMQ, loaded.Transport.Kind)
			assert.JSONEq(t, `{"request_queue":"iqrf-daemon-100"}`,
				string(loaded.TransportSection(TransportPosixMQ)))
		})
	}

	assert.Error(t, cfg.SaveToFile(filepath.Join(t.TempDir(), "saved.ini")))
}

func TestLoadDaemonMqConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeFile(t, "iqrf__MqMessaging.json", `{
			"component": "iqrf::MqMessaging",
			"instance": "default",
			"LocalMqName": "iqrf-daemon-110",
			"RemoteMqName": "iqrf-daemon-100"
		}`)
		cfg, err := LoadDaemonMqConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "iqrf-daemon-110", cfg.LocalMqName)
		assert.Equal(t, "iqrf-daemon-100", cfg.RemoteMqName)
	})

	t.Run("missing names", func(t *testing.T) {
		path := writeFile(t, "mq.json", `{"LocalMqName": "a"}`)
		_, err := LoadDaemonMqConfig(path)
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrMissingConfig))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := LoadDaemonMqConfig(filepath.Join(t.TempDir(), "none.json"))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrConfigNotFound))
	})
}
