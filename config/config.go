package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
)

// Transport kinds accepted in transport.kind.
const (
	TransportLoopback  = "loopback"
	TransportPosixMQ   = "posixmq"
	TransportMQTT      = "mqtt"
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config is the client configuration document.
type Config struct {
	Protocol        string          `json:"protocol"`
	TimeoutStr      string          `json:"timeout"`
	PollIntervalStr string          `json:"poll_interval"`
	ReceiveMode     string          `json:"receive_mode"`
	Verbose         bool            `json:"verbose"`
	FlushBeforeSend bool            `json:"flush_before_send"`
	ForwardTimeout  *bool           `json:"forward_timeout,omitempty"`
	LegacyCType     string          `json:"legacy_ctype,omitempty"`
	Transport       TransportConfig `json:"transport"`
	Batch           BatchConfig     `json:"batch"`
	Metrics         MetricsConfig   `json:"metrics"`
	Log             LogConfig       `json:"log"`

	timeout      time.Duration
	pollInterval time.Duration
	variant      message.Variant
	mode         correlator.Mode
}

// TransportConfig selects the transport and carries the per-kind sections. Sections stay
// raw; each transport factory decodes and validates its own.
type TransportConfig struct {
	Kind      string          `json:"kind"`
	Loopback  json.RawMessage `json:"loopback,omitempty"`
	PosixMQ   json.RawMessage `json:"posixmq,omitempty"`
	MQTT      json.RawMessage `json:"mqtt,omitempty"`
	WebSocket json.RawMessage `json:"websocket,omitempty"`
	NATS      json.RawMessage `json:"nats,omitempty"`
}

// BatchConfig sizes the batch runner. Retries resends busy and timed out requests up to
// that many times; zero sends every request once.
type BatchConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
	Retries   int `json:"retries"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns the configuration used when no layer overrides a value.
func Default() *Config {
	return &Config{
		Protocol:        string(message.VariantCurrent),
		TimeoutStr:      correlator.DefaultTimeout.String(),
		PollIntervalStr: correlator.DefaultPollInterval.String(),
		ReceiveMode:     correlator.ModeDrain.String(),
		Transport:       TransportConfig{Kind: TransportWebSocket},
		Batch:           BatchConfig{Workers: 1},
		Metrics:         MetricsConfig{Port: 9090, Path: "/metrics"},
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks the configuration and caches the parsed values read by the accessors.
func (c *Config) Validate() error {
	variant, err := message.ParseVariant(c.Protocol)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "protocol check")
	}

	mode, err := correlator.ParseMode(c.ReceiveMode)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "receive mode check")
	}

	timeout, err := parsePositive("timeout", c.TimeoutStr, correlator.DefaultTimeout)
	if err != nil {
		return err
	}
	poll, err := parsePositive("poll_interval", c.PollIntervalStr, correlator.DefaultPollInterval)
	if err != nil {
		return err
	}
	if poll > timeout {
		return invalid("poll_interval %s exceeds timeout %s", poll, timeout)
	}

	switch c.Transport.Kind {
	case TransportLoopback, TransportPosixMQ, TransportMQTT, TransportWebSocket, TransportNATS:
	case "":
		return errors.WrapInvalid(fmt.Errorf("%w: transport.kind", errors.ErrMissingConfig),
			"Config", "Validate", "transport check")
	default:
		return invalid("unknown transport kind %q", c.Transport.Kind)
	}

	if c.Batch.Workers < 0 || c.Batch.QueueSize < 0 || c.Batch.Retries < 0 {
		return invalid("batch workers, queue_size and retries must not be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics path %q must start with /", c.Metrics.Path)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}

	c.variant = variant
	c.mode = mode
	c.timeout = timeout
	c.pollInterval = poll
	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "value check")
}

func parsePositive(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid("%s: %v", name, err)
	}
	if d <= 0 {
		return 0, invalid("%s must be positive, got %s", name, s)
	}
	return d, nil
}

// Variant returns the protocol variant. Valid after Validate.
func (c *Config) Variant() message.Variant {
	if c.variant == "" {
		return message.VariantCurrent
	}
	return c.variant
}

// Mode returns the receive mode. Valid after Validate.
func (c *Config) Mode() correlator.Mode { return c.mode }

// Timeout returns the default request timeout. Valid after Validate.
func (c *Config) Timeout() time.Duration {
	if c.timeout == 0 {
		return correlator.DefaultTimeout
	}
	return c.timeout
}

// PollInterval returns the idle poll interval. Valid after Validate.
func (c *Config) PollInterval() time.Duration {
	if c.pollInterval == 0 {
		return correlator.DefaultPollInterval
	}
	return c.pollInterval
}

// TransportSection returns the raw section for kind, or an empty object.
func (c *Config) TransportSection(kind string) json.RawMessage {
	var raw json.RawMessage
	switch kind {
	case TransportLoopback:
		raw = c.Transport.Loopback
	case TransportPosixMQ:
		raw = c.Transport.PosixMQ
	case TransportMQTT:
		raw = c.Transport.MQTT
	case TransportWebSocket:
		raw = c.Transport.WebSocket
	case TransportNATS:
		raw = c.Transport.NATS
	}
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("{}")
	}
	return raw
}

// Codec builds the envelope codec for the configured protocol.
func (c *Config) Codec() (message.Codec, error) {
	return message.NewCodec(c.Variant(), message.WithLegacyCType(c.LegacyCType))
}

// ClientOptions translates the request settings into correlator options.
func (c *Config) ClientOptions() []correlator.Option {
	opts := []correlator.Option{
		correlator.WithTimeout(c.Timeout()),
		correlator.WithPollInterval(c.PollInterval()),
		correlator.WithMode(c.Mode()),
		correlator.WithVerbose(c.Verbose),
		correlator.WithFlushBeforeSend(c.FlushBeforeSend),
	}
	if c.ForwardTimeout != nil {
		opts = append(opts, correlator.WithForwardTimeout(*c.ForwardTimeout))
	}
	return opts
}

// RetryPolicy returns the resend policy for Batch.Retries, or nil when requests are sent
// once.
func (c *Config) RetryPolicy() *errors.RetryConfig {
	if c.Batch.Retries <= 0 {
		return nil
	}
	policy := errors.DefaultRetryConfig()
	policy.MaxRetries = c.Batch.Retries
	return &policy
}

// SaveToFile writes the configuration as JSON or YAML depending on the extension.
func (c *Config) SaveToFile(path string) error {
	format, err := formatOf(path)
	if err != nil {
		return err
	}
	data, err := encode(c, format)
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode")
	}
	return writeConfigFile(path, data)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
