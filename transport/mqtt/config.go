package mqtt

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/pkg/tlsutil"
)

// Kind is the registry name of the MQTT transport.
const Kind = "mqtt"

// Config configures the MQTT topic pair.
type Config struct {
	Broker        string `json:"broker"`
	ClientID      string `json:"client_id"`
	RequestTopic  string `json:"request_topic"`
	ResponseTopic string `json:"response_topic"`
	QoS           byte   `json:"qos"`

	// Credentials are read from the environment, never from the file.
	UsernameEnv string `json:"username_env,omitempty"`
	PasswordEnv string `json:"password_env,omitempty"`

	ConnectTimeoutStr string `json:"connect_timeout"`
	PublishTimeoutStr string `json:"publish_timeout"`
	AutoReconnect     bool   `json:"auto_reconnect"`

	// TLS is used for ssl://, tls:// and mqtts:// brokers, or whenever it is set.
	TLS tlsutil.ClientConfig `json:"tls,omitempty"`

	InboxSize  int `json:"inbox_size"`
	OutboxSize int `json:"outbox_size"`

	connectTimeout time.Duration
	publishTimeout time.Duration
}

// DefaultConfig returns the topics and broker the daemon ships with.
func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		RequestTopic:      "Iqrf/DpaRequest",
		ResponseTopic:     "Iqrf/DpaResponse",
		QoS:               1,
		ConnectTimeoutStr: "10s",
		PublishTimeoutStr: "5s",
		AutoReconnect:     true,
		InboxSize:         256,
		OutboxSize:        64,
	}
}

// Validate checks the configuration and parses its durations.
func (c *Config) Validate() error {
	var problems []string
	if c.Broker == "" {
		problems = append(problems, "broker is required")
	}
	if c.RequestTopic == "" || c.ResponseTopic == "" {
		problems = append(problems, "request_topic and response_topic are required")
	}
	if strings.ContainsAny(c.RequestTopic, "+#") {
		problems = append(problems, "request_topic must not contain wildcards")
	}
	if c.QoS > 2 {
		problems = append(problems, fmt.Sprintf("qos must be 0, 1 or 2, got %d", c.QoS))
	}
	if c.InboxSize < 0 || c.OutboxSize < 0 {
		problems = append(problems, "queue sizes must not be negative")
	}

	if err := c.TLS.Validate(); err != nil {
		problems = append(problems, "tls: "+err.Error())
	}

	var err error
	if c.connectTimeout, err = parseDuration(c.ConnectTimeoutStr, 10*time.Second); err != nil {
		problems = append(problems, "connect_timeout: "+err.Error())
	}
	if c.publishTimeout, err = parseDuration(c.PublishTimeoutStr, 5*time.Second); err != nil {
		problems = append(problems, "publish_timeout: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"mqtt", "Validate", "config validation")
	}
	return nil
}

// secure reports whether the broker connection uses TLS.
func (c *Config) secure() bool {
	if c.TLS.Configured() {
		return true
	}
	scheme, _, _ := strings.Cut(strings.ToLower(c.Broker), "://")
	return scheme == "ssl" || scheme == "tls" || scheme == "mqtts" || scheme == "wss"
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
