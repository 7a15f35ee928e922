package websocket

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/pkg/tlsutil"
)

// Kind is the registry name of the WebSocket transport.
const Kind = "websocket"

// Config configures the WebSocket connection to the daemon.
type Config struct {
	URL string `json:"url"`

	HandshakeTimeoutStr string `json:"handshake_timeout"`
	WriteTimeoutStr     string `json:"write_timeout"`

	// Headers are sent with the handshake. BearerTokenEnv names an environment
	// variable holding a token for the Authorization header.
	Headers        map[string]string `json:"headers,omitempty"`
	BearerTokenEnv string            `json:"bearer_token_env,omitempty"`

	// Reconnect redials with backoff after the connection drops. While the
	// connection is down, Send and Receive report a lost connection.
	Reconnect bool `json:"reconnect"`

	// TLS applies to wss URLs.
	TLS tlsutil.ClientConfig `json:"tls,omitempty"`

	InboxSize  int `json:"inbox_size"`
	OutboxSize int `json:"outbox_size"`

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

// DefaultConfig returns the daemon's default WebSocket endpoint.
func DefaultConfig() Config {
	return Config{
		URL:                 "ws://localhost:1338",
		HandshakeTimeoutStr: "10s",
		WriteTimeoutStr:     "5s",
		InboxSize:           256,
		OutboxSize:          64,
	}
}

// secure reports whether the URL asks for TLS.
func (c *Config) secure() bool {
	return strings.HasPrefix(strings.ToLower(c.URL), "wss:")
}

// Validate checks the configuration and parses its durations.
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.URL)
	switch {
	case c.URL == "":
		problems = append(problems, "url is required")
	case err != nil:
		problems = append(problems, "url: "+err.Error())
	case u.Scheme != "ws" && u.Scheme != "wss":
		problems = append(problems, fmt.Sprintf("url scheme must be ws or wss, got %q", u.Scheme))
	}

	if c.handshakeTimeout, err = parseDuration(c.HandshakeTimeoutStr, 10*time.Second); err != nil {
		problems = append(problems, "handshake_timeout: "+err.Error())
	}
	if c.writeTimeout, err = parseDuration(c.WriteTimeoutStr, 5*time.Second); err != nil {
		problems = append(problems, "write_timeout: "+err.Error())
	}
	if c.InboxSize < 0 || c.OutboxSize < 0 {
		problems = append(problems, "queue sizes must not be negative")
	}
	if err := c.TLS.Validate(); err != nil {
		problems = append(problems, "tls: "+err.Error())
	}
	if c.TLS.Configured() && u != nil && u.Scheme == "ws" {
		problems = append(problems, "tls settings require a wss url")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"websocket", "Validate", "config validation")
	}
	return nil
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
