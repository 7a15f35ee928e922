package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/pkg/tlsutil"
)

// Kind is the registry name of the NATS transport.
const Kind = "nats"

// Config configures a NATS subject pair bridged to the daemon.
type Config struct {
	URL             string `json:"url"`
	Name            string `json:"name,omitempty"`
	RequestSubject  string `json:"request_subject"`
	ResponseSubject string `json:"response_subject"`

	// Credentials are read from the named environment variables.
	TokenEnv    string `json:"token_env,omitempty"`
	UsernameEnv string `json:"username_env,omitempty"`
	PasswordEnv string `json:"password_env,omitempty"`

	ConnectTimeoutStr string `json:"connect_timeout"`
	ReconnectWaitStr  string `json:"reconnect_wait,omitempty"`
	PingIntervalStr   string `json:"ping_interval,omitempty"`
	DrainTimeoutStr   string `json:"drain_timeout,omitempty"`
	MaxReconnects     int    `json:"max_reconnects"`
	// ReconnectBufSize bounds publishes buffered while reconnecting; past it Send
	// reports the transport busy.
	ReconnectBufSize int `json:"reconnect_buf_size"`
	InboxSize        int `json:"inbox_size"`

	// TLS is used for tls:// servers, or whenever it is set.
	TLS tlsutil.ClientConfig `json:"tls,omitempty"`

	connectTimeout time.Duration
	reconnectWait  time.Duration
	pingInterval   time.Duration
	drainTimeout   time.Duration
}

// DefaultConfig returns a local server with subjects mirroring the daemon's MQTT topics.
func DefaultConfig() Config {
	return Config{
		URL:               "nats://localhost:4222",
		RequestSubject:    "Iqrf.DpaRequest",
		ResponseSubject:   "Iqrf.DpaResponse",
		ConnectTimeoutStr: "5s",
		MaxReconnects:     -1,
		ReconnectBufSize:  64 * 1024,
		InboxSize:         256,
	}
}

// Validate checks the configuration and parses its durations.
func (c *Config) Validate() error {
	var problems []string

	if c.URL == "" {
		problems = append(problems, "url is required")
	}
	if c.RequestSubject == "" || c.ResponseSubject == "" {
		problems = append(problems, "request_subject and response_subject are required")
	}
	if strings.ContainsAny(c.RequestSubject, "*> ") {
		problems = append(problems, "request_subject must not contain wildcards or spaces")
	}
	if c.RequestSubject != "" && c.RequestSubject == c.ResponseSubject {
		problems = append(problems, "request_subject and response_subject must differ")
	}

	c.connectTimeout = 5 * time.Second
	if c.ConnectTimeoutStr != "" {
		d, err := time.ParseDuration(c.ConnectTimeoutStr)
		switch {
		case err != nil:
			problems = append(problems, "connect_timeout: "+err.Error())
		case d <= 0:
			problems = append(problems, "connect_timeout must be positive")
		default:
			c.connectTimeout = d
		}
	}
	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"reconnect_wait", c.ReconnectWaitStr, &c.reconnectWait},
		{"ping_interval", c.PingIntervalStr, &c.pingInterval},
		{"drain_timeout", c.DrainTimeoutStr, &c.drainTimeout},
	} {
		*d.out = 0
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		switch {
		case err != nil:
			problems = append(problems, d.name+": "+err.Error())
		case v <= 0:
			problems = append(problems, d.name+" must be positive")
		default:
			*d.out = v
		}
	}
	if c.InboxSize < 0 {
		problems = append(problems, "inbox_size must not be negative")
	}
	if err := c.TLS.Validate(); err != nil {
		problems = append(problems, "tls: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"nats", "Validate", "config validation")
	}
	return nil
}

// secure reports whether the server connection uses TLS.
func (c *Config) secure() bool {
	return c.TLS.Configured() || strings.HasPrefix(strings.ToLower(c.URL), "tls://")
}
