package posixmq

import (
	"fmt"
	"strings"

	"github.com/c360/iqrfgw/config"
	"github.com/c360/iqrfgw/errors"
)

// Kind is the registry name of the POSIX message queue transport.
const Kind = "posixmq"

// Config configures the queue pair.
type Config struct {
	// RequestQueue is the queue the daemon reads (its LocalMqName).
	RequestQueue string `json:"request_queue"`
	// ResponseQueue is the queue the daemon writes (its RemoteMqName).
	ResponseQueue string `json:"response_queue"`
	// DaemonConfig points at the daemon's iqrf__MqMessaging.json. Queue names left
	// empty are taken from it.
	DaemonConfig string `json:"daemon_config"`

	// Attributes used when this side creates a queue.
	MaxMessages    int  `json:"max_messages"`
	MaxMessageSize int  `json:"max_message_size"`
	Create         bool `json:"create"`
}

// DefaultConfig returns the queue attributes the daemon examples create queues with.
func DefaultConfig() Config {
	return Config{
		MaxMessages:    10,
		MaxMessageSize: 2048,
		Create:         true,
	}
}

// Resolve fills queue names from the daemon configuration file when needed.
func (c Config) Resolve() (Config, error) {
	if (c.RequestQueue != "" && c.ResponseQueue != "") || c.DaemonConfig == "" {
		return c, nil
	}

	mq, err := config.LoadDaemonMqConfig(c.DaemonConfig)
	if err != nil {
		return c, errors.Wrap(err, "posixmq", "Resolve", "daemon config loading")
	}
	if c.RequestQueue == "" {
		c.RequestQueue = mq.LocalMqName
	}
	if c.ResponseQueue == "" {
		c.ResponseQueue = mq.RemoteMqName
	}
	return c, nil
}

// Validate checks the configuration after Resolve.
func (c Config) Validate() error {
	var problems []string
	if c.RequestQueue == "" {
		problems = append(problems, "request_queue is required")
	}
	if c.ResponseQueue == "" {
		problems = append(problems, "response_queue is required")
	}
	if c.RequestQueue != "" && c.RequestQueue == c.ResponseQueue {
		problems = append(problems, "request_queue and response_queue must differ")
	}
	if c.MaxMessages <= 0 {
		problems = append(problems, "max_messages must be positive")
	}
	if c.MaxMessageSize <= 0 {
		problems = append(problems, "max_message_size must be positive")
	}
	for _, name := range []string{c.RequestQueue, c.ResponseQueue} {
		if strings.Contains(strings.TrimPrefix(name, "/"), "/") {
			problems = append(problems, fmt.Sprintf("queue name %q must not contain '/'", name))
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"posixmq", "Validate", "config validation")
	}
	return nil
}

// queueName returns the name in the form mq_open expects on Linux: without the
// leading slash the C library strips.
func queueName(name string) string {
	return strings.TrimPrefix(name, "/")
}
