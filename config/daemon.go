package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/c360/iqrfgw/errors"
)

// DefaultDaemonMqConfig is where the daemon keeps its MqMessaging instance settings.
const DefaultDaemonMqConfig = "/etc/iqrfgd2/iqrf__MqMessaging.json"

// DaemonMqConfig holds the queue names of the daemon's MqMessaging instance, seen from the
// daemon: it reads LocalMqName and writes RemoteMqName.
type DaemonMqConfig struct {
	Component    string `json:"component"`
	Instance     string `json:"instance"`
	LocalMqName  string `json:"LocalMqName"`
	RemoteMqName string `json:"RemoteMqName"`
}

// LoadDaemonMqConfig reads the daemon's MqMessaging configuration file.
func LoadDaemonMqConfig(path string) (DaemonMqConfig, error) {
	if path == "" {
		path = DefaultDaemonMqConfig
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DaemonMqConfig{}, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path),
				"config", "LoadDaemonMqConfig", "read file")
		}
		return DaemonMqConfig{}, errors.Wrap(err, "config", "LoadDaemonMqConfig", "read file")
	}

	var cfg DaemonMqConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DaemonMqConfig{}, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"config", "LoadDaemonMqConfig", "parse JSON")
	}
	if cfg.LocalMqName == "" || cfg.RemoteMqName == "" {
		return DaemonMqConfig{}, errors.WrapInvalid(fmt.Errorf("%w: LocalMqName and RemoteMqName are required", errors.ErrMissingConfig),
			"config", "LoadDaemonMqConfig", "validate")
	}
	return cfg, nil
}
