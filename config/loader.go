package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/iqrfgw/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IQRFGW"

// envOverride maps an environment variable suffix to a path in the document.
type envOverride struct {
	suffix string
	path   []string
}

var envOverrides = []envOverride{
	{"PROTOCOL", []string{"protocol"}},
	{"TRANSPORT", []string{"transport", "kind"}},
	{"TIMEOUT", []string{"timeout"}},
	{"POLL_INTERVAL", []string{"poll_interval"}},
	{"LOG_LEVEL", []string{"log", "level"}},
	{"LOG_FORMAT", []string{"log", "format"}},
	{"WS_URL", []string{"transport", "websocket", "url"}},
	{"MQTT_BROKER", []string{"transport", "mqtt", "broker"}},
	{"NATS_URL", []string{"transport", "nats", "url"}},
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges the defaults, every layer and the environment overrides, in that order.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		layer, err := l.loadLayer(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged = deepMergeMaps(merged, layer)
	}

	if err := l.applyEnvOverrides(merged); err != nil {
		return nil, err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "Load", "encode merged document")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode merged document")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadLayer reads one file into a generic map.
func (l *Loader) loadLayer(path string) (map[string]any, error) {
	data, format, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var layer map[string]any
	switch format {
	case formatYAML:
		err = yaml.Unmarshal(data, &layer)
	default:
		err = json.Unmarshal(data, &layer)
	}
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"Loader", "loadLayer", "decode")
	}
	if err := validateDepth(layer, 0); err != nil {
		return nil, err
	}

	// yaml.v3 decodes nested mappings as map[string]any already, but JSON
	// round-tripping normalizes numbers and drops anything json cannot encode.
	return normalize(layer)
}

// applyEnvOverrides writes non-empty environment values into the merged document.
func (l *Loader) applyEnvOverrides(doc map[string]any) error {
	for _, o := range envOverrides {
		key := l.envPrefix + "_" + o.suffix
		val := l.getenv(key)
		if val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		setPath(doc, o.path, strings.TrimSpace(val))
	}
	return nil
}

func setPath(doc map[string]any, path []string, val any) {
	m := doc
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = val
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func normalize(layer map[string]any) (map[string]any, error) {
	if layer == nil {
		return map[string]any{}, nil
	}
	m, err := toMap(layer)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"Loader", "normalize", "encode layer")
	}
	return m, nil
}

func encode(c *Config, format fileFormat) ([]byte, error) {
	if format == formatJSON {
		return json.MarshalIndent(c, "", "  ")
	}
	// Through a map so YAML keys follow the json tags.
	m, err := toMap(c)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(m)
}
