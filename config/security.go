package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/iqrfgw/errors"
)

const (
	maxConfigSize = 1 << 20 // 1MB
	maxDepth      = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

type fileFormat int

const (
	formatJSON fileFormat = iota
	formatYAML
)

// formatOf picks the decoder from the file extension.
func formatOf(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return formatJSON, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported config file extension %q", errors.ErrInvalidConfig, filepath.Ext(path)),
			"config", "formatOf", "extension check")
	}
}

// readConfigFile reads a layer after checking its path, kind and size.
func readConfigFile(path string) ([]byte, fileFormat, error) {
	if path == "" {
		return nil, formatJSON, errors.WrapInvalid(errors.ErrMissingConfig, "config", "readConfigFile", "path check")
	}
	if len(path) > maxPathLen {
		return nil, formatJSON, errors.WrapInvalid(
			fmt.Errorf("%w: path too long: %d > %d", errors.ErrInvalidConfig, len(path), maxPathLen),
			"config", "readConfigFile", "path check")
	}
	format, err := formatOf(path)
	if err != nil {
		return nil, formatJSON, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, formatJSON, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path),
				"config", "readConfigFile", "stat file")
		}
		return nil, formatJSON, errors.Wrap(err, "config", "readConfigFile", "stat file")
	}
	if !info.Mode().IsRegular() {
		return nil, formatJSON, errors.WrapInvalid(
			fmt.Errorf("%w: not a regular file: %s", errors.ErrInvalidConfig, path),
			"config", "readConfigFile", "file mode check")
	}
	if info.Size() > maxConfigSize {
		return nil, formatJSON, errors.WrapInvalid(
			fmt.Errorf("%w: config file too large: %d bytes > %d", errors.ErrInvalidConfig, info.Size(), maxConfigSize),
			"config", "readConfigFile", "size check")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, formatJSON, errors.Wrap(err, "config", "readConfigFile", "read file")
	}
	return data, format, nil
}

// writeConfigFile writes data readable by the owner only.
func writeConfigFile(path string, data []byte) error {
	if _, err := formatOf(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: config data too large: %d bytes > %d", errors.ErrInvalidConfig, len(data), maxConfigSize),
			"config", "writeConfigFile", "size check")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "config", "writeConfigFile", "write file")
	}
	return nil
}

// validateEnvVar rejects oversized values and embedded NUL bytes.
func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return errors.WrapInvalid(
			fmt.Errorf("%w: environment variable %s too long: %d > %d", errors.ErrInvalidConfig, key, len(value), maxEnvVarLen),
			"config", "validateEnvVar", "length check")
	}
	if strings.Contains(value, "\x00") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: null byte in environment variable %s", errors.ErrInvalidConfig, key),
			"config", "validateEnvVar", "content check")
	}
	return nil
}

// validateDepth bounds the nesting of a decoded layer.
func validateDepth(v any, depth int) error {
	if depth > maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nesting too deep: > %d", errors.ErrInvalidConfig, maxDepth),
			"config", "validateDepth", "depth check")
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := validateDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := validateDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
