package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/iqrfgw/message"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	MType   string
	NAdr    int
	Param   string
	RData   string
	Hdp     bool
	Verbose bool
	Timeout time.Duration

	Count   int
	Nodes   string
	Workers int
	Retries int

	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config", getEnv("IQRFGW_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: IQRFGW_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("IQRFGW_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: IQRFGW_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (env: IQRFGW_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (env: IQRFGW_LOG_FORMAT)")

	fs.StringVar(&cfg.MType, "mtype", getEnv("IQRFGW_MTYPE", ""),
		"Message type to send, e.g. iqrfEmbedLedr_Pulse (env: IQRFGW_MTYPE)")
	fs.IntVar(&cfg.NAdr, "nadr", getEnvInt("IQRFGW_NADR", -1),
		"Node address written to req.nAdr, -1 to omit (env: IQRFGW_NADR)")
	fs.StringVar(&cfg.Param, "param", "", "JSON object merged into the request payload")
	fs.StringVar(&cfg.RData, "rdata", "",
		"DPA frame to send raw, e.g. 01.00.06.03.ff.ff (overrides -mtype)")
	fs.BoolVar(&cfg.Hdp, "hdp", false, "Send -rdata as iqrfRawHdp instead of iqrfRaw")
	fs.BoolVar(&cfg.Verbose, "verbose", getEnvBool("IQRFGW_VERBOSE", false),
		"Request verbose daemon output (env: IQRFGW_VERBOSE)")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "Request timeout, 0 uses the configured value")

	fs.IntVar(&cfg.Count, "count", 1, "Number of times to send the request")
	fs.StringVar(&cfg.Nodes, "nodes", "", "Comma separated node addresses, one request per node and count")
	fs.IntVar(&cfg.Workers, "workers", 0, "Concurrent clients for batch runs, 0 uses the configured value")
	fs.IntVar(&cfg.Retries, "retries", -1, "Resends of busy or timed out requests, -1 uses the configured value")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs, stderr)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp || cfg.Validate {
		return nil
	}

	if cfg.MType == "" && cfg.RData == "" {
		return fmt.Errorf("one of -mtype or -rdata is required")
	}
	if cfg.Hdp && cfg.RData == "" {
		return fmt.Errorf("-hdp requires -rdata")
	}
	if cfg.NAdr < -1 || cfg.NAdr > 0xFFFF {
		return fmt.Errorf("invalid node address: %d", cfg.NAdr)
	}
	if cfg.Count < 1 {
		return fmt.Errorf("invalid count: %d", cfg.Count)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", cfg.Workers)
	}
	if cfg.Retries < -1 {
		return fmt.Errorf("invalid retries: %d", cfg.Retries)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	if cfg.Nodes != "" && cfg.RData != "" {
		return fmt.Errorf("-nodes cannot be combined with -rdata, the frame carries its own address")
	}
	return nil
}

// validateForVariant rejects flags the configured wire shape cannot carry. The legacy
// shape has only the DPA phase fields, so node addresses travel inside -rdata.
func validateForVariant(cfg *CLIConfig, v message.Variant) error {
	if v != message.VariantLegacy || cfg.RData != "" {
		return nil
	}
	switch {
	case cfg.NAdr >= 0:
		return fmt.Errorf("-nadr needs protocol current, the legacy shape addresses nodes inside -rdata")
	case cfg.Nodes != "":
		return fmt.Errorf("-nodes needs protocol current, the legacy shape addresses nodes inside -rdata")
	case cfg.Param != "":
		return fmt.Errorf("-param needs protocol current, send a raw frame with -rdata instead")
	}
	return nil
}

// batchMode reports whether more than one request will be sent.
func (c *CLIConfig) batchMode() bool {
	return c.Count > 1 || c.Nodes != ""
}

func parseNodes(s string) ([]uint16, error) {
	var nodes []uint16
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.ParseUint(field, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid node address %q: %w", field, err)
		}
		nodes = append(nodes, uint16(n))
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node addresses in %q", s)
	}
	return nodes, nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - request client for the IQRF Gateway Daemon

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Pulse the red LED of node 1 over the daemon WebSocket API
  %s -mtype iqrfEmbedLedr_Pulse -nadr 1

  # Same request as a raw DPA frame over POSIX MQ, legacy JSON shape
  IQRFGW_TRANSPORT=posixmq IQRFGW_PROTOCOL=legacy %s -rdata 01.00.06.03.ff.ff

  # Poll three nodes ten times each with two concurrent clients
  %s -config client.yaml -mtype iqrfEmbedLedg_Pulse -nodes 1,2,3 -count 10 -workers 2

  # Validate configuration only
  %s -config client.yaml -validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
