// Package main implements iqrfgw, a command-line client that sends correlated requests
// to the IQRF Gateway Daemon over any of the supported transports.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/iqrfgw/batch"
	"github.com/c360/iqrfgw/config"
	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/transport"
	"github.com/c360/iqrfgw/transportregistry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "iqrfgw"
)

// errRequestFailed marks a request that completed without a successful daemon status.
var errRequestFailed = stderrors.New("request did not succeed")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()

	switch {
	case err == nil, stderrors.Is(err, flag.ErrHelp):
	case stderrors.Is(err, errRequestFailed):
		os.Exit(1)
	default:
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cli.ShowHelp {
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid", "transport", cfg.Transport.Kind, "protocol", cfg.Protocol)
		return nil
	}

	if err := validateForVariant(cli, cfg.Variant()); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	jobs, err := buildJobs(cli, cfg.Variant())
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	registry, err := transportregistry.New()
	if err != nil {
		return fmt.Errorf("create transport registry: %w", err)
	}
	metrics := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		stop := startMetricsServer(cfg, metrics, logger)
		defer stop()
	}

	factory := clientFactory(cfg, registry, metrics, logger)

	if !cli.batchMode() {
		return runSingle(ctx, factory, jobs[0], cfg.RetryPolicy(), logger, stdout)
	}

	workers := cli.Workers
	if workers == 0 {
		workers = cfg.Batch.Workers
	}
	opts := []batch.Option{
		batch.WithWorkers(workers),
		batch.WithLogger(logger),
		batch.WithMetricsRegistry(metrics),
	}
	if cfg.Batch.QueueSize > 0 {
		opts = append(opts, batch.WithQueueSize(cfg.Batch.QueueSize))
	}
	if policy := cfg.RetryPolicy(); policy != nil {
		opts = append(opts, batch.WithRetry(*policy))
	}
	runner, err := batch.NewRunner(factory, opts...)
	if err != nil {
		return fmt.Errorf("create batch runner: %w", err)
	}

	logger.Info("Starting batch", "requests", len(jobs), "workers", workers, "transport", cfg.Transport.Kind)
	report, err := runner.Run(ctx, jobs)
	if werr := writeJSON(stdout, newBatchOutput(report)); werr != nil {
		return werr
	}
	return err
}

// loadConfig loads the configuration file (if any) and applies the flag overrides.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	if cli.Timeout > 0 {
		cfg.TimeoutStr = cli.Timeout.String()
	}
	if cli.Retries >= 0 {
		cfg.Batch.Retries = cli.Retries
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clientFactory creates and connects one client per call, each on its own transport.
func clientFactory(
	cfg *config.Config,
	registry *transport.Registry,
	metrics *metric.MetricsRegistry,
	logger *slog.Logger,
) batch.ClientFactory {
	return func(ctx context.Context, id int) (*correlator.Client, error) {
		kind := cfg.Transport.Kind
		deps := transport.Dependencies{Logger: logger.With("worker", id), Metrics: metrics}

		t, err := registry.Create(kind, cfg.TransportSection(kind), deps)
		if err != nil {
			return nil, err
		}
		if err := t.Connect(ctx); err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("connect %s transport: %w", kind, err)
		}

		codec, err := cfg.Codec()
		if err != nil {
			_ = t.Close()
			return nil, err
		}

		opts := append(cfg.ClientOptions(),
			correlator.WithLogger(deps.Logger),
			correlator.WithMetrics(metrics.CoreMetrics()),
		)
		c, err := correlator.NewClient(t, codec, opts...)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		return c, nil
	}
}

func runSingle(
	ctx context.Context,
	factory batch.ClientFactory,
	job batch.Job,
	policy *errors.RetryConfig,
	logger *slog.Logger,
	stdout io.Writer,
) error {
	client, err := factory(ctx, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("Client close failed", "error", err)
		}
	}()

	res, attempts := batch.Attempt(ctx, client, job, policy, logger)
	if err := writeJSON(stdout, newResultOutput(job.Label, res, attempts)); err != nil {
		return err
	}
	if !res.OK() {
		return errRequestFailed
	}
	return nil
}

func startMetricsServer(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) func() {
	server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	logger.Info("Metrics server started", "address", server.Address())

	return func() {
		if err := server.Stop(); err != nil {
			logger.Warn("Metrics server stop failed", "error", err)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
