package correlator

import (
	"log/slog"
	"time"

	"github.com/c360/iqrfgw/metric"
)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout         time.Duration
	pollInterval    time.Duration
	mode            Mode
	verbose         bool
	flushBeforeSend bool
	forwardTimeout  bool
	clock           Clock
	ids             IDGenerator
	logger          *slog.Logger
	metrics         *metric.Metrics
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		timeout:        DefaultTimeout,
		pollInterval:   DefaultPollInterval,
		mode:           ModeDrain,
		forwardTimeout: true,
		clock:          SystemClock(),
	}
}

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithPollInterval sets the sleep between polls of an idle transport.
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) { o.pollInterval = d }
}

// WithMode selects drain or single receive mode.
func WithMode(m Mode) Option {
	return func(o *clientOptions) { o.mode = m }
}

// WithVerbose makes verbose output the default for requests.
func WithVerbose(verbose bool) Option {
	return func(o *clientOptions) { o.verbose = verbose }
}

// WithFlushBeforeSend discards everything buffered on the transport before each send.
func WithFlushBeforeSend(flush bool) Option {
	return func(o *clientOptions) { o.flushBeforeSend = flush }
}

// WithForwardTimeout controls whether the request timeout is written into the envelope
// for the daemon. Enabled by default.
func WithForwardTimeout(forward bool) Option {
	return func(o *clientOptions) { o.forwardTimeout = forward }
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDGenerator replaces the UUID correlation id source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *clientOptions) { o.ids = ids }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithMetrics enables request metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	verbose bool
	timeout time.Duration
}

// Verbose overrides the client's verbose default for one request.
func Verbose(verbose bool) RequestOption {
	return func(o *requestOptions) { o.verbose = verbose }
}

// RequestTimeout overrides the client's timeout for one request.
func RequestTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
