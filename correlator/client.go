package correlator

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/transport"
)

// Client owns a transport and issues correlated requests over it, one at a time.
type Client struct {
	mu sync.Mutex

	transport  transport.Transport
	codec      message.Codec
	builder    *Builder
	correlator *Correlator
	opts       clientOptions
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// NewClient creates a client over a connected transport.
func NewClient(t transport.Transport, codec message.Codec, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, errors.WrapInvalid(errors.ErrNoTransport, "Client", "NewClient", "transport validation")
	}
	if codec == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "codec validation")
	}

	o := defaultClientOptions()
	for _, opt := range opts {
		opt(&o)
	}

	governor, err := NewGovernor(o.timeout, o.pollInterval, o.clock)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "NewClient", "governor setup")
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "correlator", "transport", t.Name(), "protocol", string(codec.Variant()))

	return &Client{
		transport:  t,
		codec:      codec,
		builder:    NewBuilder(o.ids),
		correlator: New(codec, governor, o.mode, logger, o.metrics),
		opts:       o,
		logger:     logger,
		metrics:    o.metrics,
	}, nil
}

// Transport returns the client's transport.
func (c *Client) Transport() transport.Transport {
	return c.transport
}

// Codec returns the client's codec.
func (c *Client) Codec() message.Codec {
	return c.codec
}

// Request builds an envelope for command and payload, sends it and waits for the
// correlated response. Every outcome is reported in the returned Result.
func (c *Client) Request(ctx context.Context, command string, payload map[string]any, opts ...RequestOption) Result {
	ro := requestOptions{verbose: c.opts.verbose, timeout: c.opts.timeout}
	for _, opt := range opts {
		opt(&ro)
	}

	env := c.builder.Build(command, payload, ro.verbose)
	if c.opts.forwardTimeout {
		env.Timeout = ro.timeout
	}
	return c.exchange(ctx, env, ro.timeout)
}

// RequestEnvelope sends a caller-built envelope. An empty correlation id is filled in.
func (c *Client) RequestEnvelope(ctx context.Context, env message.Envelope, opts ...RequestOption) Result {
	ro := requestOptions{verbose: env.Verbose, timeout: c.opts.timeout}
	for _, opt := range opts {
		opt(&ro)
	}
	if env.CorrelationID == "" {
		env.CorrelationID = c.builder.ids.NewID()
	}
	env.Verbose = ro.verbose
	return c.exchange(ctx, env, ro.timeout)
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) exchange(ctx context.Context, env message.Envelope, timeout time.Duration) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RequestsInFlight.Inc()
		defer c.metrics.RequestsInFlight.Dec()
	}

	// the deadline is fixed at issue time, before the send
	issued := c.correlator.governor.Now()
	pending := PendingRequest{
		CorrelationID: env.CorrelationID,
		Command:       env.Command,
		Verbose:       env.Verbose,
		Issued:        issued,
		Deadline:      issued.Add(timeout),
	}

	res := c.send(ctx, env, pending)
	if res == nil {
		r := c.correlator.AwaitMatch(ctx, c.transport, pending)
		res = &r
	}

	c.finish(*res)
	return *res
}

// send encodes and sends env. It returns a terminal result when the request never
// reached the transport, nil otherwise.
func (c *Client) send(ctx context.Context, env message.Envelope, p PendingRequest) *Result {
	fail := func(outcome Outcome, err error) *Result {
		return &Result{
			Outcome:       outcome,
			CorrelationID: p.CorrelationID,
			Command:       p.Command,
			Err:           err,
			Elapsed:       c.correlator.governor.Since(p.Issued),
		}
	}

	data, err := c.codec.Encode(env)
	if err != nil {
		return fail(TransportError, errors.Wrap(err, "Client", "Request", "encode envelope"))
	}

	if c.opts.flushBeforeSend {
		if n := c.flush(); n > 0 {
			c.logger.Debug("Flushed stale envelopes", "count", n, "msg_id", p.CorrelationID)
		}
	}

	if err := c.transport.Send(ctx, data); err != nil {
		if stderrors.Is(err, errors.ErrTransportBusy) {
			return fail(TransportBusy, err)
		}
		if c.metrics != nil {
			c.metrics.RecordTransportError(c.transport.Name(), metric.OpSend)
		}
		return fail(TransportError, errors.Wrap(err, "Client", "Request", "send"))
	}
	return nil
}

// flush discards everything the transport has buffered.
func (c *Client) flush() int {
	n := 0
	for {
		_, ok, err := c.transport.Receive(0)
		if err != nil || !ok {
			return n
		}
		n++
		if c.metrics != nil {
			c.metrics.RecordDiscard(metric.DiscardFlushed)
		}
	}
}

func (c *Client) finish(res Result) {
	if c.metrics != nil {
		c.metrics.RecordRequest(res.Command, res.Outcome.String(), res.Elapsed)
	}

	attrs := []any{
		"msg_id", res.CorrelationID,
		"command", res.Command,
		"outcome", res.Outcome.String(),
		"elapsed", res.Elapsed,
		"discarded", res.Discarded,
	}
	if res.Outcome == Success {
		c.logger.Info("Request completed", append(attrs, "status", res.StatusString())...)
		return
	}
	c.logger.Warn("Request failed", append(attrs, "error", res.Err)...)
}
