package correlator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
	"github.com/c360/iqrfgw/metric"
	"github.com/c360/iqrfgw/transport"
)

// Mode selects how the correlator reads the transport on each poll.
type Mode int

const (
	// ModeDrain reads everything buffered before sleeping. A backlog of stale responses
	// is cleared in one poll.
	ModeDrain Mode = iota
	// ModeSingle reads at most one payload per poll. Only suitable when the transport
	// delivers in order and carries no stale backlog.
	ModeSingle
)

func (m Mode) String() string {
	if m == ModeSingle {
		return "single"
	}
	return "drain"
}

// ParseMode parses a configuration value; "" selects ModeDrain.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return ModeDrain, nil
	case "single":
		return ModeSingle, nil
	default:
		return ModeDrain, errors.WrapInvalid(fmt.Errorf("%w: unknown receive mode %q", errors.ErrInvalidConfig, s),
			"correlator", "ParseMode", "parse mode")
	}
}

// PendingRequest is the state of one outstanding request.
type PendingRequest struct {
	CorrelationID string
	Command       string
	Verbose       bool
	Issued        time.Time
	Deadline      time.Time
}

// Correlator waits for the response matching a pending request.
type Correlator struct {
	codec    message.Codec
	governor Governor
	mode     Mode
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// New creates a correlator. logger and metrics may be nil.
func New(codec message.Codec, governor Governor, mode Mode, logger *slog.Logger, metrics *metric.Metrics) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		codec:    codec,
		governor: governor,
		mode:     mode,
		logger:   logger,
		metrics:  metrics,
	}
}

// Governor returns the correlator's timing.
func (c *Correlator) Governor() Governor {
	return c.governor
}

// AwaitMatch polls t until an envelope correlated with p arrives or p.Deadline passes.
// The context can end the wait early: an expired context deadline yields Timeout, a
// cancellation yields TransportError.
func (c *Correlator) AwaitMatch(ctx context.Context, t transport.Transport, p PendingRequest) Result {
	res := Result{CorrelationID: p.CorrelationID, Command: p.Command}
	c.wait(ctx, t, p, &res)
	res.Elapsed = c.governor.Since(p.Issued)
	return res
}

func (c *Correlator) wait(ctx context.Context, t transport.Transport, p PendingRequest, res *Result) {
	for {
		env, matched, err := c.poll(t, p, res)
		switch {
		case err != nil:
			if c.metrics != nil {
				c.metrics.RecordTransportError(t.Name(), metric.OpReceive)
			}
			res.Outcome = TransportError
			res.Err = errors.Wrap(err, "Correlator", "AwaitMatch", "receive")
			return
		case matched:
			res.Outcome = Success
			res.Envelope = env
			return
		case c.governor.Expired(p.Deadline):
			res.Outcome = Timeout
			res.Err = errors.WrapTransient(errors.ErrTimeout, "Correlator", "AwaitMatch",
				fmt.Sprintf("wait for %s", p.CorrelationID))
			return
		}

		select {
		case <-c.governor.after(c.governor.NextWait(p.Deadline)):
		case <-ctx.Done():
			if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
				res.Outcome = Timeout
				res.Err = errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrTimeout, ctx.Err()),
					"Correlator", "AwaitMatch", "wait")
			} else {
				res.Outcome = TransportError
				res.Err = errors.Wrap(ctx.Err(), "Correlator", "AwaitMatch", "wait")
			}
			return
		}
	}
}

// poll performs one poll iteration in the configured mode.
func (c *Correlator) poll(t transport.Transport, p PendingRequest, res *Result) (message.Envelope, bool, error) {
	for {
		data, ok, err := t.Receive(0)
		if err != nil {
			return message.Envelope{}, false, err
		}
		if !ok {
			return message.Envelope{}, false, nil
		}

		if env, matched := c.inspect(data, p, res); matched {
			return env, true, nil
		}
		if c.mode == ModeSingle {
			return message.Envelope{}, false, nil
		}
	}
}

// inspect decodes one payload and decides whether it answers p.
func (c *Correlator) inspect(data []byte, p PendingRequest, res *Result) (message.Envelope, bool) {
	env, err := c.codec.Decode(data)
	if err != nil {
		res.Discarded++
		res.DecodeErrors++
		res.LastDecodeError = err
		c.discard(metric.DiscardDecodeError, p.CorrelationID, "", slog.String("error", err.Error()))
		return message.Envelope{}, false
	}

	if env.CorrelationID != p.CorrelationID {
		res.Discarded++
		c.discard(metric.DiscardMismatch, p.CorrelationID, env.CorrelationID)
		return message.Envelope{}, false
	}

	// A verbose request is answered in phases; only the one with a status is final.
	if p.Verbose && !env.Terminal() {
		res.Discarded++
		c.discard(metric.DiscardIntermediate, p.CorrelationID, env.CorrelationID)
		return message.Envelope{}, false
	}

	return env, true
}

func (c *Correlator) discard(reason, want, got string, attrs ...any) {
	if c.metrics != nil {
		c.metrics.RecordDiscard(reason)
	}
	if c.logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs = append(attrs, slog.String("reason", reason), slog.String("msg_id", want))
		if got != "" {
			attrs = append(attrs, slog.String("received_id", got))
		}
		c.logger.Debug("Discarded envelope", attrs...)
	}
}
