package correlator

import (
	"time"

	"github.com/c360/iqrfgw/message"
)

// Outcome classifies how a request ended.
type Outcome int

const (
	// Success means a correlated response was received.
	Success Outcome = iota
	// Timeout means the deadline passed without a correlated response.
	Timeout
	// TransportBusy means the transport refused the request for lack of outbound capacity.
	TransportBusy
	// TransportError means the channel failed while sending or waiting.
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case TransportBusy:
		return "busy"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is the terminal value of a request.
type Result struct {
	Outcome       Outcome
	CorrelationID string
	Command       string

	// Envelope is the correlated response. Set only on Success.
	Envelope message.Envelope

	// Err describes a non-success outcome.
	Err error

	// Elapsed is measured from the request's issue time.
	Elapsed time.Duration

	// Discarded counts envelopes read and dropped while waiting, DecodeErrors the subset
	// that could not be decoded. LastDecodeError keeps the most recent of those.
	Discarded       int
	DecodeErrors    int
	LastDecodeError error
}

// OK reports whether the request succeeded and the daemon reported success. A response
// without a status (an echoed request) counts as success.
func (r Result) OK() bool {
	if r.Outcome != Success {
		return false
	}
	return !r.Envelope.Status.Present || r.Envelope.Status.OK()
}

// Status returns the daemon status of a successful request, or the status synthesized
// for a local failure.
func (r Result) Status() message.Status {
	switch r.Outcome {
	case Success:
		return r.Envelope.Status
	case Timeout:
		return message.NewErrorStatus(message.StatusTimeout)
	case TransportBusy:
		return message.NewErrorStatus(message.StatusQueueBusy)
	default:
		return message.NewErrorStatus(message.StatusTransport)
	}
}

// StatusString returns Status rendered for display.
func (r Result) StatusString() string {
	return r.Status().String()
}

// AsError returns Err, or nil on Success.
func (r Result) AsError() error {
	if r.Outcome == Success {
		return nil
	}
	return r.Err
}
