package message

import (
	"time"
)

// Envelope is the unit exchanged over a transport.
type Envelope struct {
	// CorrelationID matches a response to its request by exact string equality.
	CorrelationID string

	// Command is the symbolic operation: mType in the current shape, type in the legacy one.
	Command string

	// Payload carries the command arguments (req) on requests and the response body (rsp)
	// on responses. It is opaque to correlation.
	Payload map[string]any

	// Verbose asks the daemon for the enriched multi-phase response.
	Verbose bool

	// Timeout is forwarded to the daemon when non-zero.
	Timeout time.Duration

	// Status is the terminal status. Requests and intermediate phases have none.
	Status Status

	// Fields holds every field of the decoded body as received. Nil on envelopes built locally.
	Fields map[string]any
}

// Terminal reports whether the envelope carries a terminal status field.
func (e Envelope) Terminal() bool {
	return e.Status.Present
}

// String returns the payload value for key, or "" if absent or not a string.
func (e Envelope) String(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}
