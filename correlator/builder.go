package correlator

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/iqrfgw/message"
)

// IDGenerator produces correlation ids.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

// NewID calls f.
func (f IDFunc) NewID() string { return f() }

// UUIDGenerator returns random version 4 UUIDs.
func UUIDGenerator() IDGenerator {
	return IDFunc(uuid.NewString)
}

// TimestampGenerator returns ids of the form "<unix-nanos>.<seq>". The sequence keeps ids
// unique when the clock resolution is coarser than the request rate.
func TimestampGenerator() IDGenerator {
	var seq atomic.Uint64
	return IDFunc(func() string {
		n := seq.Add(1)
		return strconv.FormatInt(time.Now().UnixNano(), 10) + "." + strconv.FormatUint(n, 10)
	})
}

// Builder constructs request envelopes.
type Builder struct {
	ids IDGenerator
}

// NewBuilder creates a builder. A nil generator selects UUIDGenerator.
func NewBuilder(ids IDGenerator) *Builder {
	if ids == nil {
		ids = UUIDGenerator()
	}
	return &Builder{ids: ids}
}

// Build returns a request envelope with a fresh correlation id.
func (b *Builder) Build(command string, payload map[string]any, verbose bool) message.Envelope {
	return message.Envelope{
		CorrelationID: b.ids.NewID(),
		Command:       command,
		Payload:       payload,
		Verbose:       verbose,
	}
}
