package message

import (
	"fmt"
	"strings"

	"github.com/c360/iqrfgw/errors"
)

// Variant selects the wire shape spoken with the daemon.
type Variant string

// Supported wire shapes
const (
	VariantLegacy  Variant = "legacy"
	VariantCurrent Variant = "current"
)

// ParseVariant parses a configuration value into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantLegacy:
		return VariantLegacy, nil
	case VariantCurrent, "":
		return VariantCurrent, nil
	default:
		return "", errors.WrapInvalid(fmt.Errorf("unknown protocol variant %q", s),
			"message", "ParseVariant", "parse variant")
	}
}

// Codec converts envelopes to and from one wire shape.
type Codec interface {
	// Variant returns the wire shape this codec speaks.
	Variant() Variant

	// Encode renders an envelope. It fails only when the payload cannot be represented.
	Encode(env Envelope) ([]byte, error)

	// Decode parses raw bytes. Failures are returned as *DecodeError.
	Decode(data []byte) (Envelope, error)
}

// CodecOption configures a codec.
type CodecOption func(*codecOptions)

type codecOptions struct {
	legacyCType string
}

// WithLegacyCType sets the ctype written by the legacy codec. Defaults to "dpa".
func WithLegacyCType(ctype string) CodecOption {
	return func(o *codecOptions) {
		if ctype != "" {
			o.legacyCType = ctype
		}
	}
}

// NewCodec returns the codec for the variant.
func NewCodec(v Variant, opts ...CodecOption) (Codec, error) {
	o := codecOptions{legacyCType: "dpa"}
	for _, opt := range opts {
		opt(&o)
	}

	switch v {
	case VariantLegacy:
		return &legacyCodec{ctype: o.legacyCType}, nil
	case VariantCurrent:
		return currentCodec{}, nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown protocol variant %q", v),
			"message", "NewCodec", "select codec")
	}
}

// DecodeError reports a payload that could not be decoded as an envelope of the
// configured variant. It matches errors.ErrDecode.
type DecodeError struct {
	Variant Variant
	Reason  string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s envelope: %s: %v", e.Variant, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s envelope: %s", e.Variant, e.Reason)
}

// Unwrap exposes both the decode sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{errors.ErrDecode}
	}
	return []error{errors.ErrDecode, e.Err}
}

func decodeErr(v Variant, reason string, err error) *DecodeError {
	return &DecodeError{Variant: v, Reason: reason, Err: err}
}
