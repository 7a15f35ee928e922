package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/iqrfgw/errors"
)

// legacy field names that carry phase data
var legacyPhaseFields = []string{
	"request", "request_ts",
	"confirmation", "confirmation_ts",
	"response", "response_ts",
}

type legacyWire struct {
	CType          string          `json:"ctype"`
	Type           string          `json:"type"`
	MsgID          string          `json:"msgid"`
	Timeout        int64           `json:"timeout,omitempty"`
	Request        string          `json:"request"`
	RequestTS      string          `json:"request_ts"`
	Confirmation   string          `json:"confirmation"`
	ConfirmationTS string          `json:"confirmation_ts"`
	Response       string          `json:"response"`
	ResponseTS     string          `json:"response_ts"`
	Status         json.RawMessage `json:"status,omitempty"`
}

type legacyCodec struct {
	ctype string
}

func (c *legacyCodec) Variant() Variant { return VariantLegacy }

// Encode renders the flat legacy object. Payload keys matching the phase fields are
// copied as strings; "ctype" overrides the codec default.
func (c *legacyCodec) Encode(env Envelope) ([]byte, error) {
	w := legacyWire{
		CType: c.ctype,
		Type:  env.Command,
		MsgID: env.CorrelationID,
	}
	if env.Timeout > 0 {
		w.Timeout = env.Timeout.Milliseconds()
	}

	fields := map[string]*string{
		"ctype":           &w.CType,
		"request":         &w.Request,
		"request_ts":      &w.RequestTS,
		"confirmation":    &w.Confirmation,
		"confirmation_ts": &w.ConfirmationTS,
		"response":        &w.Response,
		"response_ts":     &w.ResponseTS,
	}
	for key, val := range env.Payload {
		dst, ok := fields[key]
		if !ok {
			return nil, errors.WrapInvalid(fmt.Errorf("unsupported legacy payload field %q", key),
				"legacyCodec", "Encode", "map payload")
		}
		s, ok := val.(string)
		if !ok {
			return nil, errors.WrapInvalid(fmt.Errorf("legacy field %q must be a string, got %T", key, val),
				"legacyCodec", "Encode", "map payload")
		}
		*dst = s
	}

	if env.Status.Present {
		var err error
		if env.Status.Text != "" {
			w.Status, err = json.Marshal(env.Status.Text)
		} else {
			w.Status, err = json.Marshal(env.Status.Code)
		}
		if err != nil {
			return nil, errors.WrapInvalid(err, "legacyCodec", "Encode", "marshal status")
		}
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.WrapInvalid(err, "legacyCodec", "Encode", "marshal envelope")
	}
	return data, nil
}

func (c *legacyCodec) Decode(data []byte) (Envelope, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, decodeErr(VariantLegacy, "malformed JSON", err)
	}

	var w legacyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, decodeErr(VariantLegacy, "unexpected field type", err)
	}
	if w.MsgID == "" {
		return Envelope{}, decodeErr(VariantLegacy, "missing msgid", nil)
	}

	status, err := parseStatus(w.Status, "")
	if err != nil {
		return Envelope{}, decodeErr(VariantLegacy, "bad status", err)
	}

	payload := make(map[string]any)
	for _, key := range legacyPhaseFields {
		if v, ok := fields[key].(string); ok && v != "" {
			payload[key] = v
		}
	}

	env := Envelope{
		CorrelationID: w.MsgID,
		Command:       w.Type,
		Payload:       payload,
		Status:        status,
		Fields:        fields,
	}
	if w.Timeout > 0 {
		env.Timeout = time.Duration(w.Timeout) * time.Millisecond
	}
	return env, nil
}
