package message

import (
	"encoding/json"
	"time"

	"github.com/c360/iqrfgw/errors"
)

type currentWire struct {
	MType string      `json:"mType"`
	Data  currentData `json:"data"`
}

type currentData struct {
	MsgID         string          `json:"msgId"`
	Timeout       int64           `json:"timeout,omitempty"`
	Req           map[string]any  `json:"req,omitempty"`
	Rsp           map[string]any  `json:"rsp,omitempty"`
	ReturnVerbose bool            `json:"returnVerbose"`
	Status        json.RawMessage `json:"status,omitempty"`
	StatusStr     string          `json:"statusStr,omitempty"`
}

type currentCodec struct{}

func (currentCodec) Variant() Variant { return VariantCurrent }

// Encode renders {mType, data:{msgId, timeout, req, returnVerbose, status}}. Envelopes
// with a status are rendered as responses, with the payload under rsp.
func (currentCodec) Encode(env Envelope) ([]byte, error) {
	w := currentWire{
		MType: env.Command,
		Data: currentData{
			MsgID:         env.CorrelationID,
			ReturnVerbose: env.Verbose,
		},
	}
	if env.Timeout > 0 {
		w.Data.Timeout = env.Timeout.Milliseconds()
	}

	if env.Status.Present {
		w.Data.Rsp = env.Payload
		code, err := json.Marshal(env.Status.Code)
		if err != nil {
			return nil, errors.WrapInvalid(err, "currentCodec", "Encode", "marshal status")
		}
		w.Data.Status = code
		w.Data.StatusStr = env.Status.Text
	} else {
		w.Data.Req = env.Payload
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.WrapInvalid(err, "currentCodec", "Encode", "marshal envelope")
	}
	return data, nil
}

func (currentCodec) Decode(data []byte) (Envelope, error) {
	var top map[string]any
	if err := json.Unmarshal(data, &top); err != nil {
		return Envelope{}, decodeErr(VariantCurrent, "malformed JSON", err)
	}
	body, ok := top["data"].(map[string]any)
	if !ok {
		return Envelope{}, decodeErr(VariantCurrent, "missing data object", nil)
	}

	var w currentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, decodeErr(VariantCurrent, "unexpected field type", err)
	}
	if w.Data.MsgID == "" {
		return Envelope{}, decodeErr(VariantCurrent, "missing data.msgId", nil)
	}

	status, err := parseStatus(w.Data.Status, w.Data.StatusStr)
	if err != nil {
		return Envelope{}, decodeErr(VariantCurrent, "bad status", err)
	}

	payload := w.Data.Rsp
	if payload == nil {
		payload = w.Data.Req
	}

	env := Envelope{
		CorrelationID: w.Data.MsgID,
		Command:       w.MType,
		Payload:       payload,
		Verbose:       w.Data.ReturnVerbose,
		Status:        status,
		Fields:        body,
	}
	if w.Data.Timeout > 0 {
		env.Timeout = time.Duration(w.Data.Timeout) * time.Millisecond
	}
	return env, nil
}
