package dpa

import (
	"fmt"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
)

// Raw request commands
const (
	CommandRaw       = "iqrfRaw"
	CommandRawHdp    = "iqrfRawHdp"
	CommandLegacyRaw = "raw"
)

// RawRequest returns the command and payload that send f unchanged in variant v: iqrfRaw
// with req.request in the current shape, type raw with request in the legacy one.
func RawRequest(v message.Variant, f Frame) (string, map[string]any) {
	payload := map[string]any{"request": f.String()}
	if v == message.VariantLegacy {
		return CommandLegacyRaw, payload
	}
	return CommandRaw, payload
}

// RawHdpRequest returns the iqrfRawHdp command with the header split into fields. Only the
// current shape has it.
func RawHdpRequest(v message.Variant, f Frame) (string, map[string]any, error) {
	if v != message.VariantCurrent {
		return "", nil, errors.WrapInvalid(fmt.Errorf("%s is not available in the %s shape", CommandRawHdp, v),
			"dpa", "RawHdpRequest", "variant check")
	}
	return CommandRawHdp, map[string]any{
		"nAdr":  int(f.NAdr),
		"pNum":  int(f.PNum),
		"pCmd":  int(f.PCmd),
		"hwpId": int(f.HWPID),
		"rData": FormatBytes(f.PData),
	}, nil
}
