package dpa

import (
	"fmt"

	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/message"
)

// Response is a DPA response packet.
type Response struct {
	NAdr     uint16
	PNum     uint8
	PCmd     uint8
	HWPID    uint16
	RCode    uint8
	DpaValue uint8
	PData    []byte
}

// OK reports a zero response code.
func (r Response) OK() bool { return r.RCode == 0 }

// String renders the packet in dotted hex.
func (r Response) String() string {
	b := []byte{byte(r.NAdr), byte(r.NAdr >> 8), r.PNum, r.PCmd, byte(r.HWPID), byte(r.HWPID >> 8), r.RCode, r.DpaValue}
	return FormatBytes(append(b, r.PData...))
}

// ParseResponse parses a dotted hex response packet.
func ParseResponse(s string) (Response, error) {
	b, err := ParseBytes(s)
	if err != nil {
		return Response{}, err
	}
	if len(b) < ResponseHeaderLen {
		return Response{}, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes, need %d", errors.ErrFrameTooShort, len(b), ResponseHeaderLen),
			"dpa", "ParseResponse", "header check")
	}

	r := Response{
		NAdr:     uint16(b[0]) | uint16(b[1])<<8,
		PNum:     b[2],
		PCmd:     b[3],
		HWPID:    uint16(b[4]) | uint16(b[5])<<8,
		RCode:    b[6],
		DpaValue: b[7],
	}
	if len(b) > ResponseHeaderLen {
		r.PData = b[ResponseHeaderLen:]
	}
	return r, nil
}

// ResponseFrom extracts the DPA response from a decoded envelope. It reads the "response"
// string of raw and legacy replies, or the split header fields of raw HDP replies.
func ResponseFrom(env message.Envelope) (Response, error) {
	if s := env.String("response"); s != "" {
		return ParseResponse(s)
	}

	p := env.Payload
	nadr, okN := number(p["nAdr"])
	pnum, okP := number(p["pNum"])
	pcmd, okC := number(p["pCmd"])
	if !okN || !okP || !okC {
		return Response{}, errors.WrapInvalid(fmt.Errorf("%w: no response packet in %q reply", errors.ErrInvalidData, env.Command),
			"dpa", "ResponseFrom", "payload lookup")
	}

	hwpid, _ := number(p["hwpId"])
	rcode, _ := number(p["rCode"])
	dpaVal, _ := number(p["dpaVal"])
	r := Response{
		NAdr:     uint16(nadr),
		PNum:     uint8(pnum),
		PCmd:     uint8(pcmd),
		HWPID:    uint16(hwpid),
		RCode:    uint8(rcode),
		DpaValue: uint8(dpaVal),
	}
	if s, ok := p["rData"].(string); ok && s != "" {
		data, err := ParseBytes(s)
		if err != nil {
			return Response{}, err
		}
		r.PData = data
	}
	return r, nil
}

// number accepts the float64 produced by encoding/json as well as Go integers.
func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	}
	return 0, false
}
