// Package dpa encodes DPA packets in the daemon's textual byte notation, lowercase hex
// bytes separated by dots ("01.00.06.03.ff.ff"), and builds raw requests from them.
package dpa

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/iqrfgw/errors"
)

// Packet layout
const (
	HeaderLen         = 6  // NADR(2) PNUM PCMD HWPID(2)
	ResponseHeaderLen = 8  // header, ResponseCode, DpaValue
	MaxPacketLen      = 64 // DPA_MAX_DATA_LENGTH plus header
)

// HWPIDAny matches any hardware profile.
const HWPIDAny uint16 = 0xFFFF

// Peripherals and commands used by the LED helpers
const (
	PNumLEDR    uint8 = 0x06
	PNumLEDG    uint8 = 0x07
	CmdLEDPulse uint8 = 0x03
)

// Frame is a DPA request packet.
type Frame struct {
	NAdr  uint16
	PNum  uint8
	PCmd  uint8
	HWPID uint16
	PData []byte
}

// PulseLEDR returns a red LED pulse request for node nadr.
func PulseLEDR(nadr uint16) Frame {
	return Frame{NAdr: nadr, PNum: PNumLEDR, PCmd: CmdLEDPulse, HWPID: HWPIDAny}
}

// PulseLEDG returns a green LED pulse request for node nadr.
func PulseLEDG(nadr uint16) Frame {
	return Frame{NAdr: nadr, PNum: PNumLEDG, PCmd: CmdLEDPulse, HWPID: HWPIDAny}
}

// Bytes returns the packet with little-endian address and HWPID.
func (f Frame) Bytes() []byte {
	b := make([]byte, 0, HeaderLen+len(f.PData))
	b = append(b, byte(f.NAdr), byte(f.NAdr>>8), f.PNum, f.PCmd, byte(f.HWPID), byte(f.HWPID>>8))
	return append(b, f.PData...)
}

// String renders the packet in dotted hex.
func (f Frame) String() string {
	return FormatBytes(f.Bytes())
}

// ParseFrame parses a dotted or space separated hex packet.
func ParseFrame(s string) (Frame, error) {
	b, err := ParseBytes(s)
	if err != nil {
		return Frame{}, err
	}
	if len(b) < HeaderLen {
		return Frame{}, errors.WrapInvalid(fmt.Errorf("%w: %d bytes, need %d", errors.ErrFrameTooShort, len(b), HeaderLen),
			"dpa", "ParseFrame", "header check")
	}

	f := Frame{
		NAdr:  uint16(b[0]) | uint16(b[1])<<8,
		PNum:  b[2],
		PCmd:  b[3],
		HWPID: uint16(b[4]) | uint16(b[5])<<8,
	}
	if len(b) > HeaderLen {
		f.PData = b[HeaderLen:]
	}
	return f, nil
}

// FormatBytes renders b as lowercase hex bytes joined by dots.
func FormatBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(hex.EncodeToString([]byte{c}))
	}
	return sb.String()
}

// ParseBytes parses hex bytes separated by dots or whitespace, in either case. An empty
// string yields no bytes. At most MaxPacketLen bytes are accepted.
func ParseBytes(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == ' ' || r == '\t'
	})
	if len(fields) > MaxPacketLen {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrInvalidData, len(fields), MaxPacketLen),
			"dpa", "ParseBytes", "length check")
	}

	out := make([]byte, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: byte %q: %w", errors.ErrParsingFailed, field, err),
				"dpa", "ParseBytes", "hex decode")
		}
		out = append(out, byte(v))
	}
	return out, nil
}
