package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status texts synthesized locally by the client
const (
	StatusTimeout   = "ERROR_TIMEOUT"
	StatusQueueBusy = "ERROR_QUEUE_BUSY"
	StatusTransport = "ERROR_TRANSPORT"

	// StatusNoError is the text legacy daemons send on success
	StatusNoError = "STATUS_NO_ERROR"

	errorPrefix = "ERROR_"
)

// Status is the terminal status of a response. The daemon sends either a number (0 is
// success) or a string; current daemons may add a statusStr next to a numeric status.
type Status struct {
	Code    int
	Text    string
	Present bool
}

// NewErrorStatus returns a failure status carrying one of the ERROR_* texts.
func NewErrorStatus(text string) Status {
	return Status{Code: -1, Text: text, Present: true}
}

// OK reports whether the status denotes success.
func (s Status) OK() bool {
	return s.Present && s.Code == 0 && !strings.HasPrefix(s.Text, errorPrefix)
}

func (s Status) String() string {
	switch {
	case !s.Present:
		return "none"
	case s.Text != "":
		return s.Text
	default:
		return strconv.Itoa(s.Code)
	}
}

// parseStatus decodes a raw status field plus the optional statusStr companion.
func parseStatus(raw json.RawMessage, text string) (Status, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Status{}, nil
	}

	switch raw[0] {
	case '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return Status{}, err
		}
		st := Status{Text: str, Present: true}
		if strings.HasPrefix(str, errorPrefix) {
			st.Code = -1
		}
		return st, nil
	default:
		var code json.Number
		if err := json.Unmarshal(raw, &code); err != nil {
			return Status{}, fmt.Errorf("status is neither number nor string: %s", raw)
		}
		n, err := code.Int64()
		if err != nil {
			return Status{}, fmt.Errorf("status is not an integer: %s", raw)
		}
		return Status{Code: int(n), Text: text, Present: true}, nil
	}
}
