package dpa

import (
	"time"

	"github.com/c360/iqrfgw/message"
	"github.com/c360/iqrfgw/pkg/timestamp"
)

// Transaction is one DPA exchange as reported by the daemon: the packets of each phase in
// dotted hex and their timestamps in Unix milliseconds. A phase that did not happen has
// an empty packet and a zero timestamp.
type Transaction struct {
	Request        string `json:"request"`
	RequestTs      int64  `json:"request_ts,omitempty"`
	Confirmation   string `json:"confirmation,omitempty"`
	ConfirmationTs int64  `json:"confirmation_ts,omitempty"`
	Response       string `json:"response,omitempty"`
	ResponseTs     int64  `json:"response_ts,omitempty"`
}

// ConfirmationDelay is the time from request to coordinator confirmation.
func (t Transaction) ConfirmationDelay() time.Duration {
	return timestamp.Between(t.RequestTs, t.ConfirmationTs)
}

// ResponseDelay is the time from request to the node's response.
func (t Transaction) ResponseDelay() time.Duration {
	return timestamp.Between(t.RequestTs, t.ResponseTs)
}

// TransactionsFrom extracts the transactions of a response. The current shape lists them
// under data.raw when verbose output was requested; the legacy shape carries the single
// transaction in its phase fields.
func TransactionsFrom(env message.Envelope) []Transaction {
	if raw, ok := env.Fields["raw"].([]any); ok {
		txs := make([]Transaction, 0, len(raw))
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				txs = append(txs, transactionFrom(m, "requestTs", "confirmationTs", "responseTs"))
			}
		}
		return txs
	}

	if _, legacy := env.Fields["msgid"]; !legacy {
		return nil
	}
	if _, ok := env.Payload["request"]; !ok {
		return nil
	}
	return []Transaction{transactionFrom(env.Payload, "request_ts", "confirmation_ts", "response_ts")}
}

func transactionFrom(m map[string]any, requestTs, confirmationTs, responseTs string) Transaction {
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	return Transaction{
		Request:        str("request"),
		RequestTs:      timestamp.Parse(m[requestTs]),
		Confirmation:   str("confirmation"),
		ConfirmationTs: timestamp.Parse(m[confirmationTs]),
		Response:       str("response"),
		ResponseTs:     timestamp.Parse(m[responseTs]),
	}
}
