// Package message defines the envelope exchanged with the IQRF Gateway Daemon and the two
// wire shapes the daemon has spoken over its lifetime.
//
// # Envelope
//
// Envelope is the protocol-neutral unit: a correlation id, a command name, a payload of
// command arguments, the verbose flag and, on responses, a terminal Status. The Codec for
// the configured Variant maps it onto bytes.
//
// # Variants
//
// The legacy shape (older daemons, MQTT "Iqrf/DpaRequest" topic):
//
//	{"ctype":"dpa","type":"raw","msgid":"1","timeout":1000,
//	 "request":"01.00.06.03.ff.ff","request_ts":"",
//	 "confirmation":"","confirmation_ts":"","response":"","response_ts":"",
//	 "status":"STATUS_NO_ERROR"}
//
// The current shape (JSON API, all transports):
//
//	{"mType":"iqrfRaw","data":{"msgId":"a1","timeout":1000,
//	 "req":{"rData":"01.00.06.03.ff.ff"},"returnVerbose":true,"status":0}}
//
// The variant is always chosen by configuration. A Codec never guesses the shape of an
// inbound payload; a payload in the other shape fails to decode and is treated like any
// other unrelated traffic.
//
// # Status
//
// A numeric status of 0 is success. A string status prefixed with ERROR_ is a failure.
// The client synthesizes ERROR_TIMEOUT and ERROR_QUEUE_BUSY locally; the daemon never
// sends them.
package message
