// Package correlator implements the correlated request/response exchange with the IQRF
// gateway daemon.
//
// A request is built with a fresh correlation id, encoded in the configured wire shape and
// handed to a transport. The correlator then polls the transport until an envelope carrying
// the same id arrives or the deadline passes:
//
//	client, _ := correlator.NewClient(t, codec, correlator.WithTimeout(time.Second))
//	res := client.Request(ctx, "iqrfEmbedOs_Read", map[string]any{"nAdr": 0})
//	if res.Outcome != correlator.Success { ... }
//
// Envelopes with another id and payloads that fail to decode are discarded. When verbose
// output was requested, envelopes with the right id but no terminal status (confirmation
// phases) are discarded as well. The first envelope that matches ends the wait; nothing
// else is read from the transport.
//
// Every failure is returned as a Result value. A client holds one pending request at a
// time; run several clients, each with its own transport, for concurrency.
package correlator
