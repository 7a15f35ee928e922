// Package natsclient manages a NATS connection for the NATS transport binding: connection
// lifecycle tracking, a circuit breaker on connect failures, plain publish/subscribe and a
// bounded drain on close.
//
// The circuit breaker opens after a threshold of consecutive connect failures (default 5).
// While open, Connect fails fast with ErrCircuitOpen. After the current backoff elapses the
// circuit moves back to disconnected and the next Connect is attempted normally. Each time
// the circuit opens the backoff doubles, up to WithMaxBackoff.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("iqrfgw"),
//	    natsclient.WithLogger(natsclient.SlogLogger(logger)),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Subscribe("iqrf.gateway.response", func(data []byte) {
//	    inbox.Push(data)
//	})
//
// Lifecycle transitions are Disconnected, Connecting, Connected, Reconnecting and back;
// the nats.go library performs the reconnects and this package only observes them.
package natsclient
