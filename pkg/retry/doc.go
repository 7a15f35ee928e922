// Package retry provides exponential backoff for establishing transport connections.
//
// The request/response core never retries a request; this package is used only where a
// connection has to be established (MQTT broker, WebSocket endpoint, NATS server) and by
// callers that decide on their own to resend after a transient outcome.
//
// Presets:
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Dial(): 5 attempts, 200ms-2s delay, used by the transport dialers
//
// Mark an error with NonRetryable to stop immediately:
//
//	conn, err := retry.DoWithResult(ctx, retry.Dial(), func() (*websocket.Conn, error) {
//	    c, resp, err := dialer.DialContext(ctx, url, nil)
//	    if resp != nil && resp.StatusCode == http.StatusUnauthorized {
//	        return nil, retry.NonRetryable(err)
//	    }
//	    return c, err
//	})
package retry
