// Package errors provides standardized error handling for iqrfgw.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid (bad input,
// do not retry) and Fatal (stop processing). Request outcomes map onto the sentinels
// defined here:
//
//   - ErrTimeout: no correlated response before the deadline (transient)
//   - ErrTransportBusy: outbound capacity exhausted, the send was rejected (transient)
//   - ErrTransportClosed: the channel is gone (fatal)
//   - ErrDecode: a payload could not be parsed as an envelope (invalid)
//
// # Wrapping
//
// Wrap errors with component context so logs read "component.method: action failed: cause":
//
//	if err := q.send(data); err != nil {
//	    return errors.WrapTransient(errors.ErrTransportBusy, "posixmq", "Send", "mq_timedsend")
//	}
//
// The classification survives wrapping, so callers use errors.Is against the sentinels and
// IsTransient/IsFatal/IsInvalid for policy decisions.
//
// # Retry
//
// The request core never retries. RetryConfig lets a caller decide whether to resend, and
// ToRetryConfig converts it for use with pkg/retry.
package errors
