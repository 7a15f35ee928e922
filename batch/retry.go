package batch

import (
	"context"
	"log/slog"

	"github.com/c360/iqrfgw/correlator"
	"github.com/c360/iqrfgw/errors"
	"github.com/c360/iqrfgw/pkg/retry"
)

// Attempt sends job on c and resends it while policy allows, backing off between sends.
// Each resend is a new request with a fresh correlation id. A nil policy sends once. The
// result of the last send is returned with the number of sends made.
func Attempt(ctx context.Context, c *correlator.Client, job Job, policy *errors.RetryConfig, logger *slog.Logger) (correlator.Result, int) {
	if policy == nil || policy.MaxRetries <= 0 {
		return c.Request(ctx, job.Command, job.Payload, job.Options...), 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	var res correlator.Result
	attempts := 0
	_ = retry.Do(ctx, policy.ToRetryConfig(), func() error {
		res = c.Request(ctx, job.Command, job.Payload, job.Options...)
		attempts++

		err := res.AsError()
		if err == nil {
			return nil
		}
		if !policy.ShouldRetry(err, attempts-1) {
			return retry.NonRetryable(err)
		}
		logger.Debug("Resending request",
			"label", job.Label, "command", job.Command, "outcome", res.Outcome.String(),
			"attempt", attempts, "class", errors.Classify(err).String())
		return err
	})
	return res, attempts
}
