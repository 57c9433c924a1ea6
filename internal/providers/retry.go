package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy controls how transient provider failures are retried.
// Safety blocks and fatal errors are never retried here; callers handle
// those at a higher level.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

// DefaultRetryPolicy matches the backoff used for upstream API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 2 * time.Second}
}

// WithRetry runs fn under the policy, retrying only transient errors
// with exponential backoff. The last error is returned unwrapped by
// the retry layer.
func WithRetry(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		fn,
		retry.Attempts(attempts),
		retry.Delay(policy.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("retrying provider call",
				"operation", op,
				"attempt", n+1,
				"error", err)
		}),
	)
}
