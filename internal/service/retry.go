package service

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// WithRetry runs op up to attempts times with a constant backoff between
// tries. Every error is treated as retryable; the operations wrapped here
// (store writes, store reads during recovery) are short and idempotent.
// Returns the last error when all attempts fail.
func WithRetry(
	ctx context.Context,
	attempts int,
	backoff time.Duration,
	op func(ctx context.Context) error,
) error {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
