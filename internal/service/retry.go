package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

// RetryPolicy bounds how often a contended engine operation is re-attempted.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NoRetry runs every operation exactly once.
var NoRetry = RetryPolicy{Attempts: 1}

// retryContention runs fn, retrying with exponential backoff only while it
// fails with a retryable error. Other errors and successes return at once.
func retryContention[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, op string, fn func() (T, error)) (T, error) {
	if policy.Attempts <= 1 {
		return fn()
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	operation := func() (T, error) {
		result, err := fn()
		if err != nil && !appErrors.IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retrying contended operation", zap.String("operation", op), zap.Duration("backoff", next), zap.Error(err))
		}),
	)
}
