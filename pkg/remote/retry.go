package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds invoke retries: MaxAttempts calls in total with a
// fixed Delay between them.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is three attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

func (p RetryPolicy) attempts() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// Retry runs op until it succeeds, returns a permanent error (see
// backoff.Permanent) or the policy is exhausted. Exhaustion returns the
// last attempt's error. notify, if set, is called before each wait.
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error), notify func(err error, next time.Duration)) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(p.attempts()),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return backoff.Retry[T](ctx, op, opts...)
}
