// Package retry provides the fixed-delay retry policy shared by the
// authentication subsystem and the request pipeline that depends on it.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxAttempts is the number of attempts made by DefaultPolicy.
	DefaultMaxAttempts = 3

	// DefaultDelay is the pause between attempts made by DefaultPolicy.
	DefaultDelay = time.Second
)

// Policy retries an operation a bounded number of times with a fixed delay.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Delay is the pause between two attempts.
	Delay time.Duration

	// Name identifies the operation in log records.
	Name string
}

// DefaultPolicy returns a policy of three attempts one second apart.
func DefaultPolicy(name string) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Name:        name,
	}
}

// Operation is a single attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned on failure.
func Do[T any](ctx context.Context, p Policy, op Operation[T]) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		result, err := op(ctx, attempt)
		if err != nil {
			var permanent *backoff.PermanentError
			if !errors.As(err, &permanent) && ctx.Err() != nil {
				return result, backoff.Permanent(err)
			}
		}
		return result, err
	}

	notify := func(err error, next time.Duration) {
		slog.Debug("Retrying operation",
			"operation", p.Name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retry_in", next.String(),
			"error", err.Error(),
		)
	}

	result, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		slog.Debug("Operation failed",
			"operation", p.Name,
			"attempts", attempt,
			"error", err.Error(),
		)
	}
	return result, err
}
