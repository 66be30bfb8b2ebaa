package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Options configures a retry loop. Zero values fall back to the defaults
// used by DefaultOptions.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		Exponential: true,
	}
}

// Do runs op until it succeeds or MaxAttempts is exhausted, sleeping
// between attempts according to the configured backoff. Call sites opt in
// explicitly; nothing in the pipeline wraps agent calls automatically.
func Do[T any](ctx context.Context, opts Options, op func() (T, error)) (T, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}

	var policy backoff.BackOff
	if opts.Exponential {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = opts.BaseDelay
		exp.MaxInterval = opts.MaxDelay
		policy = exp
	} else {
		policy = backoff.NewConstantBackOff(opts.BaseDelay)
	}

	return backoff.Retry(ctx, backoff.Operation[T](op),
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(opts.MaxAttempts)),
	)
}
