// Package retry separates retry policy from call sites: callers hold a Policy
// and pass operations to Do. Backoff timing comes from cenkalti/backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes bounded retries with exponential backoff.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default matches the external-call policy used across the pipeline: 3
// attempts, 2s initial delay, 10s cap.
func Default() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy until it succeeds, returns a permanent error,
// the attempt budget is exhausted, or ctx is cancelled.
func Do(ctx context.Context, p Policy, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0 // bounded by attempts, not wall clock

	attempts := uint64(p.MaxAttempts)
	if attempts == 0 {
		attempts = 1
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx))
}
