package services

import (
	"context"
	"time"
)

// RetryPolicy bounds the short call-scoped retry loop used by the external
// service clients. This is distinct from job-level retries: it only smooths
// over momentary transport hiccups within a single stage execution.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy retries twice with a short pause.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 2 * time.Second}

// Retry invokes fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. The last error is returned unwrapped so the
// caller's classification still applies.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Delay):
		}
	}
	return err
}
