// Package retry runs fallible operations under a bounded exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/desertthunder/immport/internal/shared"
)

// Policy configures retry behavior. The zero value of any field falls back to [Default].
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// MinDelay is the wait after the first failure; later waits grow by Multiplier.
	MinDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor.
	Multiplier float64
	// Retryable decides whether a failure is worth another attempt.
	Retryable func(error) bool
	// OnRetry observes each failure that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the pipeline's fixed curve: 3 attempts, waits growing from 4s up to 10s,
// every error retried.
func Default() Policy {
	return Policy{
		Attempts:   3,
		MinDelay:   4 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Retryable:  RetryAll,
		Sleep:      SleepContext,
	}
}

// RetryAll treats every error as retryable.
func RetryAll(error) bool { return true }

// TransientOnly retries network-transient and unclassified failures only.
// Auth, validation, not-found and permanent network errors fail on the first attempt.
func TransientOnly(err error) bool {
	switch shared.KindOf(err) {
	case shared.KindNetworkTransient, shared.KindInternal:
		return true
	}
	return false
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	wait := time.Duration(float64(p.MinDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if wait > p.MaxDelay || wait <= 0 {
		wait = p.MaxDelay
	}
	if wait < p.MinDelay {
		wait = p.MinDelay
	}
	return wait
}

func (p Policy) withDefaults() Policy {
	d := Default()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.MinDelay <= 0 {
		p.MinDelay = d.MinDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.Retryable == nil {
		p.Retryable = d.Retryable
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	return p
}

// Execute runs op until it succeeds, the policy is exhausted, or the error is not retryable.
//
// After the final attempt the last error is returned unmodified. If ctx ends while
// waiting between attempts, the context error is returned.
func Execute[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.Attempts || !p.Retryable(err) {
			break
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// Do is [Execute] for operations without a result.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
