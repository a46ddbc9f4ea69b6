package platform

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Sleeper waits for a delay, honoring context cancellation. Injected so
// tests run retries without real sleeping.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper is the production sleeper.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy decides how many attempts a platform call gets and how long
// to wait between them, per error kind. Backoff schedules are fresh per
// call so concurrent calls do not share state.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first call.
	MaxAttempts int
	// NetworkBackoff builds the schedule for transient network failures.
	NetworkBackoff func() retry.Backoff
	// RateLimitBackoff builds the schedule for 429 responses.
	RateLimitBackoff func() retry.Backoff
	// Sleep waits between attempts.
	Sleep Sleeper
}

// DefaultRetryPolicy returns the production policy: network errors back off
// linearly in 200ms increments capped at 1s; rate limits back off
// exponentially from 500ms capped at 2s per attempt.
func DefaultRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &RetryPolicy{
		MaxAttempts:      maxAttempts,
		NetworkBackoff:   func() retry.Backoff { return retry.WithCappedDuration(time.Second, linearBackoff(200*time.Millisecond)) },
		RateLimitBackoff: func() retry.Backoff { return retry.WithCappedDuration(2*time.Second, retry.NewExponential(500*time.Millisecond)) },
		Sleep:            ContextSleeper,
	}
}

// linearBackoff grows by step each attempt: step, 2*step, 3*step, ...
func linearBackoff(step time.Duration) retry.Backoff {
	var attempt int
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * step, false
	})
}

// delayFor picks the next delay for a classified error, or false when the
// error kind is not retryable.
func delayFor(err *Error, network, rateLimit retry.Backoff) (time.Duration, bool) {
	switch err.Kind {
	case KindNetworkTransient:
		d, stop := network.Next()
		return d, !stop
	case KindRateLimited:
		d, stop := rateLimit.Next()
		if stop {
			return 0, false
		}
		// The platform may name its own delay; honor it up to the cap.
		if err.RetryAfter > 0 && err.RetryAfter < 2*time.Second {
			d = err.RetryAfter
		}
		return d, true
	default:
		return 0, false
	}
}

// Execute runs op with the policy's attempt budget. op returns a classified
// *Error (or nil); unclassified errors abort immediately.
func (p *RetryPolicy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	network := p.NetworkBackoff()
	rateLimit := p.RateLimitBackoff()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		pe, ok := AsError(lastErr)
		if !ok || !pe.Retryable() || attempt == p.MaxAttempts {
			return lastErr
		}

		delay, retryable := delayFor(pe, network, rateLimit)
		if !retryable {
			return lastErr
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}
