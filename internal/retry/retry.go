// Package retry runs one idempotent upstream call with bounded attempts and
// exponential backoff plus jitter.
//
// Only failures whose error chain exposes an HTTP status of 429 or 5xx are
// retried. Everything else, including errors with no status at all, is
// returned after the first attempt. Delays are computed by Policy and slept
// through an injectable Sleeper so tests never wait on a real clock.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 400 * time.Millisecond
	DefaultMaxDelay    = 4 * time.Second
	DefaultJitter      = 200 * time.Millisecond
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// JitterSource returns a uniform random duration in [0, max).
type JitterSource func(max time.Duration) time.Duration

// RetryHook observes a failed attempt that is about to be retried.
type RetryHook func(attempt int, delay time.Duration, err error)

// Policy configures the invoker. The zero value makes a single attempt with
// no delay; use DefaultPolicy for the standard schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration

	Sleep   Sleeper
	Rand    JitterSource
	OnRetry RetryHook
}

// DefaultPolicy returns 4 attempts, 400ms base, 4s cap, 200ms jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// WithSleeper returns a copy of the policy using sleeper
func (p Policy) WithSleeper(sleeper Sleeper) Policy {
	p.Sleep = sleeper
	return p
}

// WithJitterSource returns a copy of the policy using source
func (p Policy) WithJitterSource(source JitterSource) Policy {
	p.Rand = source
	return p
}

// WithRetryHook returns a copy of the policy calling hook before each retry
func (p Policy) WithRetryHook(hook RetryHook) Policy {
	p.OnRetry = hook
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff is the jitter-free delay after failed attempt n (1-based):
// min(MaxDelay, BaseDelay * 2^(n-1)).
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			delay = p.MaxDelay
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Delay is Backoff(attempt) plus uniform jitter in [0, Jitter).
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.Backoff(attempt)
	if p.Jitter > 0 {
		source := p.Rand
		if source == nil {
			source = uniformJitter
		}
		if j := source(p.Jitter); j > 0 {
			delay += j
		}
	}
	return delay
}

// Retryable reports whether err is a transient upstream failure: HTTP 429 or
// any 5xx found on the error chain.
func Retryable(err error) bool {
	status, ok := Status(err)
	if !ok {
		return false
	}
	return status == http.StatusTooManyRequests ||
		(status >= http.StatusInternalServerError && status < 600)
}

// Status extracts the upstream HTTP status from the error chain
func Status(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

// Do invokes op at most MaxAttempts times. It returns the first success, the
// first non-retryable failure, or the last failure once attempts run out.
// Each attempt is a fresh call; nothing is carried between attempts.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.attempts()
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts || !Retryable(err) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			// Cancelled while waiting: surface the upstream failure, not the ctx error.
			break
		}
	}
	return zero, lastErr
}

// SleepContext blocks on a timer, returning early with ctx's error.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
