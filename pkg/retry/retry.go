// Package retry runs an operation a bounded number of times with a delay
// between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(base time.Duration, attempt int) time.Duration

func Constant(base time.Duration, _ int) time.Duration { return base }

const maxDuration = time.Duration(math.MaxInt64)

func Linear(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 1 {
		return base
	}
	if base > maxDuration/time.Duration(attempt) {
		return maxDuration
	}
	return base * time.Duration(attempt)
}

// Exponential doubles base per attempt and saturates instead of overflowing.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 1 {
		return base
	}
	shift := attempt - 1
	if shift >= 63 || base > maxDuration>>shift {
		return maxDuration
	}
	return base << shift
}

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff

	// Retryable decides whether an error deserves another attempt. Nil retries
	// everything except errors marked Permanent.
	Retryable func(error) bool

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)

	Clock clock.Clock
}

// Delay is the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	b := p.Backoff
	if b == nil {
		b = Constant
	}
	d := b(p.BaseDelay, attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// Do calls fn until it succeeds, the attempts run out, the error is not
// retryable, or ctx is done. It returns the last error from fn.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || IsPermanent(err) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if wait <= 0 {
			continue
		}

		t := clk.Timer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
