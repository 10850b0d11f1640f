package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // rate-limited, use longer backoff
	Done                // terminal condition: the goal is already met, report success
)

// Policy configures Do. MaxAttempts of zero retries until the operation
// succeeds, a classifier stops it, or ctx is cancelled.
type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration
	// Multiplier scales the backoff after every wait. Zero doubles it,
	// one keeps a fixed delay.
	Multiplier float64
	MaxBackoff time.Duration
	Clock      clockwork.Clock
	OnRetry    func(attempt int, err error, backoff time.Duration)
}

// Fixed returns an unbounded policy that waits delay between attempts.
func Fixed(delay time.Duration, clock clockwork.Clock) Policy {
	return Policy{
		InitialBackoff:   delay,
		RateLimitBackoff: delay,
		Multiplier:       1,
		Clock:            clock,
	}
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}
	backoff := p.InitialBackoff

	for attempt := 1; p.MaxAttempts == 0 || attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		switch action {
		case Stop:
			var zero T
			return zero, &PermanentError{Err: err}
		case Done:
			return val, nil
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		wait := backoff
		if action == After {
			wait = p.RateLimitBackoff
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-clock.After(wait):
			backoff = time.Duration(float64(backoff) * multiplier)
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 0")
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
