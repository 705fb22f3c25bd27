// Package retry provides the exponential backoff policy shared by every
// connection manager in the service.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy describes a bounded exponential backoff.
//
// The wait before attempt n (1-based, n > 1) is
// min(InitialDelay * Multiplier^(n-2), MaxDelay). With the defaults
// (3 attempts, 2s, x2) the schedule is: try, wait 2s, try, wait 4s, try.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:     3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Delay returns the wait that precedes the given retry (1 = first retry).
func (p Policy) Delay(retry int) time.Duration {
	if retry <= 1 {
		return p.capped(float64(p.InitialDelay))
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	return p.capped(float64(p.InitialDelay) * math.Pow(mult, float64(retry-1)))
}

func (p Policy) capped(d float64) time.Duration {
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Schedule lists the waits between attempts, for logs.
func (p Policy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.Attempts)
	for i := 1; i < p.Attempts; i++ {
		out = append(out, p.Delay(i))
	}
	return out
}

// ExhaustedError is returned by Do once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs fn until it succeeds, the attempts are exhausted or ctx ends.
// fn receives the 1-based attempt number.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("retry interrupted: %w", ctx.Err())
			case <-t.C:
			}
		}

		if last = fn(attempt); last == nil {
			return nil
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}
