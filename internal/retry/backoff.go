package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
// Delays never decrease as attempt grows.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed)
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number
type Constant struct {
	Interval time.Duration
}

// Delay returns the fixed interval
func (c Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear increases the delay linearly: min(Initial * attempt, Max)
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns Initial * attempt, capped at Max
func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if l.Initial > 0 && time.Duration(attempt) > time.Duration(math.MaxInt64)/l.Initial {
		if l.Max > 0 {
			return l.Max
		}
		return time.Duration(math.MaxInt64)
	}

	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Exponential multiplies the delay each attempt: min(Initial * Multiplier^(attempt-1), Max)
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the exponential delay for attempt, capped at Max
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := e.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(e.Initial) * math.Pow(mult, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// DefaultStrategy returns exponential backoff starting at 1s and capped at 1m
func DefaultStrategy() Strategy {
	return Exponential{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// NewStrategy builds a strategy by name: constant, linear or exponential
func NewStrategy(name string, initial, maxDelay time.Duration, multiplier float64) (Strategy, error) {
	switch name {
	case "constant":
		return Constant{Interval: initial}, nil
	case "linear":
		return Linear{Initial: initial, Max: maxDelay}, nil
	case "exponential", "":
		return Exponential{Initial: initial, Max: maxDelay, Multiplier: multiplier}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}
