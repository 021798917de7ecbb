// Package retry decides whether a failed translation attempt is retried or recorded
// as a terminal failure. Decisions are pure functions of the attempt counters carried
// in the queue message.
package retry

import (
	"time"

	"github.com/cuongbtq/translation-dispatch/internal/domain"
)

// Decision is the outcome of a failed attempt
type Decision struct {
	// Retry is false when the job must be marked failed
	Retry bool
	// Delay before the next attempt is delivered
	Delay time.Duration
}

// Policy decides retry versus terminal failure
type Policy struct {
	Backoff Strategy
}

// NewPolicy creates a policy, falling back to DefaultStrategy when backoff is nil
func NewPolicy(backoff Strategy) Policy {
	if backoff == nil {
		backoff = DefaultStrategy()
	}
	return Policy{Backoff: backoff}
}

// Decide returns the decision after attempts failed attempts out of maxAttempts
func (p Policy) Decide(attempts, maxAttempts int) Decision {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	if attempts >= maxAttempts {
		return Decision{Retry: false}
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultStrategy()
	}

	return Decision{
		Retry: true,
		Delay: backoff.Delay(attempts),
	}
}
