// Package retry provides the backoff policy for queued operations.
//
// The queue processor does not sleep between attempts. Each failure stamps
// the record with the moment it becomes eligible again, and the periodic
// scan re-evaluates eligibility. The policy here only answers "how long
// until the next attempt" and "are retries exhausted".
package retry

import (
	"math"
	"time"
)

// Policy configures the retry behavior for queued operations.
type Policy struct {
	MaxRetries int           // attempts beyond the first before failed_permanent
	BaseDelay  time.Duration // delay after the first failure
	MaxDelay   time.Duration // ceiling for the computed delay
	Multiplier float64       // growth factor per failed attempt
}

// DefaultPolicy returns the default retry policy.
// Pattern: 30s, 1m, 2m, 4m, 8m, capped at 30m.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  30 * time.Second,
		MaxDelay:   30 * time.Minute,
		Multiplier: 2.0,
	}
}

// Delay returns the backoff delay after the given number of failed attempts.
// retryCount is the count after the failure being scheduled, so the first
// failure (retryCount=1) waits BaseDelay.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryCount-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	return time.Duration(delay)
}

// NextEligibleAt returns the earliest moment the processor may attempt the
// operation again.
func (p Policy) NextEligibleAt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}

// Exhausted reports whether the given retry count has used up the budget.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount > p.MaxRetries
}
