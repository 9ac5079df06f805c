// -----------------------------------------------------------------------
// Backoff Policy - pure delay computation with jitter
// -----------------------------------------------------------------------

package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy computes retry delays. The zero value is not usable; use one of
// the constructors so callers share the same tuning.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	MaxAttempts  int

	// rand returns a value in [0, 1). Injectable for deterministic tests.
	rand func() float64
}

// StoragePolicy is the tuning for storage reads and writes
func StoragePolicy() Policy {
	return Policy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		MaxAttempts:  3,
		rand:         rand.Float64,
	}
}

// InsightPolicy is the tuning for remote insight-service calls
func InsightPolicy() Policy {
	return Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2.0,
		MaxAttempts:  2,
		rand:         rand.Float64,
	}
}

// WithRand returns a copy of the policy using the given random source
func (p Policy) WithRand(r func() float64) Policy {
	p.rand = r
	return p
}

// Delay returns the wait before the given attempt (1-based):
// min(max_delay, initial * factor^(attempt-1)), jittered by uniform(0.9, 1.1)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if max := float64(p.MaxDelay); base > max {
		base = max
	}
	r := rand.Float64
	if p.rand != nil {
		r = p.rand
	}
	jitter := 0.9 + 0.2*r()
	return time.Duration(base * jitter)
}
