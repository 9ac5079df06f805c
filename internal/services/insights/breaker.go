// -----------------------------------------------------------------------
// Circuit Breaker - process-wide failure gate for the insight provider
// -----------------------------------------------------------------------

package insights

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// BreakerConfig tunes the failure window
type BreakerConfig struct {
	Threshold int           // Failures within Window that open the breaker
	Window    time.Duration // Trailing window failures are counted in
	Cooldown  time.Duration // Open duration before calls are attempted again
}

// DefaultBreakerConfig matches the production tuning: 5 failures in
// 5 minutes opens the breaker for 10 minutes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Window:    300 * time.Second,
		Cooldown:  600 * time.Second,
	}
}

// Breaker tracks provider failures across all workers in the process.
// It is the only shared mutable state in the pipeline besides the job
// registry, so every access is serialized behind one mutex. Constructed
// once and injected, never ambient.
type Breaker struct {
	mu       sync.Mutex
	config   BreakerConfig
	failures []time.Time
	openedAt *time.Time
	logger   arbor.ILogger

	// now is injectable for deterministic tests
	now func() time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(config BreakerConfig, logger arbor.ILogger) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Window <= 0 {
		config.Window = 300 * time.Second
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 600 * time.Second
	}
	return &Breaker{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the breaker's clock. Test use only.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// Allow reports whether a call may proceed. An open breaker closes
// automatically once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt == nil {
		return true
	}
	if b.now().Sub(*b.openedAt) >= b.config.Cooldown {
		// Cooldown elapsed: close and forget the old window
		b.openedAt = nil
		b.failures = nil
		b.logger.Info().Msg("Circuit breaker cooldown elapsed, closing")
		return true
	}
	return false
}

// RecordSuccess clears the failure window
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = nil
}

// RecordFailure counts one failure; reaching the threshold within the
// window opens the breaker. Failures recorded while open do not extend
// the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt != nil {
		return
	}

	now := b.now()
	cutoff := now.Add(-b.config.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.config.Threshold {
		b.openedAt = &now
		b.failures = nil
		b.logger.Warn().
			Int("threshold", b.config.Threshold).
			Dur("cooldown", b.config.Cooldown).
			Msg("Circuit breaker opened")
	}
}

// IsOpen reports the current state without side effects
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt == nil {
		return false
	}
	return b.now().Sub(*b.openedAt) < b.config.Cooldown
}
