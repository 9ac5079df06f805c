// -----------------------------------------------------------------------
// Provider - provider-agnostic content generation interface
// -----------------------------------------------------------------------

package insights

import (
	"context"
	"time"

	"github.com/ternarybob/datapilot/internal/common"
	"golang.org/x/time/rate"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// Provider defines the interface for insight content generation.
// Implementations must call the model at temperature zero so that a
// given prompt produces stable output across retries.
type Provider interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Name() ProviderType
	Model() string
	Close() error
}

// newProviderLimiter builds the per-provider request limiter from the
// configured minimum interval between requests, so a burst of queued
// jobs cannot trip upstream quotas. An empty or unparseable interval
// falls back to two requests per second.
func newProviderLimiter(rateLimit string) *rate.Limiter {
	interval := common.ParseDurationOr(rateLimit, 500*time.Millisecond)
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// providerTimeout resolves the configured per-call timeout
func providerTimeout(timeout string) time.Duration {
	d := common.ParseDurationOr(timeout, 2*time.Minute)
	if d <= 0 {
		d = 2 * time.Minute
	}
	return d
}
