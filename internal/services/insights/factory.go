package insights

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
)

// NewProvider creates the configured insight provider
func NewProvider(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (Provider, error) {
	switch ProviderType(cfg.Insights.DefaultProvider) {
	case ProviderClaude:
		return NewClaudeProvider(&cfg.Claude, logger)
	case ProviderGemini:
		return NewGeminiProvider(ctx, &cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported insight provider: %s", cfg.Insights.DefaultProvider)
	}
}
