// -----------------------------------------------------------------------
// Claude Provider - Anthropic Claude content generation
// -----------------------------------------------------------------------

package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"golang.org/x/time/rate"
)

// ClaudeProvider generates insight content using the Anthropic Claude API
type ClaudeProvider struct {
	config  *common.ClaudeConfig
	client  anthropic.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  arbor.ILogger
}

// NewClaudeProvider creates a Claude provider from configuration
func NewClaudeProvider(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude provider (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "claude-haiku-3-5-20241022"
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	provider := &ClaudeProvider{
		config:  config,
		client:  client,
		limiter: newProviderLimiter(config.RateLimit),
		timeout: providerTimeout(config.Timeout),
		logger:  logger,
	}

	logger.Debug().
		Str("model", config.Model).
		Int("max_tokens", maxTokens).
		Str("timeout", provider.timeout.String()).
		Msg("Claude provider initialized")

	return provider, nil
}

// Generate sends the prompt to Claude and returns the raw text response.
// Temperature is pinned at zero regardless of configuration so that
// validation failures can be retried against equivalent output.
func (p *ClaudeProvider) Generate(ctx context.Context, system, user string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	maxTokens := p.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(0),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("claude returned no text content")
	}

	return text.String(), nil
}

// Name returns the provider type
func (p *ClaudeProvider) Name() ProviderType {
	return ProviderClaude
}

// Model returns the configured model name
func (p *ClaudeProvider) Model() string {
	return p.config.Model
}

// Close releases provider resources
func (p *ClaudeProvider) Close() error {
	return nil
}
