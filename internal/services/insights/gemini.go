// -----------------------------------------------------------------------
// Gemini Provider - Google Gemini content generation
// -----------------------------------------------------------------------

package insights

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiProvider generates insight content using the Google Gemini API
type GeminiProvider struct {
	config  *common.GeminiConfig
	client  *genai.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider from configuration
func NewGeminiProvider(ctx context.Context, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for Gemini provider (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "gemini-3-flash-preview"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	provider := &GeminiProvider{
		config:  config,
		client:  client,
		limiter: newProviderLimiter(config.RateLimit),
		timeout: providerTimeout(config.Timeout),
		logger:  logger,
	}

	logger.Debug().
		Str("model", config.Model).
		Str("timeout", provider.timeout.String()).
		Msg("Gemini provider initialized")

	return provider, nil
}

// Generate sends the prompt to Gemini and returns the raw text response.
// Temperature is pinned at zero regardless of configuration.
func (p *GeminiProvider) Generate(ctx context.Context, system, user string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}
	if p.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.config.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	// Iterate candidates until one yields non-empty text
	var text strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text content")
	}

	return text.String(), nil
}

// Name returns the provider type
func (p *GeminiProvider) Name() ProviderType {
	return ProviderGemini
}

// Model returns the configured model name
func (p *GeminiProvider) Model() string {
	return p.config.Model
}

// Close releases provider resources
func (p *GeminiProvider) Close() error {
	return nil
}
