// -----------------------------------------------------------------------
// Insight Service - provider call, validation, repair, fallback pipeline
// -----------------------------------------------------------------------

package insights

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/ternarybob/datapilot/internal/retry"
	"google.golang.org/genai"
)

// Service turns a structural summary into a validated insight report.
// Every path through the pipeline produces a report: provider output
// when it validates, repaired output after one correction round, or
// deterministic fallback insights when the provider cannot deliver.
type Service struct {
	provider  Provider
	breaker   *Breaker
	validator *Validator
	fallback  *FallbackGenerator
	prompts   *PromptBuilder
	audit     *AuditLogger
	policy    retry.Policy
	logger    arbor.ILogger
}

// NewService assembles the insight pipeline
func NewService(provider Provider, breaker *Breaker, prompts *PromptBuilder, audit *AuditLogger, logger arbor.ILogger) *Service {
	return &Service{
		provider:  provider,
		breaker:   breaker,
		validator: NewValidator(),
		fallback:  NewFallbackGenerator(logger),
		prompts:   prompts,
		audit:     audit,
		policy:    retry.InsightPolicy(),
		logger:    logger,
	}
}

// Generate produces the insight report for a summarized dataset. The
// returned error is non-nil only for context cancellation or deadline
// expiry: all provider-side failures resolve to the fallback report.
func (s *Service) Generate(ctx context.Context, fileName string, summary *models.DatasetSummary) (*models.InsightReport, error) {
	prompt := s.prompts.Build(fileName, summary)

	if !s.breaker.Allow() {
		s.logger.Warn().
			Str("provider", string(s.provider.Name())).
			Msg("Circuit breaker open, skipping provider call")
		return s.fallbackReport(summary, prompt.Hash, "insight provider temporarily disabled by circuit breaker"), nil
	}

	raw, err := s.callProvider(ctx, "generate", prompt.System, prompt.User, prompt.Hash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.breaker.RecordFailure()
		s.logger.Warn().
			Err(err).
			Str("provider", string(s.provider.Name())).
			Msg("Provider call failed, using fallback insights")
		return s.fallbackReport(summary, prompt.Hash, "insight provider call failed: "+err.Error()), nil
	}
	s.breaker.RecordSuccess()

	report, defects := s.validator.Validate(raw, summary)
	if len(defects) == 0 {
		return s.finish(report, prompt.Hash, false), nil
	}

	s.logger.Info().
		Int("defects", len(defects)).
		Msg("Provider output failed validation, attempting one repair")

	// One repair round: hand the model its own output and the defect
	// list, then re-validate. No second repair is ever attempted.
	repaired, rerr := s.repairCall(ctx, prompt.System, BuildRepairPrompt(raw, defects), prompt.Hash)
	if rerr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.breaker.RecordFailure()
		return s.fallbackReport(summary, prompt.Hash, "insight repair call failed: "+rerr.Error()), nil
	}
	s.breaker.RecordSuccess()

	report, defects = s.validator.Validate(repaired, summary)
	if len(defects) == 0 {
		return s.finish(report, prompt.Hash, true), nil
	}

	s.logger.Warn().
		Int("defects", len(defects)).
		Msg("Repaired output still invalid, using fallback insights")
	return s.fallbackReport(summary, prompt.Hash, "provider output failed validation after repair"), nil
}

// callProvider runs the provider call under the insight retry policy
func (s *Service) callProvider(ctx context.Context, operation, system, user, promptHash string) (string, error) {
	var raw string
	err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) retry.Outcome {
		start := time.Now()
		text, err := s.provider.Generate(ctx, system, user)
		s.audit.Record(string(s.provider.Name()), s.provider.Model(), operation, err == nil, time.Since(start), promptHash, err)
		if err != nil {
			s.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Str("operation", operation).
				Msg("Provider call attempt failed")
			return classifyProviderError(err)
		}
		raw = text
		return retry.OK()
	})
	return raw, err
}

// repairCall is a single provider request outside the retry budget
func (s *Service) repairCall(ctx context.Context, system, user, promptHash string) (string, error) {
	start := time.Now()
	text, err := s.provider.Generate(ctx, system, user)
	s.audit.Record(string(s.provider.Name()), s.provider.Model(), "repair", err == nil, time.Since(start), promptHash, err)
	return text, err
}

func (s *Service) finish(report *models.InsightReport, promptHash string, repaired bool) *models.InsightReport {
	report.Provider = string(s.provider.Name())
	report.Model = s.provider.Model()
	report.PromptHash = promptHash
	report.Repaired = repaired
	return report
}

// fallbackReport builds the template report and records why the
// provider path was abandoned. The job itself still completes.
func (s *Service) fallbackReport(summary *models.DatasetSummary, promptHash, reason string) *models.InsightReport {
	report := s.fallback.Generate(summary)
	report.PromptHash = promptHash
	report.Issues = append(report.Issues, models.Issue{
		Kind:    models.IssueKindLLMFallback,
		Message: reason,
	})
	return report
}

// classifyProviderError maps SDK errors onto retry classes using the
// underlying HTTP status when one is available
func classifyProviderError(err error) retry.Outcome {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return retry.ClassifyHTTP(apierr.StatusCode, err)
	}
	var gerr genai.APIError
	if errors.As(err, &gerr) {
		return retry.ClassifyHTTP(gerr.Code, err)
	}
	return retry.ClassifyError(err)
}
