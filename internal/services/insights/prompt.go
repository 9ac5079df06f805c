// -----------------------------------------------------------------------
// Prompt Builder - assembles the instruction sent to the insight provider
// -----------------------------------------------------------------------

package insights

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
)

// systemPrompt instructs the model to answer with strict JSON matching
// the insight report schema
const systemPrompt = `You are a senior data analyst. You receive a structural summary of a tabular dataset and produce insights about it.

Respond with a single JSON object and nothing else, using this exact shape:
{
  "analyst_insights": [
    {
      "id": "string",
      "title": "string (max 200 chars)",
      "summary": "string",
      "severity": "info|warning|critical",
      "evidence": [
        {"type": "aggregate", "column": "string", "metric": "string", "value": "string"},
        {"type": "row", "row_index": 0},
        {"type": "text", "text": "string"}
      ],
      "recommendation": "string (optional)"
    }
  ],
  "business_insights": [ same shape as analyst_insights ]
}

Rules:
- Produce 2 to 5 analyst insights (data quality, distributions, correlations) and 1 to 3 business insights.
- Every insight needs at least one evidence item.
- Row evidence row_index values refer to the preview rows and must be in range.
- Severity reflects impact: critical for findings that invalidate analysis, warning for quality risks, info otherwise.
- Do not invent columns or values that are not in the summary.`

// BuiltPrompt is the assembled instruction plus its provenance hash
type BuiltPrompt struct {
	System string
	User   string
	Hash   string // First 16 hex chars of the SHA-256 of system + user
}

// PromptBuilder renders structural summaries into provider prompts,
// attaching similarity-selected worked examples and masking PII in any
// free text before it leaves the process.
type PromptBuilder struct {
	pool         []Example
	fewShot      bool
	fewShotCount int
	maskPII      bool
	logger       arbor.ILogger
}

// NewPromptBuilder creates a builder over the given example pool. The
// example count defaults to 3 and is clamped at 8.
func NewPromptBuilder(pool []Example, fewShot bool, fewShotCount int, maskPII bool, logger arbor.ILogger) *PromptBuilder {
	if fewShotCount <= 0 {
		fewShotCount = 3
	}
	if fewShotCount > 8 {
		fewShotCount = 8
	}
	return &PromptBuilder{
		pool:         pool,
		fewShot:      fewShot,
		fewShotCount: fewShotCount,
		maskPII:      maskPII,
		logger:       logger,
	}
}

// Build assembles the full prompt for a dataset summary
func (p *PromptBuilder) Build(fileName string, summary *models.DatasetSummary) *BuiltPrompt {
	var b strings.Builder

	if p.fewShot && len(p.pool) > 0 {
		features := ExtractFeatures(summary)
		selected := SelectExamples(p.pool, features, p.fewShotCount)
		if len(selected) > 0 {
			b.WriteString("Worked examples of good responses for similar datasets:\n\n")
			for i, ex := range selected {
				fmt.Fprintf(&b, "Example %d (%s):\nDataset: %s\nResponse:\n%s\n\n", i+1, ex.Name, ex.Dataset, ex.Insights)
			}
			b.WriteString("---\n\n")
		}
		p.logger.Debug().
			Int("selected", len(selected)).
			Str("missing_bucket", features.MissingBucket).
			Str("row_bucket", features.RowBucket).
			Msg("Selected few-shot examples")
	}

	fmt.Fprintf(&b, "Analyze this dataset: %s\n\n", fileName)
	p.renderSummary(&b, summary)

	user := b.String()
	hash := sha256.Sum256([]byte(systemPrompt + user))

	return &BuiltPrompt{
		System: systemPrompt,
		User:   user,
		Hash:   hex.EncodeToString(hash[:])[:16],
	}
}

func (p *PromptBuilder) renderSummary(b *strings.Builder, summary *models.DatasetSummary) {
	fmt.Fprintf(b, "Rows: %d, Columns: %d, Duplicate rows: %d, Missing cells: %d, Quality score: %d/100\n\n",
		summary.RowCount, summary.ColumnCount, summary.DuplicateCount, summary.MissingCells, summary.QualityScore)

	b.WriteString("Columns:\n")
	for _, c := range summary.Columns {
		fmt.Fprintf(b, "- %s (%s): %d missing, %d distinct", c.Name, c.Type, c.MissingCount, c.DistinctCount)
		if c.Stats != nil {
			fmt.Fprintf(b, ", min=%.4g max=%.4g mean=%.4g median=%.4g stddev=%.4g",
				c.Stats.Min, c.Stats.Max, c.Stats.Mean, c.Stats.Median, c.Stats.StdDev)
		}
		if len(c.TopValues) > 0 {
			parts := make([]string, len(c.TopValues))
			for i, tv := range c.TopValues {
				parts[i] = fmt.Sprintf("%s (%d)", p.mask(tv.Value), tv.Count)
			}
			fmt.Fprintf(b, ", top values: %s", strings.Join(parts, ", "))
		}
		if len(c.SampleValues) > 0 && c.Stats == nil && len(c.TopValues) == 0 {
			samples := make([]string, len(c.SampleValues))
			for i, sv := range c.SampleValues {
				samples[i] = p.mask(sv)
			}
			fmt.Fprintf(b, ", samples: %s", strings.Join(samples, ", "))
		}
		b.WriteString("\n")
	}

	if len(summary.Correlations) > 0 {
		b.WriteString("\nCorrelations:\n")
		for _, c := range summary.Correlations {
			fmt.Fprintf(b, "- %s vs %s: r=%.3f\n", c.ColumnA, c.ColumnB, c.R)
		}
	}

	if len(summary.PreviewRows) > 0 {
		b.WriteString("\nPreview rows (0-indexed):\n")
		preview := summary.PreviewRows
		if p.maskPII {
			preview = MaskRows(preview)
		}
		for i, row := range preview {
			fmt.Fprintf(b, "%d: %s\n", i, strings.Join(row, " | "))
		}
	}
}

func (p *PromptBuilder) mask(v string) string {
	if p.maskPII {
		return MaskPII(v)
	}
	return v
}

// BuildRepairPrompt asks the provider to fix only the structure of a
// previous response, given the validator's defect list
func BuildRepairPrompt(raw string, defects []Defect) string {
	var b strings.Builder
	b.WriteString("Your previous response failed validation. Fix ONLY the structural problems listed below. Keep the analytical content unchanged and respond with the corrected JSON object and nothing else.\n\nDefects:\n")
	for _, d := range defects {
		fmt.Fprintf(&b, "- %s: %s\n", d.Field, d.Message)
	}
	b.WriteString("\nPrevious response:\n")
	b.WriteString(raw)
	return b.String()
}
