// -----------------------------------------------------------------------
// Fallback Generator - deterministic template insights from the summary
// -----------------------------------------------------------------------

package insights

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
)

// FallbackGenerator derives 2-5 template insights purely from structural
// summary aggregates. Its output always passes the validator by
// construction: it is the terminal safety net of the insight pipeline.
type FallbackGenerator struct {
	logger arbor.ILogger
}

// NewFallbackGenerator creates a fallback generator
func NewFallbackGenerator(logger arbor.ILogger) *FallbackGenerator {
	return &FallbackGenerator{logger: logger}
}

// Generate builds the template report for a summary
func (g *FallbackGenerator) Generate(summary *models.DatasetSummary) *models.InsightReport {
	var analyst []models.Insight

	analyst = append(analyst, g.qualityInsight(summary))

	if missing := g.missingInsight(summary); missing != nil {
		analyst = append(analyst, *missing)
	}
	if dup := g.duplicateInsight(summary); dup != nil {
		analyst = append(analyst, *dup)
	}
	if rng := g.rangeInsight(summary); rng != nil {
		analyst = append(analyst, *rng)
	}
	if corr := g.correlationInsight(summary); corr != nil {
		analyst = append(analyst, *corr)
	}

	// 2-5 insights: the quality insight plus at least one more
	if len(analyst) < 2 {
		analyst = append(analyst, g.shapeInsight(summary))
	}
	if len(analyst) > 5 {
		analyst = analyst[:5]
	}

	business := []models.Insight{{
		ID:       "biz_review",
		Title:    "Automated insights unavailable, structural analysis provided",
		Summary:  fmt.Sprintf("The dataset of %d rows and %d columns was profiled successfully. AI-generated business insights could not be produced this run; the computed metrics and charts below are complete and reliable.", summary.RowCount, summary.ColumnCount),
		Severity: models.SeverityInfo,
		Evidence: []models.Evidence{{
			Type: models.EvidenceText,
			Text: "Generated from structural summary aggregates",
		}},
		Recommendation: "Re-run the analysis later for AI-generated business insights.",
	}}

	g.logger.Info().
		Int("analyst_insights", len(analyst)).
		Msg("Generated fallback insights")

	return &models.InsightReport{
		AnalystInsights:  analyst,
		BusinessInsights: business,
		Provider:         "fallback",
		Fallback:         true,
	}
}

// datasetEvidence attaches a dataset-wide aggregate to the first column,
// or degrades to text evidence when the summary carries no columns at all.
func datasetEvidence(summary *models.DatasetSummary, metric, value string) models.Evidence {
	if len(summary.Columns) == 0 {
		return models.Evidence{
			Type: models.EvidenceText,
			Text: fmt.Sprintf("%s = %s", metric, value),
		}
	}
	return models.Evidence{
		Type:   models.EvidenceAggregate,
		Column: summary.Columns[0].Name,
		Metric: metric,
		Value:  value,
	}
}

func (g *FallbackGenerator) qualityInsight(summary *models.DatasetSummary) models.Insight {
	severity := models.SeverityInfo
	if summary.QualityScore < 70 {
		severity = models.SeverityWarning
	}
	return models.Insight{
		ID:       "fb_quality",
		Title:    fmt.Sprintf("Data quality score is %d/100", summary.QualityScore),
		Summary:  fmt.Sprintf("The dataset scored %d out of 100 based on missing values and duplicate rows across %d rows and %d columns.", summary.QualityScore, summary.RowCount, summary.ColumnCount),
		Severity: severity,
		Evidence: []models.Evidence{
			datasetEvidence(summary, "quality_score", fmt.Sprintf("%d", summary.QualityScore)),
		},
	}
}

func (g *FallbackGenerator) missingInsight(summary *models.DatasetSummary) *models.Insight {
	var worst *models.ColumnSummary
	for i := range summary.Columns {
		c := &summary.Columns[i]
		if c.MissingCount > 0 && (worst == nil || c.MissingCount > worst.MissingCount) {
			worst = c
		}
	}
	if worst == nil {
		return nil
	}

	pct := 100 * float64(worst.MissingCount) / float64(summary.RowCount)
	severity := models.SeverityInfo
	if pct > 20 {
		severity = models.SeverityWarning
	}
	return &models.Insight{
		ID:       "fb_missing",
		Title:    fmt.Sprintf("Column %s has %.1f%% missing values", worst.Name, pct),
		Summary:  fmt.Sprintf("Column %s is missing %d of %d values. Rows with missing values may need imputation or exclusion before downstream analysis.", worst.Name, worst.MissingCount, summary.RowCount),
		Severity: severity,
		Evidence: []models.Evidence{{
			Type:   models.EvidenceAggregate,
			Column: worst.Name,
			Metric: "missing_count",
			Value:  fmt.Sprintf("%d", worst.MissingCount),
		}},
		Recommendation: fmt.Sprintf("Review how missing %s values are produced upstream.", worst.Name),
	}
}

func (g *FallbackGenerator) duplicateInsight(summary *models.DatasetSummary) *models.Insight {
	if summary.DuplicateCount == 0 {
		return nil
	}
	pct := 100 * summary.DuplicateFraction()
	severity := models.SeverityInfo
	if pct > 1 {
		severity = models.SeverityWarning
	}
	return &models.Insight{
		ID:       "fb_duplicates",
		Title:    fmt.Sprintf("%d duplicate rows detected (%.1f%%)", summary.DuplicateCount, pct),
		Summary:  fmt.Sprintf("%d of %d rows are exact duplicates of earlier rows, which can skew counts and averages.", summary.DuplicateCount, summary.RowCount),
		Severity: severity,
		Evidence: []models.Evidence{
			datasetEvidence(summary, "duplicate_count", fmt.Sprintf("%d", summary.DuplicateCount)),
		},
		Recommendation: "Deduplicate before aggregating if each row should be unique.",
	}
}

func (g *FallbackGenerator) rangeInsight(summary *models.DatasetSummary) *models.Insight {
	for _, c := range summary.NumericColumns() {
		if c.Stats == nil {
			continue
		}
		return &models.Insight{
			ID:       "fb_range",
			Title:    fmt.Sprintf("Numeric column %s ranges from %.4g to %.4g", c.Name, c.Stats.Min, c.Stats.Max),
			Summary:  fmt.Sprintf("Column %s has mean %.4g and median %.4g over %d non-missing values.", c.Name, c.Stats.Mean, c.Stats.Median, summary.RowCount-c.MissingCount),
			Severity: models.SeverityInfo,
			Evidence: []models.Evidence{
				{Type: models.EvidenceAggregate, Column: c.Name, Metric: "min", Value: fmt.Sprintf("%g", c.Stats.Min)},
				{Type: models.EvidenceAggregate, Column: c.Name, Metric: "max", Value: fmt.Sprintf("%g", c.Stats.Max)},
			},
		}
	}
	return nil
}

func (g *FallbackGenerator) correlationInsight(summary *models.DatasetSummary) *models.Insight {
	best := summary.StrongestCorrelation()
	if best == nil || abs(best.R) <= 0.7 {
		return nil
	}
	return &models.Insight{
		ID:       "fb_correlation",
		Title:    fmt.Sprintf("Strong correlation between %s and %s", best.ColumnA, best.ColumnB),
		Summary:  fmt.Sprintf("Columns %s and %s have a Pearson correlation of %.3f, suggesting related or derived quantities.", best.ColumnA, best.ColumnB, best.R),
		Severity: models.SeverityInfo,
		Evidence: []models.Evidence{{
			Type:   models.EvidenceAggregate,
			Column: best.ColumnA,
			Metric: "correlation",
			Value:  fmt.Sprintf("%.3f", best.R),
		}},
	}
}

func (g *FallbackGenerator) shapeInsight(summary *models.DatasetSummary) models.Insight {
	return models.Insight{
		ID:       "fb_shape",
		Title:    fmt.Sprintf("Dataset contains %d rows and %d columns", summary.RowCount, summary.ColumnCount),
		Summary:  fmt.Sprintf("The dataset was parsed into %d rows and %d columns with no missing values or duplicates detected.", summary.RowCount, summary.ColumnCount),
		Severity: models.SeverityInfo,
		Evidence: []models.Evidence{{
			Type: models.EvidenceText,
			Text: fmt.Sprintf("%d rows x %d columns", summary.RowCount, summary.ColumnCount),
		}},
	}
}
