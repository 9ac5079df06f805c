// -----------------------------------------------------------------------
// Structural Summary Engine - deterministic profile of a parsed dataset
// -----------------------------------------------------------------------

package eda

import (
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/models"
)

const (
	sampleValueCount = 5
	topValueCount    = 5
)

// Engine computes structural summaries. The output is deterministic and
// side-effect free: it is the sole input to the fallback insight
// generator, so identical rows must always produce an identical summary.
type Engine struct {
	limits common.LimitsConfig
	logger arbor.ILogger
}

// NewEngine creates a summary engine
func NewEngine(limits common.LimitsConfig, logger arbor.ILogger) *Engine {
	return &Engine{
		limits: limits,
		logger: logger,
	}
}

// Summarize profiles the dataset: per-column types and aggregates,
// duplicate detection, correlations, chart specs, and the quality score.
func (e *Engine) Summarize(ds *models.Dataset) *models.DatasetSummary {
	summary := &models.DatasetSummary{
		RowCount:    len(ds.Rows),
		ColumnCount: len(ds.Columns),
	}

	// Column profiles
	for i, name := range ds.Columns {
		values := columnValues(ds, i)
		col := models.ColumnSummary{
			Name: name,
			Type: inferColumnType(values),
		}

		distinct := map[string]bool{}
		for _, v := range values {
			if IsMissing(v) {
				col.MissingCount++
				continue
			}
			distinct[v] = true
			if len(col.SampleValues) < sampleValueCount {
				col.SampleValues = append(col.SampleValues, v)
			}
		}
		col.DistinctCount = len(distinct)
		summary.MissingCells += col.MissingCount

		switch col.Type {
		case models.ColumnTypeNumeric:
			col.Stats = computeNumericStats(values)
		case models.ColumnTypeCategorical:
			col.TopValues = topValues(values, topValueCount)
		}

		summary.Columns = append(summary.Columns, col)
	}

	// Duplicate full rows beyond their first occurrence
	seen := map[string]bool{}
	for _, row := range ds.Rows {
		key := strings.Join(row, "\x1f")
		if seen[key] {
			summary.DuplicateCount++
		}
		seen[key] = true
	}

	// Pairwise correlations over numeric columns, bounded by config
	summary.Correlations = e.correlations(ds, summary.Columns)

	summary.Charts = buildCharts(summary.Columns)
	summary.QualityScore = qualityScore(summary)
	summary.PreviewRows = previewRows(ds, e.limits.PreviewRows)

	e.logger.Debug().
		Int("rows", summary.RowCount).
		Int("columns", summary.ColumnCount).
		Int("quality", summary.QualityScore).
		Msg("Computed structural summary")

	return summary
}

func (e *Engine) correlations(ds *models.Dataset, columns []models.ColumnSummary) []models.Correlation {
	var numericIdx []int
	for i, c := range columns {
		if c.Type == models.ColumnTypeNumeric {
			numericIdx = append(numericIdx, i)
		}
	}

	limit := e.limits.MaxCorrelation
	if limit <= 0 {
		limit = 10
	}

	var out []models.Correlation
	for a := 0; a < len(numericIdx) && len(out) < limit; a++ {
		for b := a + 1; b < len(numericIdx) && len(out) < limit; b++ {
			i, j := numericIdx[a], numericIdx[b]
			r, ok := pearson(columnValues(ds, i), columnValues(ds, j))
			if !ok {
				continue
			}
			out = append(out, models.Correlation{
				ColumnA: columns[i].Name,
				ColumnB: columns[j].Name,
				R:       r,
			})
		}
	}
	return out
}

// qualityScore is 100 minus min(30, 30 * missing_fraction), minus 10
// when more than 1% of rows are duplicates, floored at 0 and truncated
// toward zero. A 10-row, 7-column dataset with one missing cell scores 99.
func qualityScore(s *models.DatasetSummary) int {
	score := 100.0
	penalty := 30.0 * s.MissingFraction()
	if penalty > 30 {
		penalty = 30
	}
	score -= penalty
	if s.DuplicateFraction() > 0.01 {
		score -= 10
	}
	if score < 0 {
		score = 0
	}
	return int(score)
}

func previewRows(ds *models.Dataset, limit int) [][]string {
	if limit <= 0 {
		limit = 5
	}
	if limit > len(ds.Rows) {
		limit = len(ds.Rows)
	}
	out := make([][]string, limit)
	for i := 0; i < limit; i++ {
		row := make([]string, len(ds.Rows[i]))
		copy(row, ds.Rows[i])
		out[i] = row
	}
	return out
}

func columnValues(ds *models.Dataset, idx int) []string {
	out := make([]string, len(ds.Rows))
	for i, row := range ds.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}
