package eda

import (
	"fmt"

	"github.com/ternarybob/datapilot/internal/models"
)

const (
	// chartMaxCardinality bounds categorical distribution charts to
	// columns with fewer than this many distinct values
	chartMaxCardinality = 12
	// maxChartSpecs caps the total number of suggested charts
	maxChartSpecs = 4
)

// buildCharts derives chart specifications from the classified columns.
// One time-series chart when a datetime column and at least one numeric
// column exist, plus a distribution chart per low-cardinality
// categorical column up to the cap.
func buildCharts(columns []models.ColumnSummary) []models.ChartSpec {
	var charts []models.ChartSpec

	var dateCol string
	var numericCols []string
	for _, c := range columns {
		switch c.Type {
		case models.ColumnTypeDatetime:
			if dateCol == "" {
				dateCol = c.Name
			}
		case models.ColumnTypeNumeric:
			numericCols = append(numericCols, c.Name)
		}
	}

	if dateCol != "" && len(numericCols) > 0 {
		series := numericCols
		if len(series) > 3 {
			series = series[:3]
		}
		charts = append(charts, models.ChartSpec{
			Type:    "time_series",
			Title:   fmt.Sprintf("Trend over %s", dateCol),
			Columns: append([]string{dateCol}, series...),
		})
	}

	for _, c := range columns {
		if len(charts) >= maxChartSpecs {
			break
		}
		if c.Type != models.ColumnTypeCategorical {
			continue
		}
		if c.DistinctCount == 0 || c.DistinctCount >= chartMaxCardinality {
			continue
		}
		charts = append(charts, models.ChartSpec{
			Type:    "categorical_distribution",
			Title:   fmt.Sprintf("Distribution of %s", c.Name),
			Columns: []string{c.Name},
		})
	}

	return charts
}
