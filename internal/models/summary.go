// -----------------------------------------------------------------------
// Structural Summary - derived, immutable description of a dataset
// -----------------------------------------------------------------------

package models

// ColumnType is the inferred type of a tabular column
type ColumnType string

const (
	ColumnTypeDatetime    ColumnType = "datetime"
	ColumnTypeNumeric     ColumnType = "numeric"
	ColumnTypeCategorical ColumnType = "categorical"
	ColumnTypeText        ColumnType = "text"
)

// NumericStats holds per-column numeric aggregates
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// ColumnSummary describes one column of the dataset
type ColumnSummary struct {
	Name          string        `json:"name"`
	Type          ColumnType    `json:"type"`
	MissingCount  int           `json:"missing_count"`
	DistinctCount int           `json:"distinct_count"`
	SampleValues  []string      `json:"sample_values"` // Up to 5 non-missing values in row order
	Stats         *NumericStats `json:"stats,omitempty"`
	TopValues     []ValueCount  `json:"top_values,omitempty"` // Categorical columns only
}

// ValueCount pairs a categorical value with its frequency
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Correlation is a Pearson correlation between two numeric columns
type Correlation struct {
	ColumnA string  `json:"column_a"`
	ColumnB string  `json:"column_b"`
	R       float64 `json:"r"`
}

// ChartSpec describes one suggested visualization
type ChartSpec struct {
	Type    string   `json:"type"`  // "time_series" or "categorical_distribution"
	Title   string   `json:"title"`
	Columns []string `json:"columns"` // X column first, then series columns
}

// DatasetSummary is the structural summary computed once per job.
// It is deterministic and side-effect free: the same rows always produce
// the same summary. The fallback insight generator depends on that.
type DatasetSummary struct {
	RowCount       int             `json:"row_count"`
	ColumnCount    int             `json:"column_count"`
	DuplicateCount int             `json:"duplicate_count"`
	MissingCells   int             `json:"missing_cells"`
	Columns        []ColumnSummary `json:"columns"`
	Correlations   []Correlation   `json:"correlations,omitempty"`
	Charts         []ChartSpec     `json:"charts,omitempty"`
	QualityScore   int             `json:"quality_score"` // 0-100, truncated toward zero
	PreviewRows    [][]string      `json:"preview_rows"`  // First rows, cleaned, for evidence references
}

// MissingFraction returns the share of cells that are missing
func (s *DatasetSummary) MissingFraction() float64 {
	total := s.RowCount * s.ColumnCount
	if total == 0 {
		return 0
	}
	return float64(s.MissingCells) / float64(total)
}

// DuplicateFraction returns the share of rows that are duplicates
func (s *DatasetSummary) DuplicateFraction() float64 {
	if s.RowCount == 0 {
		return 0
	}
	return float64(s.DuplicateCount) / float64(s.RowCount)
}

// HasDatetimeColumn reports whether any column was inferred as datetime
func (s *DatasetSummary) HasDatetimeColumn() bool {
	for _, c := range s.Columns {
		if c.Type == ColumnTypeDatetime {
			return true
		}
	}
	return false
}

// NumericColumns returns the columns inferred as numeric
func (s *DatasetSummary) NumericColumns() []ColumnSummary {
	var out []ColumnSummary
	for _, c := range s.Columns {
		if c.Type == ColumnTypeNumeric {
			out = append(out, c)
		}
	}
	return out
}

// StrongestCorrelation returns the correlation with the largest |r|,
// or nil when none were computed
func (s *DatasetSummary) StrongestCorrelation() *Correlation {
	var best *Correlation
	for i := range s.Correlations {
		c := &s.Correlations[i]
		if best == nil || abs(c.R) > abs(best.R) {
			best = c
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
