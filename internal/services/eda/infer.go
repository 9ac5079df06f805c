package eda

import (
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/datapilot/internal/models"
)

// typeSampleSize is how many non-missing values are sampled per column
// when inferring its type
const typeSampleSize = 100

// classifyThreshold is the fraction of sampled values that must parse
// for a datetime or numeric classification
const classifyThreshold = 0.8

// categoricalMaxDistinct is the cardinality ceiling for a categorical
// classification
const categoricalMaxDistinct = 20

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// IsMissing reports whether a cell counts as a missing value
func IsMissing(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "na", "n/a", "null", "none", "nan":
		return true
	}
	return false
}

// parseDatetime tries the supported layouts in order
func parseDatetime(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric parses a numeric cell, tolerating thousands separators
func parseNumeric(value string) (float64, bool) {
	v := strings.TrimSpace(value)
	v = strings.ReplaceAll(v, ",", "")
	v = strings.TrimPrefix(v, "$")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// inferColumnType classifies a column by sampling its non-missing
// values. Ambiguous columns fall back to text.
func inferColumnType(values []string) models.ColumnType {
	sample := make([]string, 0, typeSampleSize)
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		sample = append(sample, v)
		if len(sample) >= typeSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return models.ColumnTypeText
	}

	datetimeHits := 0
	numericHits := 0
	for _, v := range sample {
		if _, ok := parseDatetime(v); ok {
			datetimeHits++
			continue
		}
		if _, ok := parseNumeric(v); ok {
			numericHits++
		}
	}

	total := float64(len(sample))
	if float64(datetimeHits)/total >= classifyThreshold {
		return models.ColumnTypeDatetime
	}
	if float64(numericHits)/total >= classifyThreshold {
		return models.ColumnTypeNumeric
	}

	// Low-cardinality non-parseable columns are categorical
	distinct := map[string]bool{}
	for _, v := range values {
		if !IsMissing(v) {
			distinct[v] = true
		}
	}
	nonMissing := 0
	for _, v := range values {
		if !IsMissing(v) {
			nonMissing++
		}
	}
	if nonMissing > 0 && len(distinct) <= categoricalMaxDistinct &&
		float64(len(distinct))/float64(nonMissing) <= 0.5 {
		return models.ColumnTypeCategorical
	}

	return models.ColumnTypeText
}
