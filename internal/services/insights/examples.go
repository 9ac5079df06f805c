// -----------------------------------------------------------------------
// Few-shot example pool - similarity-scored worked examples for prompts
// -----------------------------------------------------------------------

package insights

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
	"gopkg.in/yaml.v3"
)

// Feature weights for example similarity scoring. Outlier presence is
// the strongest signal of which worked example fits a dataset.
const (
	weightOutliers    = 2.0
	weightDateColumn  = 1.5
	weightCorrelation = 1.5
	weightMissing     = 1.5
	weightDuplicates  = 1.0
	weightRows        = 0.5
)

// DatasetFeatures is the bucketed fingerprint used to match a dataset
// against the example pool
type DatasetFeatures struct {
	HasDateColumn        bool   `yaml:"has_date_column" json:"has_date_column"`
	HasOutliers          bool   `yaml:"has_outliers" json:"has_outliers"`
	HasStrongCorrelation bool   `yaml:"has_strong_correlation" json:"has_strong_correlation"`
	HasDuplicates        bool   `yaml:"has_duplicates" json:"has_duplicates"`
	MissingBucket        string `yaml:"missing_bucket" json:"missing_bucket"` // none|low|medium|high
	RowBucket            string `yaml:"row_bucket" json:"row_bucket"`         // small|medium|large
}

// Example is one worked example from the pool
type Example struct {
	Name     string          `yaml:"name"`
	Features DatasetFeatures `yaml:"features"`
	Dataset  string          `yaml:"dataset"`  // Short description of the example dataset
	Insights string          `yaml:"insights"` // The worked JSON response
}

// examplePool is the YAML document shape
type examplePool struct {
	Examples []Example `yaml:"examples"`
}

// ExtractFeatures fingerprints a structural summary.
// Outliers are defined as any numeric column whose max/min ratio
// exceeds 10; a strong correlation is |r| > 0.7.
func ExtractFeatures(summary *models.DatasetSummary) DatasetFeatures {
	f := DatasetFeatures{
		HasDateColumn: summary.HasDatetimeColumn(),
		HasDuplicates: summary.DuplicateCount > 0,
	}

	for _, c := range summary.NumericColumns() {
		if c.Stats == nil {
			continue
		}
		if c.Stats.Min > 0 && c.Stats.Max/c.Stats.Min > 10 {
			f.HasOutliers = true
			break
		}
	}

	if best := summary.StrongestCorrelation(); best != nil && abs(best.R) > 0.7 {
		f.HasStrongCorrelation = true
	}

	missing := summary.MissingFraction()
	switch {
	case missing == 0:
		f.MissingBucket = "none"
	case missing < 0.01:
		f.MissingBucket = "low"
	case missing < 0.05:
		f.MissingBucket = "medium"
	default:
		f.MissingBucket = "high"
	}

	switch {
	case summary.RowCount < 100:
		f.RowBucket = "small"
	case summary.RowCount < 1000:
		f.RowBucket = "medium"
	default:
		f.RowBucket = "large"
	}

	return f
}

// similarity scores how closely two fingerprints match
func similarity(a, b DatasetFeatures) float64 {
	score := 0.0
	if a.HasOutliers == b.HasOutliers {
		score += weightOutliers
	}
	if a.HasDateColumn == b.HasDateColumn {
		score += weightDateColumn
	}
	if a.HasStrongCorrelation == b.HasStrongCorrelation {
		score += weightCorrelation
	}
	if a.MissingBucket == b.MissingBucket {
		score += weightMissing
	}
	if a.HasDuplicates == b.HasDuplicates {
		score += weightDuplicates
	}
	if a.RowBucket == b.RowBucket {
		score += weightRows
	}
	return score
}

// SelectExamples returns the top-k pool examples by similarity to the
// given features. Ties break by pool order so selection is deterministic.
func SelectExamples(pool []Example, features DatasetFeatures, k int) []Example {
	if k <= 0 || len(pool) == 0 {
		return nil
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(pool))
	for i, ex := range pool {
		ranked[i] = scored{idx: i, score: similarity(features, ex.Features)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Example, k)
	for i := 0; i < k; i++ {
		out[i] = pool[ranked[i].idx]
	}
	return out
}

// LoadExamplePool reads every *.yaml file in the directory, in filename
// order. A missing directory yields an empty pool, not an error.
func LoadExamplePool(dir string, logger arbor.ILogger) ([]Example, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("dir", dir).Msg("Example pool directory missing, few-shot prompts will have no examples")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read example pool dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var pool []Example
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read example file %s: %w", name, err)
		}
		var doc examplePool
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse example file %s: %w", name, err)
		}
		pool = append(pool, doc.Examples...)
	}

	logger.Debug().Int("examples", len(pool)).Str("dir", dir).Msg("Loaded example pool")
	return pool, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
