package eda

import (
	"math"
	"sort"

	"github.com/ternarybob/datapilot/internal/models"
)

// computeNumericStats aggregates the parseable values of a numeric column
func computeNumericStats(values []string) *models.NumericStats {
	var nums []float64
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		if f, ok := parseNumeric(v); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return nil
	}

	stats := &models.NumericStats{
		Min: nums[0],
		Max: nums[0],
	}
	sum := 0.0
	for _, f := range nums {
		if f < stats.Min {
			stats.Min = f
		}
		if f > stats.Max {
			stats.Max = f
		}
		sum += f
	}
	stats.Mean = sum / float64(len(nums))

	sorted := make([]float64, len(nums))
	copy(sorted, nums)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		stats.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		stats.Median = sorted[mid]
	}

	if len(nums) > 1 {
		sumSq := 0.0
		for _, f := range nums {
			d := f - stats.Mean
			sumSq += d * d
		}
		stats.StdDev = math.Sqrt(sumSq / float64(len(nums)-1))
	}

	return stats
}

// pearson computes the correlation of two equal-length columns over the
// rows where both cells parse as numbers. Returns false when fewer than
// three paired values exist or a column is constant.
func pearson(a, b []string) (float64, bool) {
	var xs, ys []float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if IsMissing(a[i]) || IsMissing(b[i]) {
			continue
		}
		x, okX := parseNumeric(a[i])
		y, okY := parseNumeric(b[i])
		if !okX || !okY {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 3 {
		return 0, false
	}

	meanX, meanY := mean(xs), mean(ys)
	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// topValues returns the most frequent values of a categorical column.
// Ties break alphabetically so the output is deterministic.
func topValues(values []string, limit int) []models.ValueCount {
	counts := map[string]int{}
	for _, v := range values {
		if !IsMissing(v) {
			counts[v]++
		}
	}
	out := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
