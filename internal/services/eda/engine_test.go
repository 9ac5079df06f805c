package eda

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(common.LimitsConfig{
		PreviewRows:    5,
		MaxCorrelation: 10,
	}, arbor.NewLogger())
}

func salesDataset() *models.Dataset {
	return &models.Dataset{
		Columns: []string{"date", "region", "units", "revenue"},
		Rows: [][]string{
			{"2024-01-01", "north", "10", "100"},
			{"2024-01-02", "south", "20", "200"},
			{"2024-01-03", "north", "30", "300"},
			{"2024-01-04", "south", "40", "400"},
			{"2024-01-05", "north", "50", "500"},
			{"2024-01-06", "south", "60", "600"},
		},
	}
}

func TestColumnTypeInference(t *testing.T) {
	engine := newTestEngine()
	summary := engine.Summarize(salesDataset())

	expected := map[string]models.ColumnType{
		"date":    models.ColumnTypeDatetime,
		"region":  models.ColumnTypeCategorical,
		"units":   models.ColumnTypeNumeric,
		"revenue": models.ColumnTypeNumeric,
	}
	for _, col := range summary.Columns {
		if col.Type != expected[col.Name] {
			t.Errorf("column %s: expected %s, got %s", col.Name, expected[col.Name], col.Type)
		}
	}
}

func TestNumericStats(t *testing.T) {
	engine := newTestEngine()
	summary := engine.Summarize(salesDataset())

	var units *models.ColumnSummary
	for i := range summary.Columns {
		if summary.Columns[i].Name == "units" {
			units = &summary.Columns[i]
		}
	}
	if units == nil || units.Stats == nil {
		t.Fatal("expected numeric stats for units column")
	}
	if units.Stats.Min != 10 || units.Stats.Max != 60 {
		t.Errorf("expected min 10 max 60, got %v %v", units.Stats.Min, units.Stats.Max)
	}
	if units.Stats.Mean != 35 {
		t.Errorf("expected mean 35, got %v", units.Stats.Mean)
	}
	if units.Stats.Median != 35 {
		t.Errorf("expected median 35, got %v", units.Stats.Median)
	}
}

func TestPerfectCorrelationDetected(t *testing.T) {
	engine := newTestEngine()
	summary := engine.Summarize(salesDataset())

	if len(summary.Correlations) == 0 {
		t.Fatal("expected a units/revenue correlation")
	}
	c := summary.Correlations[0]
	if c.R < 0.999 {
		t.Errorf("expected r ~ 1.0 for units vs revenue, got %v", c.R)
	}
}

// A 10-row, 7-column dataset with exactly one missing cell and no
// duplicates scores 100 - 30/70 = 99.57, truncated to 99.
func TestQualityScorePinnedScenario(t *testing.T) {
	ds := &models.Dataset{
		Columns: []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"},
	}
	for i := 0; i < 10; i++ {
		row := make([]string, 7)
		for j := range row {
			row[j] = fmt.Sprintf("v%d_%d", i, j)
		}
		ds.Rows = append(ds.Rows, row)
	}
	ds.Rows[3][2] = "" // One missing cell

	summary := newTestEngine().Summarize(ds)

	if summary.MissingCells != 1 {
		t.Fatalf("expected 1 missing cell, got %d", summary.MissingCells)
	}
	if summary.DuplicateCount != 0 {
		t.Fatalf("expected 0 duplicates, got %d", summary.DuplicateCount)
	}
	if summary.QualityScore != 99 {
		t.Errorf("expected quality score 99, got %d", summary.QualityScore)
	}
}

func TestQualityScoreDuplicatePenalty(t *testing.T) {
	ds := &models.Dataset{
		Columns: []string{"a", "b"},
		Rows: [][]string{
			{"1", "2"},
			{"1", "2"}, // Duplicate: 50% of rows
			{"3", "4"},
			{"5", "6"},
		},
	}
	summary := newTestEngine().Summarize(ds)

	if summary.DuplicateCount != 1 {
		t.Fatalf("expected 1 duplicate row, got %d", summary.DuplicateCount)
	}
	if summary.QualityScore != 90 {
		t.Errorf("expected quality score 90, got %d", summary.QualityScore)
	}
}

func TestQualityScoreFlooredAtZero(t *testing.T) {
	ds := &models.Dataset{
		Columns: []string{"a"},
		Rows:    [][]string{{""}, {""}, {""}},
	}
	summary := newTestEngine().Summarize(ds)
	if summary.QualityScore < 0 {
		t.Errorf("quality score must not go below zero, got %d", summary.QualityScore)
	}
}

func TestSummaryDeterministic(t *testing.T) {
	engine := newTestEngine()
	a := engine.Summarize(salesDataset())
	b := engine.Summarize(salesDataset())

	if !reflect.DeepEqual(a, b) {
		t.Error("identical input rows must produce identical summaries")
	}
}

func TestChartSpecs(t *testing.T) {
	engine := newTestEngine()
	summary := engine.Summarize(salesDataset())

	var timeSeries, distribution int
	for _, chart := range summary.Charts {
		switch chart.Type {
		case "time_series":
			timeSeries++
			if chart.Columns[0] != "date" {
				t.Errorf("expected date as x column, got %s", chart.Columns[0])
			}
		case "categorical_distribution":
			distribution++
		}
	}
	if timeSeries != 1 {
		t.Errorf("expected 1 time-series chart, got %d", timeSeries)
	}
	if distribution != 1 {
		t.Errorf("expected 1 distribution chart (region), got %d", distribution)
	}
}

// Distribution charts only cover categoricals with fewer than 12
// distinct values, even when the column still classifies as categorical.
func TestChartCardinalityLimit(t *testing.T) {
	ds := &models.Dataset{Columns: []string{"wide", "narrow"}}
	for i := 0; i < 36; i++ {
		ds.Rows = append(ds.Rows, []string{
			fmt.Sprintf("w%d", i%12),
			fmt.Sprintf("n%d", i%4),
		})
	}
	summary := newTestEngine().Summarize(ds)

	for _, col := range summary.Columns {
		if col.Type != models.ColumnTypeCategorical {
			t.Fatalf("column %s: expected categorical, got %s", col.Name, col.Type)
		}
	}
	if len(summary.Charts) != 1 {
		t.Fatalf("expected 1 chart, got %d", len(summary.Charts))
	}
	if summary.Charts[0].Columns[0] != "narrow" {
		t.Errorf("expected chart over narrow, got %s", summary.Charts[0].Columns[0])
	}
}

func TestChartSpecsCappedAtFour(t *testing.T) {
	ds := &models.Dataset{Columns: []string{"date", "amount", "c1", "c2", "c3", "c4", "c5"}}
	for i := 0; i < 30; i++ {
		ds.Rows = append(ds.Rows, []string{
			fmt.Sprintf("2024-01-%02d", i%28+1),
			fmt.Sprintf("%d", i*10),
			fmt.Sprintf("a%d", i%3),
			fmt.Sprintf("b%d", i%3),
			fmt.Sprintf("c%d", i%3),
			fmt.Sprintf("d%d", i%3),
			fmt.Sprintf("e%d", i%3),
		})
	}
	summary := newTestEngine().Summarize(ds)

	if len(summary.Charts) != 4 {
		t.Fatalf("expected 4 charts, got %d", len(summary.Charts))
	}
	if summary.Charts[0].Type != "time_series" {
		t.Errorf("expected the time-series chart first, got %s", summary.Charts[0].Type)
	}
}

func TestPreviewRowsCopied(t *testing.T) {
	ds := salesDataset()
	summary := newTestEngine().Summarize(ds)

	if len(summary.PreviewRows) != 5 {
		t.Fatalf("expected 5 preview rows, got %d", len(summary.PreviewRows))
	}
	// Mutating the source must not leak into the summary
	ds.Rows[0][0] = "mutated"
	if summary.PreviewRows[0][0] == "mutated" {
		t.Error("preview rows must be copies, not aliases")
	}
}

func TestIsMissing(t *testing.T) {
	missing := []string{"", "  ", "NA", "n/a", "NULL", "None", "nan"}
	for _, v := range missing {
		if !IsMissing(v) {
			t.Errorf("expected %q to be missing", v)
		}
	}
	present := []string{"0", "false", "x", "-"}
	for _, v := range present {
		if IsMissing(v) {
			t.Errorf("expected %q to be present", v)
		}
	}
}
