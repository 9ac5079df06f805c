package insights

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/models"
)

func promptSummary() *models.DatasetSummary {
	return &models.DatasetSummary{
		RowCount:     4,
		ColumnCount:  2,
		MissingCells: 1,
		QualityScore: 92,
		Columns: []models.ColumnSummary{
			{
				Name: "email", Type: models.ColumnTypeText,
				SampleValues: []string{"alice@example.com", "bob@example.com"},
			},
			{
				Name: "amount", Type: models.ColumnTypeNumeric,
				Stats: &models.NumericStats{Min: 10, Max: 40, Mean: 25, Median: 25, StdDev: 12.9},
			},
		},
		PreviewRows: [][]string{
			{"alice@example.com", "10"},
			{"bob@example.com", "40"},
		},
	}
}

func TestBuildPromptHashStable(t *testing.T) {
	builder := NewPromptBuilder(nil, false, 3, false, arbor.NewLogger())
	summary := promptSummary()

	first := builder.Build("sales.csv", summary)
	second := builder.Build("sales.csv", summary)

	assert.Equal(t, first.User, second.User)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Len(t, first.Hash, 16)
}

func TestBuildPromptHashChangesWithContent(t *testing.T) {
	builder := NewPromptBuilder(nil, false, 3, false, arbor.NewLogger())

	a := builder.Build("sales.csv", promptSummary())
	changed := promptSummary()
	changed.RowCount = 5
	b := builder.Build("sales.csv", changed)

	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestBuildPromptMasksPreviewRows(t *testing.T) {
	builder := NewPromptBuilder(nil, false, 3, true, arbor.NewLogger())

	prompt := builder.Build("contacts.csv", promptSummary())

	assert.NotContains(t, prompt.User, "alice@example.com")
	assert.Contains(t, prompt.User, "a***@example.com")
	// Masking is prompt-only: the summary itself keeps originals
	assert.Equal(t, "alice@example.com", promptSummary().PreviewRows[0][0])
}

func TestBuildPromptIncludesFewShotExamples(t *testing.T) {
	pool := []Example{
		{
			Name:     "clean_sales",
			Features: DatasetFeatures{MissingBucket: "low", RowBucket: "small"},
			Dataset:  "Small sales extract",
			Insights: `{"analyst_insights":[{"id":"a1"}]}`,
		},
	}
	builder := NewPromptBuilder(pool, true, 3, false, arbor.NewLogger())

	prompt := builder.Build("sales.csv", promptSummary())

	assert.Contains(t, prompt.User, "Worked examples")
	assert.Contains(t, prompt.User, "clean_sales")
	assert.True(t, strings.Index(prompt.User, "clean_sales") < strings.Index(prompt.User, "Analyze this dataset"),
		"examples must precede the dataset section")
}

func TestPromptBuilderExampleCountBounds(t *testing.T) {
	assert.Equal(t, 3, NewPromptBuilder(nil, true, 0, false, arbor.NewLogger()).fewShotCount)
	assert.Equal(t, 3, NewPromptBuilder(nil, true, -1, false, arbor.NewLogger()).fewShotCount)
	assert.Equal(t, 8, NewPromptBuilder(nil, true, 20, false, arbor.NewLogger()).fewShotCount)
	assert.Equal(t, 5, NewPromptBuilder(nil, true, 5, false, arbor.NewLogger()).fewShotCount)
}

func TestBuildPromptFewShotDisabled(t *testing.T) {
	pool := []Example{{Name: "clean_sales"}}
	builder := NewPromptBuilder(pool, false, 3, false, arbor.NewLogger())

	prompt := builder.Build("sales.csv", promptSummary())

	assert.NotContains(t, prompt.User, "Worked examples")
}

func TestBuildRepairPromptListsDefects(t *testing.T) {
	raw := `{"analyst_insights":[]}`
	defects := []Defect{
		{Field: "analyst_insights", Message: "at least one analyst insight is required"},
		{Field: "analyst_insights[0].severity", Message: `unmapped severity "urgent"`},
	}

	prompt := BuildRepairPrompt(raw, defects)

	require.Contains(t, prompt, "failed validation")
	assert.Contains(t, prompt, "analyst_insights: at least one analyst insight is required")
	assert.Contains(t, prompt, `unmapped severity "urgent"`)
	assert.Contains(t, prompt, raw)
}
