package insights

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/datapilot/internal/models"
)

func validatorSummary() *models.DatasetSummary {
	return &models.DatasetSummary{
		RowCount:    4,
		ColumnCount: 2,
		Columns: []models.ColumnSummary{
			{Name: "region", Type: models.ColumnTypeCategorical},
			{Name: "amount", Type: models.ColumnTypeNumeric},
		},
		PreviewRows: [][]string{
			{"north", "10"},
			{"south", "40"},
		},
	}
}

const validResponse = `{
  "analyst_insights": [
    {
      "id": "a1",
      "title": "Amount spans a wide range",
      "summary": "Values range from 10 to 40.",
      "severity": "info",
      "evidence": [{"type": "aggregate", "column": "amount", "metric": "max", "value": "40"}]
    },
    {
      "id": "a2",
      "title": "Two regions present",
      "summary": "Rows split across north and south.",
      "severity": "info",
      "evidence": [{"type": "row", "row_index": 1}]
    }
  ],
  "business_insights": [
    {
      "id": "b1",
      "title": "Southern region leads on amount",
      "summary": "The largest value belongs to the south region.",
      "severity": "info",
      "evidence": [{"type": "text", "text": "Preview row 1 holds the maximum amount."}]
    }
  ]
}`

func TestValidateAcceptsWellFormedResponse(t *testing.T) {
	v := NewValidator()

	report, defects := v.Validate(validResponse, validatorSummary())

	require.Empty(t, defects)
	require.NotNil(t, report)
	assert.Len(t, report.AnalystInsights, 2)
	assert.Len(t, report.BusinessInsights, 1)
	assert.Equal(t, models.SeverityInfo, report.AnalystInsights[0].Severity)
}

func TestValidateStripsCodeFence(t *testing.T) {
	v := NewValidator()
	fenced := "```json\n" + validResponse + "\n```"

	report, defects := v.Validate(fenced, validatorSummary())

	assert.Empty(t, defects)
	assert.NotNil(t, report)
}

func TestValidateRejectsEmptyAndNonJSON(t *testing.T) {
	v := NewValidator()

	_, defects := v.Validate("", validatorSummary())
	require.Len(t, defects, 1)
	assert.Equal(t, "response", defects[0].Field)

	_, defects = v.Validate("here are your insights!", validatorSummary())
	require.Len(t, defects, 1)
	assert.Contains(t, defects[0].Message, "not valid JSON")
}

func TestValidateRequiresAnalystInsight(t *testing.T) {
	v := NewValidator()

	_, defects := v.Validate(`{"analyst_insights": [], "business_insights": []}`, validatorSummary())

	require.NotEmpty(t, defects)
	assert.Equal(t, "analyst_insights", defects[0].Field)
}

func TestValidateSeverityAliases(t *testing.T) {
	tests := []struct {
		raw      string
		expected models.Severity
		mapped   bool
	}{
		{"info", models.SeverityInfo, true},
		{"LOW", models.SeverityInfo, true},
		{"Informational", models.SeverityInfo, true},
		{"warn", models.SeverityWarning, true},
		{"MODERATE", models.SeverityWarning, true},
		{"high", models.SeverityCritical, true},
		{"error", models.SeverityCritical, true},
		{" critical ", models.SeverityCritical, true},
		{"urgent", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			severity, ok := NormalizeSeverity(tt.raw)
			assert.Equal(t, tt.mapped, ok)
			if tt.mapped {
				assert.Equal(t, tt.expected, severity)
			}
		})
	}
}

func TestValidateUnmappedSeverityIsDefect(t *testing.T) {
	v := NewValidator()
	response := `{
	  "analyst_insights": [
	    {
	      "id": "a1",
	      "title": "t",
	      "summary": "s",
	      "severity": "urgent",
	      "evidence": [{"type": "text", "text": "e"}]
	    }
	  ]
	}`

	_, defects := v.Validate(response, validatorSummary())

	require.NotEmpty(t, defects)
	assert.Equal(t, "analyst_insights[0].severity", defects[0].Field)
	assert.Contains(t, defects[0].Message, "urgent")
}

func TestValidateEvidenceRules(t *testing.T) {
	tests := []struct {
		name     string
		evidence string
		field    string
	}{
		{
			name:     "aggregate missing metric",
			evidence: `{"type": "aggregate", "column": "amount"}`,
			field:    "analyst_insights[0].evidence[0]",
		},
		{
			name:     "aggregate unknown column",
			evidence: `{"type": "aggregate", "column": "ghost", "metric": "max"}`,
			field:    "analyst_insights[0].evidence[0].column",
		},
		{
			name:     "row index out of range",
			evidence: `{"type": "row", "row_index": 9}`,
			field:    "analyst_insights[0].evidence[0].row_index",
		},
		{
			name:     "row missing index",
			evidence: `{"type": "row"}`,
			field:    "analyst_insights[0].evidence[0]",
		},
		{
			name:     "text empty",
			evidence: `{"type": "text", "text": "  "}`,
			field:    "analyst_insights[0].evidence[0]",
		},
		{
			name:     "unknown type",
			evidence: `{"type": "hunch"}`,
			field:    "analyst_insights[0].evidence[0].type",
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := fmt.Sprintf(`{
			  "analyst_insights": [
			    {"id": "a1", "title": "t", "summary": "s", "severity": "info", "evidence": [%s]}
			  ]
			}`, tt.evidence)

			_, defects := v.Validate(response, validatorSummary())

			require.NotEmpty(t, defects)
			assert.Equal(t, tt.field, defects[0].Field)
		})
	}
}

func TestValidateRowIndexZeroIsValid(t *testing.T) {
	v := NewValidator()
	response := `{
	  "analyst_insights": [
	    {"id": "a1", "title": "t", "summary": "s", "severity": "info", "evidence": [{"type": "row", "row_index": 0}]},
	    {"id": "a2", "title": "t2", "summary": "s2", "severity": "info", "evidence": [{"type": "text", "text": "e"}]}
	  ]
	}`

	_, defects := v.Validate(response, validatorSummary())

	assert.Empty(t, defects)
}

func TestValidateAutofillsMissingID(t *testing.T) {
	v := NewValidator()
	response := `{
	  "analyst_insights": [
	    {"title": "t", "summary": "s", "severity": "info", "evidence": [{"type": "text", "text": "e"}]},
	    {"title": "t2", "summary": "s2", "severity": "info", "evidence": [{"type": "text", "text": "e2"}]}
	  ]
	}`

	report, defects := v.Validate(response, validatorSummary())

	require.Empty(t, defects)
	assert.Equal(t, "analyst_insights_1", report.AnalystInsights[0].ID)
	assert.Equal(t, "analyst_insights_2", report.AnalystInsights[1].ID)
}

func TestValidateMissingRequiredFieldIsDefect(t *testing.T) {
	v := NewValidator()
	response := `{
	  "analyst_insights": [
	    {"id": "a1", "summary": "s", "severity": "info", "evidence": [{"type": "text", "text": "e"}]}
	  ]
	}`

	_, defects := v.Validate(response, validatorSummary())

	require.NotEmpty(t, defects)
	assert.Equal(t, "analyst_insights[0].title", defects[0].Field)
	assert.Contains(t, defects[0].Message, "required")
}
