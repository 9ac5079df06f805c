// -----------------------------------------------------------------------
// Insight Validator - schema checks and canonicalization of model output
// -----------------------------------------------------------------------

package insights

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/datapilot/internal/models"
)

// Defect is one structural problem found in a model response. Defects
// are data, not errors: the pipeline feeds them back in a repair call.
type Defect struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// severityAliases maps loose model severity strings onto the closed
// enum. Anything unmapped is a defect, never a silent coercion.
var severityAliases = map[string]models.Severity{
	"info":          models.SeverityInfo,
	"information":   models.SeverityInfo,
	"informational": models.SeverityInfo,
	"low":           models.SeverityInfo,
	"notice":        models.SeverityInfo,
	"warning":       models.SeverityWarning,
	"warn":          models.SeverityWarning,
	"medium":        models.SeverityWarning,
	"moderate":      models.SeverityWarning,
	"critical":      models.SeverityCritical,
	"high":          models.SeverityCritical,
	"severe":        models.SeverityCritical,
	"error":         models.SeverityCritical,
}

// NormalizeSeverity maps an arbitrary severity string onto the enum
func NormalizeSeverity(raw string) (models.Severity, bool) {
	s, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// Validator parses and schema-checks insight reports
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// rawReport tolerates loose severity strings during parsing
type rawReport struct {
	AnalystInsights  []rawInsight `json:"analyst_insights"`
	BusinessInsights []rawInsight `json:"business_insights"`
}

type rawInsight struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary"`
	Severity       string            `json:"severity"`
	Evidence       []models.Evidence `json:"evidence"`
	Recommendation string            `json:"recommendation"`
}

// Validate parses raw model output against the insight schema. On
// success it returns the canonicalized report. On any structural defect
// it returns the typed defect list instead - it never fails with an
// error for malformed content, only for empty input.
func (v *Validator) Validate(raw string, summary *models.DatasetSummary) (*models.InsightReport, []Defect) {
	cleaned := stripCodeFence(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, []Defect{{Field: "response", Message: "empty response"}}
	}

	var parsed rawReport
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, []Defect{{Field: "response", Message: fmt.Sprintf("not valid JSON: %v", err)}}
	}

	var defects []Defect
	report := &models.InsightReport{}

	if len(parsed.AnalystInsights) == 0 {
		defects = append(defects, Defect{Field: "analyst_insights", Message: "at least one analyst insight is required"})
	}

	report.AnalystInsights = v.checkInsights("analyst_insights", parsed.AnalystInsights, summary, &defects)
	report.BusinessInsights = v.checkInsights("business_insights", parsed.BusinessInsights, summary, &defects)

	if len(defects) > 0 {
		return nil, defects
	}
	return report, nil
}

func (v *Validator) checkInsights(group string, raw []rawInsight, summary *models.DatasetSummary, defects *[]Defect) []models.Insight {
	out := make([]models.Insight, 0, len(raw))
	for i, r := range raw {
		path := fmt.Sprintf("%s[%d]", group, i)

		insight := models.Insight{
			ID:             strings.TrimSpace(r.ID),
			Title:          strings.TrimSpace(r.Title),
			Summary:        strings.TrimSpace(r.Summary),
			Evidence:       r.Evidence,
			Recommendation: strings.TrimSpace(r.Recommendation),
		}
		if insight.ID == "" {
			insight.ID = fmt.Sprintf("%s_%d", group, i+1)
		}

		severity, ok := NormalizeSeverity(r.Severity)
		if !ok {
			*defects = append(*defects, Defect{
				Field:   path + ".severity",
				Message: fmt.Sprintf("unmapped severity %q (expected info, warning, or critical)", r.Severity),
			})
		}
		insight.Severity = severity

		v.checkEvidence(path, insight.Evidence, summary, defects)

		if err := v.validate.Struct(insight); err != nil {
			if verrs, isValidation := err.(validator.ValidationErrors); isValidation {
				for _, ve := range verrs {
					// Severity defects are already reported with the raw value
					if ve.Field() == "Severity" {
						continue
					}
					*defects = append(*defects, Defect{
						Field:   fmt.Sprintf("%s.%s", path, strings.ToLower(ve.Field())),
						Message: fmt.Sprintf("failed %q constraint", ve.Tag()),
					})
				}
			} else {
				*defects = append(*defects, Defect{Field: path, Message: err.Error()})
			}
		}

		out = append(out, insight)
	}
	return out
}

// checkEvidence enforces the tagged-union rules and row-reference range
func (v *Validator) checkEvidence(path string, evidence []models.Evidence, summary *models.DatasetSummary, defects *[]Defect) {
	for i, ev := range evidence {
		evPath := fmt.Sprintf("%s.evidence[%d]", path, i)
		switch ev.Type {
		case models.EvidenceAggregate:
			if ev.Column == "" || ev.Metric == "" {
				*defects = append(*defects, Defect{
					Field:   evPath,
					Message: "aggregate evidence requires column and metric",
				})
				continue
			}
			if summary != nil && !hasColumn(summary, ev.Column) {
				*defects = append(*defects, Defect{
					Field:   evPath + ".column",
					Message: fmt.Sprintf("unknown column %q", ev.Column),
				})
			}
		case models.EvidenceRow:
			if ev.RowIndex == nil {
				*defects = append(*defects, Defect{
					Field:   evPath,
					Message: "row evidence requires row_index",
				})
				continue
			}
			if summary != nil && (*ev.RowIndex < 0 || *ev.RowIndex >= len(summary.PreviewRows)) {
				*defects = append(*defects, Defect{
					Field:   evPath + ".row_index",
					Message: fmt.Sprintf("row_index %d out of range [0, %d)", *ev.RowIndex, len(summary.PreviewRows)),
				})
			}
		case models.EvidenceText:
			if strings.TrimSpace(ev.Text) == "" {
				*defects = append(*defects, Defect{
					Field:   evPath,
					Message: "text evidence requires non-empty text",
				})
			}
		default:
			*defects = append(*defects, Defect{
				Field:   evPath + ".type",
				Message: fmt.Sprintf("unknown evidence type %q", ev.Type),
			})
		}
	}
}

func hasColumn(summary *models.DatasetSummary, name string) bool {
	for _, c := range summary.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// stripCodeFence removes a surrounding markdown code fence, which models
// add despite instructions
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
