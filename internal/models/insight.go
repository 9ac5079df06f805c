// -----------------------------------------------------------------------
// Insight - one analyst- or business-facing finding produced per job
// -----------------------------------------------------------------------

package models

// Severity is the closed severity enum for insights. Arbitrary model
// output is mapped onto it by the validator; unmapped values are defects.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// EvidenceType discriminates the evidence union
type EvidenceType string

const (
	// EvidenceAggregate references a computed aggregate (column + metric)
	EvidenceAggregate EvidenceType = "aggregate"
	// EvidenceRow references a row in the summary's preview rows
	EvidenceRow EvidenceType = "row"
	// EvidenceText is a free-text observation
	EvidenceText EvidenceType = "text"
)

// Evidence is a tagged union: exactly the fields for its Type are set.
// Row evidence must index into the summary's preview rows - an
// out-of-range index is a validation defect.
type Evidence struct {
	Type EvidenceType `json:"type" validate:"required,oneof=aggregate row text"`

	// Aggregate reference
	Column string `json:"column,omitempty"`
	Metric string `json:"metric,omitempty"` // "missing_count", "mean", "max", ...
	Value  string `json:"value,omitempty"`

	// Row reference
	RowIndex *int `json:"row_index,omitempty"`

	// Free text
	Text string `json:"text,omitempty"`
}

// Insight is one finding
type Insight struct {
	ID             string     `json:"id" validate:"required"`
	Title          string     `json:"title" validate:"required,max=200"`
	Summary        string     `json:"summary" validate:"required"`
	Severity       Severity   `json:"severity" validate:"required,oneof=info warning critical"`
	Evidence       []Evidence `json:"evidence" validate:"required,min=1,dive"`
	Recommendation string     `json:"recommendation,omitempty"`
}

// Issue records a non-fatal condition attached to a completed job,
// e.g. that insights came from the fallback path
type Issue struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// InsightReport groups the generated insights with their provenance
type InsightReport struct {
	AnalystInsights  []Insight `json:"analyst_insights"`
	BusinessInsights []Insight `json:"business_insights"`
	Issues           []Issue   `json:"issues,omitempty"`

	// Provenance
	Provider   string `json:"provider,omitempty"`   // "claude", "gemini", or "fallback"
	Model      string `json:"model,omitempty"`
	PromptHash string `json:"prompt_hash,omitempty"` // First 16 hex chars of SHA-256
	Repaired   bool   `json:"repaired,omitempty"`    // True when the repair call fixed the structure
	Fallback   bool   `json:"fallback,omitempty"`    // True when the deterministic generator was used
}

// AllInsights returns analyst then business insights in one slice
func (r *InsightReport) AllInsights() []Insight {
	out := make([]Insight, 0, len(r.AnalystInsights)+len(r.BusinessInsights))
	out = append(out, r.AnalystInsights...)
	out = append(out, r.BusinessInsights...)
	return out
}
