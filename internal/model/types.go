package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Domain is the risk domain every verdict is classified under.
const Domain = "financial_integrity"

// Label values.
const (
	LabelBenign    = 0
	LabelViolation = 1
)

// Severity levels.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Enforcement actions.
const (
	EnforcementAllow          = "allow"
	EnforcementEscalateReview = "escalate_review"
	EnforcementRemove         = "remove"
)

// CategoryNone is the category sentinel for content outside the taxonomy.
const CategoryNone = "none"

// ViolationParseError marks a verdict produced by the fail-closed default
// after the model output could not be decoded.
const ViolationParseError = "PARSE_ERROR"

// Verdict is the structured classification result for one piece of content.
type Verdict struct {
	// Label is 0 for benign content, 1 for a violation.
	Label int `json:"label"`
	// Domain is always Domain for this deployment.
	Domain string `json:"domain"`
	// Category is a taxonomy category code (e.g., "investment_scam") or "none".
	Category string `json:"category"`
	// Violation is the specific violation code (e.g., "GUARANTEED_RETURN"),
	// or ViolationParseError.
	Violation string `json:"violation"`
	// Severity is one of low, medium, high.
	Severity string `json:"severity"`
	// Enforcement is one of allow, escalate_review, remove.
	Enforcement string `json:"enforcement"`
	// Rationale is the model's concise explanation.
	Rationale string `json:"rationale"`
	// PromptVersion identifies the template used (e.g., "v2_hierarchical").
	PromptVersion string `json:"prompt_version"`
	// LatencyMs is the wall-clock time of the model call, rounded to 2 dp.
	LatencyMs float64 `json:"latency_ms"`

	// Usage tracks token consumption. Populated by the client, never decoded
	// from the model's record.
	Usage TokenUsage `json:"usage,omitempty"`
}

// IsParseError reports whether the verdict is the fail-closed parse default.
func (v Verdict) IsParseError() bool {
	return v.Violation == ViolationParseError
}

// TokenUsage tracks LLM token consumption for a single call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Case is one labeled record of an evaluation dataset.
type Case struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Label    int    `json:"label"`
	Severity string `json:"severity"`
}

// UnmarshalJSON decodes a case and rejects records without a label key,
// which would otherwise read as benign.
func (c *Case) UnmarshalJSON(data []byte) error {
	type plain Case
	aux := struct {
		*plain
		Label *int `json:"label"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Label == nil {
		return fmt.Errorf("label is required")
	}
	c.Label = *aux.Label
	return nil
}

// Validate checks that the case carries every field the evaluator needs.
func (c Case) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if c.Label != LabelBenign && c.Label != LabelViolation {
		return fmt.Errorf("invalid label %d (want 0 or 1)", c.Label)
	}
	if !IsValidSeverity(c.Severity) {
		return fmt.Errorf("invalid severity %q", c.Severity)
	}
	return nil
}

// IsValidSeverity reports whether s is a known severity level.
func IsValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// IsValidEnforcement reports whether s is a known enforcement action.
func IsValidEnforcement(s string) bool {
	switch s {
	case EnforcementAllow, EnforcementEscalateReview, EnforcementRemove:
		return true
	default:
		return false
	}
}

// CaseResult joins one case with the verdict produced for it.
type CaseResult struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	TrueLabel    int    `json:"true_label"`
	TrueSeverity string `json:"true_severity"`

	Verdict Verdict `json:"verdict"`

	Correct         bool `json:"correct"`
	IsFalseNegative bool `json:"is_false_negative"`
	IsFalsePositive bool `json:"is_false_positive"`
}

// NewCaseResult derives the correctness flags for a classified case.
func NewCaseResult(c Case, v Verdict) CaseResult {
	return CaseResult{
		ID:              c.ID,
		Text:            c.Text,
		TrueLabel:       c.Label,
		TrueSeverity:    c.Severity,
		Verdict:         v,
		Correct:         v.Label == c.Label,
		IsFalseNegative: c.Label == LabelViolation && v.Label == LabelBenign,
		IsFalsePositive: c.Label == LabelBenign && v.Label == LabelViolation,
	}
}

// Metrics is the aggregate quality summary of one evaluation run.
type Metrics struct {
	PromptVersion string `json:"prompt_version"`
	Dataset       string `json:"dataset"`
	DatasetSize   int    `json:"dataset_size"`

	Precision          float64 `json:"precision"`
	Recall             float64 `json:"recall"`
	F1                 float64 `json:"f1"`
	HighSeverityRecall float64 `json:"high_severity_recall"`

	HighSeverityFNCount int `json:"high_severity_fn_count"`
	ParseErrorCount     int `json:"parse_error_count"`

	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TN int `json:"tn"`

	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// RunRecord is one line of the append-only evaluation log.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Metrics
}
