package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/timvw/risk-patrol/internal/model"
)

// parseErrorRationale explains the fail-closed verdict.
const parseErrorRationale = "Model output parsing failed; escalated for safety."

// ParseResult is the outcome of decoding model output. Exactly one of
// Record or Ambiguous is meaningful: an ambiguous result carries no record.
type ParseResult struct {
	// Record holds the decoded keys. Only keys the model actually sent are present.
	Record map[string]any
	// Ambiguous is true when the output could not be decoded.
	Ambiguous bool
}

// Parse decodes model output as a JSON object. It first tries the whole
// text, then the span from the first '{' to the last '}'. If neither
// decodes to an object the result is Ambiguous.
func Parse(text string) ParseResult {
	if rec, ok := decodeObject(text); ok {
		return ParseResult{Record: rec}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if rec, ok := decodeObject(text[start : end+1]); ok {
			return ParseResult{Record: rec}
		}
	}
	return ParseResult{Ambiguous: true}
}

func decodeObject(s string) (map[string]any, bool) {
	var rec map[string]any
	if err := json.Unmarshal([]byte(s), &rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

// failClosed returns the verdict used whenever output is ambiguous. The
// label is always a violation so unreadable output is escalated, never allowed.
func failClosed() model.Verdict {
	return model.Verdict{
		Label:       model.LabelViolation,
		Domain:      model.Domain,
		Category:    model.CategoryNone,
		Violation:   model.ViolationParseError,
		Severity:    model.SeverityMedium,
		Enforcement: model.EnforcementEscalateReview,
		Rationale:   parseErrorRationale,
	}
}

// toVerdict merges a decoded record over the fail-closed defaults. Keys the
// record contains (and that are not null) win; absent keys keep the default.
// A label that cannot be read as 0 or 1 makes the whole record ambiguous.
// Severity and enforcement values outside their enums keep the default.
func toVerdict(rec map[string]any) (model.Verdict, bool) {
	v := failClosed()

	if raw, ok := rec["label"]; ok && raw != nil {
		label, ok := asLabel(raw)
		if !ok {
			return failClosed(), false
		}
		v.Label = label
	}

	strFields := map[string]*string{
		"category":    &v.Category,
		"violation":   &v.Violation,
		"severity":    &v.Severity,
		"enforcement": &v.Enforcement,
		"rationale":   &v.Rationale,
	}
	for key, dst := range strFields {
		if raw, ok := rec[key]; ok && raw != nil {
			*dst = asString(raw)
		}
	}

	defaults := failClosed()
	v.Severity = strings.ToLower(strings.TrimSpace(v.Severity))
	if !model.IsValidSeverity(v.Severity) {
		v.Severity = defaults.Severity
	}
	v.Enforcement = strings.ToLower(strings.TrimSpace(v.Enforcement))
	if !model.IsValidEnforcement(v.Enforcement) {
		v.Enforcement = defaults.Enforcement
	}
	return v, true
}

func asLabel(raw any) (int, bool) {
	switch x := raw.(type) {
	case float64:
		if x == 0 || x == 1 {
			return int(x), true
		}
	case bool:
		if x {
			return model.LabelViolation, true
		}
		return model.LabelBenign, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && (f == 0 || f == 1) {
			return int(f), true
		}
	}
	return 0, false
}

func asString(raw any) string {
	switch x := raw.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
