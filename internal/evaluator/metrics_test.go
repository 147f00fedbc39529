package evaluator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/timvw/risk-patrol/internal/model"
)

func result(trueLabel int, severity string, predicted int, latency float64) model.CaseResult {
	return model.NewCaseResult(
		model.Case{ID: "x", Text: "x", Label: trueLabel, Severity: severity},
		model.Verdict{Label: predicted, Violation: "NONE", LatencyMs: latency},
	)
}

func TestComputeMetrics_Confusion(t *testing.T) {
	var results []model.CaseResult
	for range 3 {
		results = append(results, result(1, "medium", 1, 100))
	}
	results = append(results, result(0, "low", 1, 100))
	results = append(results, result(1, "medium", 0, 100))
	for range 5 {
		results = append(results, result(0, "low", 0, 100))
	}

	m := ComputeMetrics(results, "v1_baseline", "gold")
	if m.TP != 3 || m.FP != 1 || m.FN != 1 || m.TN != 5 {
		t.Fatalf("confusion = %d/%d/%d/%d, want 3/1/1/5", m.TP, m.FP, m.FN, m.TN)
	}
	if m.Precision != 0.75 || m.Recall != 0.75 || m.F1 != 0.75 {
		t.Errorf("precision/recall/f1 = %v/%v/%v, want 0.75 each", m.Precision, m.Recall, m.F1)
	}
	if m.DatasetSize != 10 || m.PromptVersion != "v1_baseline" || m.Dataset != "gold" {
		t.Errorf("labels = %+v", m)
	}
}

func TestComputeMetrics_HighSeverity(t *testing.T) {
	results := []model.CaseResult{
		result(1, "high", 1, 10),
		result(1, "high", 0, 10),
		result(1, "medium", 0, 10),
		result(0, "high", 1, 10),
	}
	m := ComputeMetrics(results, "v", "gold")
	if m.HighSeverityRecall != 0.5 {
		t.Errorf("HighSeverityRecall = %v, want 0.5", m.HighSeverityRecall)
	}
	if m.HighSeverityFNCount != 1 {
		t.Errorf("HighSeverityFNCount = %d, want 1", m.HighSeverityFNCount)
	}
}

func TestComputeMetrics_ZeroDenominators(t *testing.T) {
	results := []model.CaseResult{
		result(0, "low", 0, 10),
		result(0, "low", 0, 20),
	}
	m := ComputeMetrics(results, "v", "gold")
	if m.Precision != 0 || m.Recall != 0 || m.F1 != 0 || m.HighSeverityRecall != 0 {
		t.Errorf("expected zero ratios, got %+v", m)
	}
	if m.TN != 2 {
		t.Errorf("TN = %d, want 2", m.TN)
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	got := ComputeMetrics(nil, "v2_hierarchical", "drift")
	want := model.Metrics{PromptVersion: "v2_hierarchical", Dataset: "drift"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeMetrics_ParseErrors(t *testing.T) {
	parseErr := model.NewCaseResult(
		model.Case{ID: "p", Text: "p", Label: 0, Severity: "low"},
		model.Verdict{Label: 1, Violation: model.ViolationParseError},
	)
	m := ComputeMetrics([]model.CaseResult{parseErr, result(1, "high", 1, 0)}, "v", "gold")
	if m.ParseErrorCount != 1 {
		t.Errorf("ParseErrorCount = %d, want 1", m.ParseErrorCount)
	}
	if m.FP != 1 {
		t.Errorf("a fail-closed verdict on benign content counts as a false positive; FP = %d", m.FP)
	}
}

func TestComputeMetrics_Latency(t *testing.T) {
	var results []model.CaseResult
	// Deliberately unsorted.
	for _, ms := range []float64{700, 100, 1000, 300, 500, 200, 900, 400, 800, 600} {
		results = append(results, result(0, "low", 0, ms))
	}
	m := ComputeMetrics(results, "v", "gold")
	if m.P50LatencyMs != 550 {
		t.Errorf("P50LatencyMs = %v, want 550", m.P50LatencyMs)
	}
	if m.P95LatencyMs != 955 {
		t.Errorf("P95LatencyMs = %v, want 955", m.P95LatencyMs)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		values []float64
		q      float64
		want   float64
	}{
		{nil, 0.5, 0},
		{[]float64{42}, 0.95, 42},
		{[]float64{10, 20}, 0.5, 15},
		{[]float64{1, 2, 3, 4, 5}, 0.5, 3},
		{[]float64{1, 2, 3, 4, 5}, 1, 5},
	}
	for _, tt := range tests {
		if got := percentile(tt.values, tt.q); got != tt.want {
			t.Errorf("percentile(%v, %v) = %v, want %v", tt.values, tt.q, got, tt.want)
		}
	}
}
