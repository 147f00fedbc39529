package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCaseValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Case
		wantErr bool
	}{
		{
			name: "valid violation",
			c:    Case{ID: "g1", Text: "guaranteed returns", Label: 1, Severity: "high"},
		},
		{
			name: "valid benign",
			c:    Case{ID: "g2", Text: "index funds carry risk", Label: 0, Severity: "low"},
		},
		{
			name:    "missing id",
			c:       Case{Text: "x", Label: 0, Severity: "low"},
			wantErr: true,
		},
		{
			name:    "blank text",
			c:       Case{ID: "g3", Text: "   ", Label: 0, Severity: "low"},
			wantErr: true,
		},
		{
			name:    "label out of range",
			c:       Case{ID: "g4", Text: "x", Label: 2, Severity: "low"},
			wantErr: true,
		},
		{
			name:    "unknown severity",
			c:       Case{ID: "g5", Text: "x", Label: 1, Severity: "critical"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCaseUnmarshal_RequiresLabel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "violation", input: `{"id": "c1", "text": "x", "label": 1, "severity": "high"}`, want: 1},
		{name: "explicit benign", input: `{"id": "c2", "text": "x", "label": 0, "severity": "low"}`, want: 0},
		{name: "missing label", input: `{"id": "c3", "text": "send me $500 and I'll double it", "severity": "high"}`, wantErr: true},
		{name: "null label", input: `{"id": "c4", "text": "x", "label": null, "severity": "high"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Case
			err := json.Unmarshal([]byte(tt.input), &c)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "label is required") {
					t.Fatalf("err = %v, want label is required", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c.Label != tt.want || c.ID == "" || c.Severity == "" {
				t.Errorf("decoded %+v", c)
			}
		})
	}
}

func TestNewCaseResult_Flags(t *testing.T) {
	tests := []struct {
		name      string
		trueLabel int
		predLabel int
		correct   bool
		fn        bool
		fp        bool
	}{
		{name: "true positive", trueLabel: 1, predLabel: 1, correct: true},
		{name: "true negative", trueLabel: 0, predLabel: 0, correct: true},
		{name: "false negative", trueLabel: 1, predLabel: 0, fn: true},
		{name: "false positive", trueLabel: 0, predLabel: 1, fp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCaseResult(
				Case{ID: "c", Text: "t", Label: tt.trueLabel, Severity: SeverityLow},
				Verdict{Label: tt.predLabel},
			)
			if r.Correct != tt.correct || r.IsFalseNegative != tt.fn || r.IsFalsePositive != tt.fp {
				t.Errorf("flags = (correct=%v fn=%v fp=%v), want (%v %v %v)",
					r.Correct, r.IsFalseNegative, r.IsFalsePositive, tt.correct, tt.fn, tt.fp)
			}
		})
	}
}

func TestVerdict_LabelZeroInJSON(t *testing.T) {
	// Label=0 is the benign verdict and must never be dropped from output.
	v := Verdict{Label: LabelBenign, Domain: Domain, Category: CategoryNone}

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(data), `"label":0`) {
		t.Errorf("JSON output missing \"label\":0, got: %s", string(data))
	}
}

func TestRunRecord_FlattensMetrics(t *testing.T) {
	r := RunRecord{
		RunID:    "run-1",
		Provider: "anthropic",
		Model:    "claude-haiku-4-5",
		Metrics:  Metrics{PromptVersion: "v1_baseline", Dataset: "gold", Recall: 0.75},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	for _, want := range []string{`"prompt_version":"v1_baseline"`, `"dataset":"gold"`, `"recall":0.75`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON output missing %s, got: %s", want, string(data))
		}
	}
}
