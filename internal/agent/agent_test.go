package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/timvw/risk-patrol/internal/llm"
	"github.com/timvw/risk-patrol/internal/model"
	"github.com/timvw/risk-patrol/internal/prompt"
)

// fakeGenerator returns a fixed response and records the prompts it saw.
type fakeGenerator struct {
	text    string
	latency float64
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, p string) (*llm.Response, error) {
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Text: g.text, LatencyMs: g.latency}, nil
}

func newTestAgent(t *testing.T, gen Generator, version string) *Agent {
	t.Helper()
	a, err := New(Options{PromptVersion: version, Generator: gen})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func wantFailClosed(version string, latency float64) model.Verdict {
	return model.Verdict{
		Label:         1,
		Domain:        model.Domain,
		Category:      "none",
		Violation:     "PARSE_ERROR",
		Severity:      "medium",
		Enforcement:   "escalate_review",
		Rationale:     parseErrorRationale,
		PromptVersion: version,
		LatencyMs:     latency,
	}
}

func TestClassify_WellFormedRecord(t *testing.T) {
	gen := &fakeGenerator{
		text:    `{"label": 1, "category": "investment_scam", "violation": "GUARANTEED_RETURN", "severity": "high", "enforcement": "remove", "rationale": "Promises guaranteed returns."}`,
		latency: 812.3456,
	}
	a := newTestAgent(t, gen, "v1_baseline")

	got, err := a.Classify(context.Background(), "guaranteed 40% monthly returns, no risk", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := model.Verdict{
		Label:         1,
		Domain:        model.Domain,
		Category:      "investment_scam",
		Violation:     "GUARANTEED_RETURN",
		Severity:      "high",
		Enforcement:   "remove",
		Rationale:     "Promises guaranteed returns.",
		PromptVersion: "v1_baseline",
		LatencyMs:     812.35,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "guaranteed 40% monthly returns, no risk") {
		t.Errorf("prompt did not include the content: %q", gen.prompts)
	}
}

func TestClassify_UnparseableOutputFailsClosed(t *testing.T) {
	outputs := []string{
		"",
		"I cannot classify this content.",
		"label: 0, benign",
		`{"label": 0, "category": `,
		`prefix {not json} suffix`,
		`[0, 1]`,
		`null`,
		`"benign"`,
		`{"label": "maybe"}`,
		`{"label": 2}`,
		`{"label": [0]}`,
	}
	for _, out := range outputs {
		t.Run(out, func(t *testing.T) {
			a := newTestAgent(t, &fakeGenerator{text: out, latency: 10}, "v1_baseline")
			got, err := a.Classify(context.Background(), "some text", "")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got.Label == model.LabelBenign {
				t.Fatalf("unparseable output produced a benign verdict: %+v", got)
			}
			if diff := cmp.Diff(wantFailClosed("v1_baseline", 10), got); diff != "" {
				t.Errorf("fail-closed verdict mismatch (-want +got):\n%s", diff)
			}
			if !got.IsParseError() {
				t.Errorf("IsParseError() = false")
			}
		})
	}
}

func TestClassify_EmbeddedObjectInProse(t *testing.T) {
	gen := &fakeGenerator{text: "Sure! Here is the classification:\n{\"label\": 0, \"category\": \"none\", \"violation\": \"NONE\", \"severity\": \"low\", \"enforcement\": \"allow\", \"rationale\": \"Educational.\"}\nLet me know if you need more."}
	a := newTestAgent(t, gen, "v1_baseline")

	got, err := a.Classify(context.Background(), "what is an index fund?", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Label != 0 || got.Enforcement != "allow" || got.Violation != "NONE" {
		t.Errorf("verdict = %+v, want benign allow", got)
	}
}

func TestClassify_PartialRecordBackfilled(t *testing.T) {
	gen := &fakeGenerator{text: `{"label": 0, "category": "none", "rationale": "Ordinary savings question."}`}
	a := newTestAgent(t, gen, "v3_high_recall")

	got, err := a.Classify(context.Background(), "how do savings accounts work?", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := model.Verdict{
		Label:         0,
		Domain:        model.Domain,
		Category:      "none",
		Violation:     "PARSE_ERROR",
		Severity:      "medium",
		Enforcement:   "escalate_review",
		Rationale:     "Ordinary savings question.",
		PromptVersion: "v3_high_recall",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("backfilled verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_NullFieldsKeepDefaults(t *testing.T) {
	gen := &fakeGenerator{text: `{"label": null, "severity": null, "category": "payment_fraud"}`}
	a := newTestAgent(t, gen, "v1_baseline")

	got, err := a.Classify(context.Background(), "pay this invoice", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Label != 1 || got.Severity != "medium" || got.Category != "payment_fraud" {
		t.Errorf("verdict = %+v", got)
	}
}

func TestClassify_OutOfEnumValuesKeepDefaults(t *testing.T) {
	tests := []struct {
		record          string
		wantSeverity    string
		wantEnforcement string
	}{
		{`{"label": 0, "severity": "critical", "enforcement": "delete"}`, "medium", "escalate_review"},
		{`{"label": 1, "severity": "HIGH", "enforcement": " Remove "}`, "high", "remove"},
		{`{"label": 0, "severity": 3, "enforcement": "allow"}`, "medium", "allow"},
	}
	for _, tt := range tests {
		t.Run(tt.record, func(t *testing.T) {
			a := newTestAgent(t, &fakeGenerator{text: tt.record}, "v1_baseline")
			got, err := a.Classify(context.Background(), "x", "")
			if err != nil {
				t.Fatal(err)
			}
			if got.Severity != tt.wantSeverity || got.Enforcement != tt.wantEnforcement {
				t.Errorf("severity, enforcement = %q, %q; want %q, %q",
					got.Severity, got.Enforcement, tt.wantSeverity, tt.wantEnforcement)
			}
		})
	}
}

func TestClassify_LabelForms(t *testing.T) {
	tests := []struct {
		record string
		want   int
	}{
		{`{"label": 1}`, 1},
		{`{"label": 0}`, 0},
		{`{"label": 1.0}`, 1},
		{`{"label": true}`, 1},
		{`{"label": false}`, 0},
		{`{"label": "1"}`, 1},
		{`{"label": " 0 "}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.record, func(t *testing.T) {
			a := newTestAgent(t, &fakeGenerator{text: tt.record}, "v1_baseline")
			got, err := a.Classify(context.Background(), "x", "")
			if err != nil {
				t.Fatal(err)
			}
			if got.Label != tt.want {
				t.Errorf("Label = %d, want %d", got.Label, tt.want)
			}
		})
	}
}

func TestClassify_GeneratorErrorPropagates(t *testing.T) {
	cause := &llm.ProviderError{Provider: "fake", Attempts: 3, Transient: true, Err: errors.New("overloaded")}
	gen := &fakeGenerator{err: cause}
	a := newTestAgent(t, gen, "v1_baseline")

	_, err := a.Classify(context.Background(), "x", "")
	if !errors.Is(err, cause) {
		t.Fatalf("expected the generator error unchanged, got %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Errorf("agent must not retry on its own: %d calls", len(gen.prompts))
	}
}

func TestClassify_PolicyContext(t *testing.T) {
	templates := fstest.MapFS{
		"vp.txt": &fstest.MapFile{Data: []byte("Policy: {policy_context}\nContent: {text}")},
	}

	t.Run("missing policy context", func(t *testing.T) {
		gen := &fakeGenerator{text: `{"label": 0}`}
		a, err := New(Options{PromptVersion: "vp", Prompts: templates, Generator: gen})
		if err != nil {
			t.Fatal(err)
		}
		if !a.RequiresPolicyContext() {
			t.Errorf("RequiresPolicyContext() = false")
		}
		_, err = a.Classify(context.Background(), "x", "")
		if !errors.Is(err, prompt.ErrMissingPlaceholder) {
			t.Fatalf("expected ErrMissingPlaceholder, got %v", err)
		}
		if len(gen.prompts) != 0 {
			t.Errorf("model must not be called when the prompt cannot be built")
		}
	})

	t.Run("explicit overrides default", func(t *testing.T) {
		gen := &fakeGenerator{text: `{"label": 0}`}
		a, err := New(Options{PromptVersion: "vp", Prompts: templates, Generator: gen, PolicyContext: "default policy"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := a.Classify(context.Background(), "x", "explicit policy"); err != nil {
			t.Fatal(err)
		}
		if _, err := a.Classify(context.Background(), "y", ""); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(gen.prompts[0], "explicit policy") {
			t.Errorf("first prompt missing explicit policy: %q", gen.prompts[0])
		}
		if !strings.Contains(gen.prompts[1], "default policy") {
			t.Errorf("second prompt missing default policy: %q", gen.prompts[1])
		}
	})
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Options{PromptVersion: "v0_missing", Generator: &fakeGenerator{}}); !errors.Is(err, prompt.ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
	if _, err := New(Options{PromptVersion: "v1_baseline"}); err == nil {
		t.Errorf("expected error without provider or generator")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		ambiguous bool
		wantKeys  []string
	}{
		{name: "direct object", text: `{"label": 1, "severity": "high"}`, wantKeys: []string{"label", "severity"}},
		{name: "object inside prose", text: `Answer: {"label": 0} done`, wantKeys: []string{"label"}},
		{name: "greedy span covers nested braces", text: `x {"a": {"b": 1}} y`, wantKeys: []string{"a"}},
		{name: "two objects is ambiguous", text: `{"label": 0} and {"label": 1}`, ambiguous: true},
		{name: "no braces", text: "benign", ambiguous: true},
		{name: "reversed braces", text: "} {", ambiguous: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if got.Ambiguous != tt.ambiguous {
				t.Fatalf("Ambiguous = %v, want %v", got.Ambiguous, tt.ambiguous)
			}
			for _, k := range tt.wantKeys {
				if _, ok := got.Record[k]; !ok {
					t.Errorf("record missing key %q: %v", k, got.Record)
				}
			}
			if tt.ambiguous && got.Record != nil {
				t.Errorf("ambiguous result carries a record: %v", got.Record)
			}
		})
	}
}
