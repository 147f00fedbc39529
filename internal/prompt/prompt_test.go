package prompt

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
)

func testFS(templates map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range templates {
		fsys[name+".txt"] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestBuiltinTemplatesLoad(t *testing.T) {
	for _, version := range []string{"v1_baseline", "v2_hierarchical", "v3_high_recall"} {
		t.Run(version, func(t *testing.T) {
			b, err := NewBuilder(nil, version)
			if err != nil {
				t.Fatalf("NewBuilder(%q): %v", version, err)
			}
			if !b.Requires("text") {
				t.Errorf("template %q does not reference {text}", version)
			}
			fields := Fields{"text": "hello", "policy_context": "policy"}
			out, err := b.Build(fields)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !strings.Contains(out, `"label"`) {
				t.Errorf("rendered prompt lost its literal JSON example:\n%s", out)
			}
		})
	}
}

func TestNewBuilder_NotFound(t *testing.T) {
	tests := []string{"v9_missing", "", "../etc/passwd"}
	for _, version := range tests {
		t.Run(version, func(t *testing.T) {
			_, err := NewBuilder(testFS(nil), version)
			if !errors.Is(err, ErrTemplateNotFound) {
				t.Fatalf("expected ErrTemplateNotFound, got %v", err)
			}
		})
	}
}

func TestBuild_Substitutes(t *testing.T) {
	b, err := NewBuilder(testFS(map[string]string{
		"v1": "Classify: {text}\nPolicy: {policy_context}\nMax: {limit}",
	}), "v1")
	if err != nil {
		t.Fatal(err)
	}

	got, err := b.Build(Fields{"text": "buy now", "policy_context": "no scams", "limit": 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := "Classify: buy now\nPolicy: no scams\nMax: 3"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_BracesInCallerTextRoundTrip(t *testing.T) {
	b, err := NewBuilder(testFS(map[string]string{
		"v1": `Respond as {{"label": 0}}. Content: {text}`,
	}), "v1")
	if err != nil {
		t.Fatal(err)
	}

	inputs := []string{
		`{"returns": "40%", "risk": null}`,
		`}{`,
		`{text}`,
		`{{double}}`,
		`func main() { fmt.Println("}") }`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := b.Build(Fields{"text": in})
			if err != nil {
				t.Fatalf("Build(%q): %v", in, err)
			}
			want := `Respond as {"label": 0}. Content: ` + in
			if got != want {
				t.Errorf("Build(%q) =\n  %q\nwant:\n  %q", in, got, want)
			}
		})
	}
}

func TestBuild_MissingPlaceholder(t *testing.T) {
	b, err := NewBuilder(testFS(map[string]string{
		"v2": "{policy_context}\n{text}",
	}), "v2")
	if err != nil {
		t.Fatal(err)
	}

	_, err = b.Build(Fields{"text": "hello"})
	if !errors.Is(err, ErrMissingPlaceholder) {
		t.Fatalf("expected ErrMissingPlaceholder, got %v", err)
	}
	if !strings.Contains(err.Error(), "policy_context") || !strings.Contains(err.Error(), "v2") {
		t.Errorf("error should name the field and version: %v", err)
	}
}

func TestBuild_MalformedTemplate(t *testing.T) {
	tests := map[string]string{
		"unterminated": "Content: {text",
		"lone close":   "Content: } {text}",
		"empty field":  "Content: {}",
		"nested open":  "Content: {te{xt}",
	}
	for name, tmpl := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := NewBuilder(testFS(map[string]string{"bad": tmpl}), "bad")
			if err != nil {
				t.Fatal(err)
			}
			_, err = b.Build(Fields{"text": "x"})
			if !errors.Is(err, ErrTemplateRender) {
				t.Fatalf("expected ErrTemplateRender, got %v", err)
			}
			if errors.Is(err, ErrMissingPlaceholder) {
				t.Errorf("malformed template must not report a missing placeholder")
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	b, err := NewBuilder(testFS(map[string]string{
		"v1": "{text} {{literal}} {policy_context} {text}",
	}), "v1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"text", "policy_context"}
	if diff := cmp.Diff(want, b.Placeholders()); diff != "" {
		t.Errorf("Placeholders mismatch (-want +got):\n%s", diff)
	}
	if b.Requires("rationale") {
		t.Errorf("Requires(rationale) = true, want false")
	}
	if b.Version() != "v1" {
		t.Errorf("Version() = %q", b.Version())
	}
}

func TestBuild_NilValueRendersEmpty(t *testing.T) {
	b, err := NewBuilder(testFS(map[string]string{"v1": "[{text}]"}), "v1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Build(Fields{"text": nil})
	if err != nil {
		t.Fatal(err)
	}
	if got != "[]" {
		t.Errorf("Build = %q, want %q", got, "[]")
	}
}
