// Package prompt renders versioned classification prompt templates.
//
// Templates use single-brace placeholders ({text}) with doubled braces
// ({{ and }}) for literal braces. Caller-supplied values are substituted as
// opaque literal segments: braces inside a value are never interpreted as
// template syntax, so pasted JSON or code survives rendering unchanged.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Builtin holds the templates shipped with the binary, one <version>.txt each.
//
//go:embed prompts/*.txt
var builtin embed.FS

// Builtin returns the embedded template set rooted at the template files.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "prompts")
	if err != nil {
		panic(err) // embed path is fixed at compile time
	}
	return sub
}

var (
	// ErrTemplateNotFound is returned when no template exists for a version.
	ErrTemplateNotFound = errors.New("prompt template not found")
	// ErrMissingPlaceholder is returned when the template references a field
	// the caller did not supply.
	ErrMissingPlaceholder = errors.New("missing placeholder")
	// ErrTemplateRender wraps any other rendering failure (malformed template).
	ErrTemplateRender = errors.New("failed to render prompt template")
)

// Fields maps placeholder names to values. Strings are inserted verbatim;
// other scalars are formatted with fmt.Sprint; nil renders as empty.
type Fields map[string]any

// Builder renders one template version. The template is loaded once at
// construction and never changes afterward.
type Builder struct {
	version  string
	template string
}

// NewBuilder loads <version>.txt from fsys.
func NewBuilder(fsys fs.FS, version string) (*Builder, error) {
	if fsys == nil {
		fsys = Builtin()
	}
	name := version + ".txt"
	if version == "" || !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: invalid version %q", ErrTemplateNotFound, version)
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("loading prompt %s: %w", name, err)
	}
	return &Builder{version: version, template: string(data)}, nil
}

// Version returns the template version this builder renders.
func (b *Builder) Version() string {
	return b.version
}

// Placeholders returns the distinct field names the template references,
// in order of first appearance. A malformed template yields the names found
// before the first syntax error.
func (b *Builder) Placeholders() []string {
	segs, _ := parse(b.template)
	var names []string
	seen := make(map[string]bool)
	for _, s := range segs {
		if s.field && !seen[s.text] {
			seen[s.text] = true
			names = append(names, s.text)
		}
	}
	return names
}

// Requires reports whether the template references the named field.
func (b *Builder) Requires(name string) bool {
	for _, p := range b.Placeholders() {
		if p == name {
			return true
		}
	}
	return false
}

// Build renders the template with the given fields.
func (b *Builder) Build(fields Fields) (string, error) {
	segs, err := parse(b.template)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrTemplateRender, b.version, err)
	}

	var out strings.Builder
	for _, s := range segs {
		if !s.field {
			out.WriteString(s.text)
			continue
		}
		v, ok := fields[s.text]
		if !ok {
			return "", fmt.Errorf("%w in prompt template %q: %s", ErrMissingPlaceholder, b.version, s.text)
		}
		out.WriteString(literal(v))
	}
	return out.String(), nil
}

// literal converts a caller value into text that is written to the output
// as-is, bypassing template parsing.
func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

type segment struct {
	text  string
	field bool
}

// parse splits a template into literal text and field references.
func parse(tmpl string) ([]segment, error) {
	var segs []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] != '}' {
				return segs, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			if name == "" {
				return segs, fmt.Errorf("empty placeholder at offset %d", i)
			}
			flush()
			segs = append(segs, segment{text: name, field: true})
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return segs, fmt.Errorf("single '}' encountered at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return segs, nil
}
