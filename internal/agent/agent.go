// Package agent classifies content against the financial-integrity taxonomy.
//
// An Agent renders a prompt, calls the model, and turns the model's text
// into a verdict. Output that cannot be decoded never becomes a benign
// verdict: it is escalated for review with the PARSE_ERROR violation.
package agent

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"

	"github.com/timvw/risk-patrol/internal/llm"
	"github.com/timvw/risk-patrol/internal/logging"
	"github.com/timvw/risk-patrol/internal/model"
	telem "github.com/timvw/risk-patrol/internal/otel"
	"github.com/timvw/risk-patrol/internal/prompt"
)

// Generator produces model output for a prompt. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*llm.Response, error)
}

// Options configures a new Agent.
type Options struct {
	// PromptVersion selects the template. Required.
	PromptVersion string
	// Prompts is where templates are read from. Nil uses the embedded set.
	Prompts fs.FS
	// PolicyContext is used when Classify is called without one.
	PolicyContext string
	// Provider is the model backend. New wraps it in an llm.Client owned by
	// the Agent.
	Provider llm.Provider
	// MaxTokens is the output token budget; zero uses llm.DefaultMaxTokens.
	MaxTokens int64
	// Generator replaces the llm.Client built from Provider.
	Generator Generator
	// Metrics is optional.
	Metrics *telem.Metrics
}

// Agent classifies text with one prompt version and one model client.
type Agent struct {
	builder       *prompt.Builder
	gen           Generator
	version       string
	policyContext string
	metrics       *telem.Metrics
	logger        *slog.Logger
}

// New loads the prompt template and returns an Agent.
func New(opts Options) (*Agent, error) {
	b, err := prompt.NewBuilder(opts.Prompts, opts.PromptVersion)
	if err != nil {
		return nil, err
	}
	gen := opts.Generator
	if gen == nil {
		if opts.Provider == nil {
			return nil, errors.New("agent: a provider or generator is required")
		}
		gen = llm.NewClient(opts.Provider, llm.WithMaxTokens(opts.MaxTokens), llm.WithMetrics(opts.Metrics))
	}
	return &Agent{
		builder:       b,
		gen:           gen,
		version:       opts.PromptVersion,
		policyContext: opts.PolicyContext,
		metrics:       opts.Metrics,
		logger:        logging.New("agent").With("prompt_version", opts.PromptVersion),
	}, nil
}

// PromptVersion returns the template version the agent classifies with.
func (a *Agent) PromptVersion() string {
	return a.version
}

// RequiresPolicyContext reports whether the template needs policy context.
func (a *Agent) RequiresPolicyContext() bool {
	return a.builder.Requires("policy_context")
}

// Classify returns exactly one verdict for text. Prompt and model errors
// are returned unchanged; ambiguous model output yields the fail-closed
// verdict rather than an error.
func (a *Agent) Classify(ctx context.Context, text, policyContext string) (model.Verdict, error) {
	if policyContext == "" {
		policyContext = a.policyContext
	}
	fields := prompt.Fields{"text": text}
	if policyContext != "" {
		fields["policy_context"] = policyContext
	}

	p, err := a.builder.Build(fields)
	if err != nil {
		return model.Verdict{}, err
	}

	resp, err := a.gen.Generate(ctx, p)
	if err != nil {
		return model.Verdict{}, err
	}

	v, ok := a.decide(resp.Text)
	outcome := "ok"
	if !ok {
		outcome = "parse_error"
		a.logger.Warn("model output could not be parsed, escalating", "output_bytes", len(resp.Text))
	}
	a.metrics.RecordClassification(ctx, a.version, outcome)

	v.Domain = model.Domain
	v.PromptVersion = a.version
	v.LatencyMs = math.Round(resp.LatencyMs*100) / 100
	v.Usage = resp.Usage
	return v, nil
}

// decide maps model text to a verdict, reporting false on parse failure.
func (a *Agent) decide(text string) (model.Verdict, bool) {
	res := Parse(text)
	if res.Ambiguous {
		return failClosed(), false
	}
	return toVerdict(res.Record)
}
