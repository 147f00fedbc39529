// Package evaluator runs an Agent over a labeled dataset and scores it.
package evaluator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/timvw/risk-patrol/internal/logging"
	"github.com/timvw/risk-patrol/internal/model"
	telem "github.com/timvw/risk-patrol/internal/otel"
)

// DefaultDelay is the pause between consecutive classifications.
const DefaultDelay = 200 * time.Millisecond

// maxLineBytes bounds a single dataset record.
const maxLineBytes = 1024 * 1024

// Classifier produces a verdict for one piece of content. *agent.Agent
// implements it.
type Classifier interface {
	Classify(ctx context.Context, text, policyContext string) (model.Verdict, error)
	PromptVersion() string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Evaluator classifies every case of a dataset, one at a time.
type Evaluator struct {
	classifier Classifier
	delay      time.Duration
	sleep      SleepFunc
	metrics    *telem.Metrics
	logger     *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithDelay sets the pause after each classification. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(e *Evaluator) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithSleep replaces the wait between cases, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Evaluator) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithMetrics records a counter per completed run.
func WithMetrics(m *telem.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// New returns an Evaluator that classifies with c.
func New(c Classifier, opts ...Option) *Evaluator {
	e := &Evaluator{
		classifier: c,
		delay:      DefaultDelay,
		sleep:      sleepContext,
		logger:     logging.New("evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PromptVersion returns the prompt version of the underlying classifier.
func (e *Evaluator) PromptVersion() string {
	return e.classifier.PromptVersion()
}

// Run reads the dataset at path and classifies each case in file order.
// The first failing case aborts the run and no results are returned.
func (e *Evaluator) Run(ctx context.Context, path string) ([]model.CaseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	cases, err := ReadCases(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return e.RunCases(ctx, cases)
}

// RunCases classifies cases sequentially, sleeping the configured delay
// after each one.
func (e *Evaluator) RunCases(ctx context.Context, cases []model.Case) ([]model.CaseResult, error) {
	results := make([]model.CaseResult, 0, len(cases))
	for i, c := range cases {
		v, err := e.classifier.Classify(ctx, c.Text, "")
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.ID, err)
		}
		r := model.NewCaseResult(c, v)
		results = append(results, r)
		e.logger.Debug("classified case",
			"n", i+1,
			"total", len(cases),
			"id", c.ID,
			"true_label", c.Label,
			"label", v.Label,
			"correct", r.Correct,
			"latency_ms", v.LatencyMs,
		)

		if e.delay > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// Evaluate runs the dataset at path and returns its metrics, labelled with
// the dataset name.
func (e *Evaluator) Evaluate(ctx context.Context, path, dataset string) ([]model.CaseResult, model.Metrics, error) {
	results, err := e.Run(ctx, path)
	if err != nil {
		return nil, model.Metrics{}, err
	}
	m := ComputeMetrics(results, e.PromptVersion(), dataset)
	e.metrics.RecordEvalRun(ctx, m.PromptVersion, dataset)
	e.logger.Info("evaluation complete",
		"prompt_version", m.PromptVersion,
		"dataset", dataset,
		"cases", m.DatasetSize,
		"recall", m.Recall,
		"high_severity_recall", m.HighSeverityRecall,
		"parse_errors", m.ParseErrorCount,
	)
	return results, m, nil
}

// ReadCases decodes a JSONL dataset. Blank lines are skipped; a malformed
// or incomplete record fails with its line number.
func ReadCases(r io.Reader) ([]model.Case, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var cases []model.Case
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var c model.Case
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cases = append(cases, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return cases, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
