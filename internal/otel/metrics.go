package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "risk-patrol"

// Metrics holds all OTEL metric instruments for risk-patrol.
// All instruments are safe for concurrent use, and every Record method is a
// no-op on a nil *Metrics.
type Metrics struct {
	// LLM token counters (partitioned by provider + model via attributes)
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// LLM call counters
	Retries      metric.Int64Counter
	CallDuration metric.Float64Histogram

	// Classification outcomes (ok, parse_error)
	Classifications metric.Int64Counter

	// Evaluation runs (partitioned by prompt version + dataset)
	EvalRuns metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.Retries, err = meter.Int64Counter("llm.retries",
		metric.WithDescription("Number of LLM calls retried after a transient overload or rate-limit error"))
	if err != nil {
		return nil, err
	}

	m.CallDuration, err = meter.Float64Histogram("llm.call.duration",
		metric.WithDescription("Wall-clock duration of a single LLM provider call"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	m.Classifications, err = meter.Int64Counter("classifications.total",
		metric.WithDescription("Total classifications partitioned by outcome (ok, parse_error)"))
	if err != nil {
		return nil, err
	}

	m.EvalRuns, err = meter.Int64Counter("eval.runs",
		metric.WithDescription("Completed evaluation runs partitioned by prompt version and dataset"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func llmAttrs(provider, model string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
}

// RecordTokens records LLM token usage on the metric counters.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := llmAttrs(provider, model)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordRetry records one retried LLM call.
func (m *Metrics) RecordRetry(ctx context.Context, provider, model string) {
	if m == nil {
		return
	}
	m.Retries.Add(ctx, 1, llmAttrs(provider, model))
}

// RecordCall records the duration of one provider call.
func (m *Metrics) RecordCall(ctx context.Context, provider, model string, ms float64) {
	if m == nil {
		return
	}
	m.CallDuration.Record(ctx, ms, llmAttrs(provider, model))
}

// RecordClassification records a classification with the given outcome.
func (m *Metrics) RecordClassification(ctx context.Context, promptVersion, outcome string) {
	if m == nil {
		return
	}
	m.Classifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("prompt.version", promptVersion),
		attribute.String("classification.outcome", outcome),
	))
}

// RecordEvalRun records a completed evaluation run.
func (m *Metrics) RecordEvalRun(ctx context.Context, promptVersion, dataset string) {
	if m == nil {
		return
	}
	m.EvalRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("prompt.version", promptVersion),
		attribute.String("eval.dataset", dataset),
	))
}
