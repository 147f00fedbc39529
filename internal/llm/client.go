package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/timvw/risk-patrol/internal/logging"
	"github.com/timvw/risk-patrol/internal/model"
	telem "github.com/timvw/risk-patrol/internal/otel"
)

const (
	// DefaultMaxTokens is the output token budget per request.
	DefaultMaxTokens = 512
	// maxAttempts bounds the total number of provider calls per Generate.
	maxAttempts = 3
)

// transientTerms identify overload and rate-limit failures worth retrying.
var transientTerms = []string{"overloaded", "rate", "429", "529"}

// IsTransient reports whether err looks like a provider overload or
// rate-limit failure. Matching is a case-insensitive substring test on the
// error message, so it works across SDKs without depending on their types.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, term := range transientTerms {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}

// ProviderError is returned when the provider call ultimately fails.
type ProviderError struct {
	Provider string
	Model    string
	// Attempts is the number of calls made before giving up.
	Attempts int
	// Transient is true when the retry budget was exhausted on
	// overload/rate-limit errors.
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Transient {
		return fmt.Sprintf("%s/%s: giving up after %d attempts: %v", e.Provider, e.Model, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Response is the normalized result of one Generate call.
type Response struct {
	// Text is the model output with surrounding whitespace and code fences removed.
	Text string
	// LatencyMs covers only the successful provider call.
	LatencyMs float64
	// Usage is the token usage of the successful call.
	Usage model.TokenUsage
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client invokes a Provider with deterministic sampling and bounded retry.
type Client struct {
	provider  Provider
	maxTokens int64
	sleep     SleepFunc
	now       func() time.Time
	metrics   *telem.Metrics
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxTokens sets the output token budget. Non-positive values are ignored.
func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithSleep replaces the backoff sleep, e.g. with a fake clock in tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithClock replaces the clock used for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithMetrics records call metrics on m.
func WithMetrics(m *telem.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client for p.
func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:  p,
		maxTokens: DefaultMaxTokens,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    logging.New("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends prompt to the provider. Transient failures are retried up
// to three attempts in total, waiting 2^attempt seconds between attempts
// (1s, then 2s). Any other failure is returned immediately. There is no
// fallback text: Generate either returns the model's output or an error.
func (c *Client) Generate(ctx context.Context, prompt string) (*Response, error) {
	req := Request{
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	}
	name, modelName := c.provider.Name(), c.provider.Model()

	for attempt := 0; ; attempt++ {
		start := c.now()
		comp, err := c.provider.Complete(ctx, req)
		elapsed := c.now().Sub(start)

		if err == nil {
			latencyMs := float64(elapsed) / float64(time.Millisecond)
			c.metrics.RecordCall(ctx, name, modelName, latencyMs)
			c.metrics.RecordTokens(ctx, name, modelName, comp.Usage.InputTokens, comp.Usage.OutputTokens)
			return &Response{
				Text:      StripFences(comp.Text),
				LatencyMs: latencyMs,
				Usage:     comp.Usage,
			}, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || !IsTransient(err) {
			return nil, &ProviderError{Provider: name, Model: modelName, Attempts: attempt + 1, Err: err}
		}
		if attempt+1 >= maxAttempts {
			return nil, &ProviderError{Provider: name, Model: modelName, Attempts: attempt + 1, Transient: true, Err: err}
		}

		wait := time.Duration(1<<attempt) * time.Second
		c.logger.Warn("transient provider error, retrying",
			"provider", name, "model", modelName,
			"attempt", attempt+1, "wait", wait, "error", err)
		c.metrics.RecordRetry(ctx, name, modelName)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// sleepContext waits for d, returning early with ctx.Err() on cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StripFences trims whitespace and removes a wrapping markdown code fence
// (with an optional language tag on the opening fence). It is a syntactic
// cleanup only; the content is not interpreted.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")

	// Drop a language tag such as "json" on the opening fence line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && isFenceTag(s[:nl]) {
		s = s[nl+1:]
	} else if nl < 0 && isFenceTag(strings.TrimSuffix(s, "```")) {
		s = ""
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' || r == '+') {
			return false
		}
	}
	return true
}
