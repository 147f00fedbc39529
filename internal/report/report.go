// Package report renders evaluation metrics and run history for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/timvw/risk-patrol/internal/model"
	"github.com/timvw/risk-patrol/internal/runlog"
)

// Mode controls the table output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps a --format value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "table", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return ASCII, fmt.Errorf("unknown table format %q (supported: table, markdown)", s)
	}
}

// Renderer formats reports in one Mode and Theme.
type Renderer struct {
	mode   Mode
	styles styles
}

// NewRenderer returns a Renderer for mode styled with theme.
func NewRenderer(mode Mode, theme Theme) *Renderer {
	return &Renderer{mode: mode, styles: newStyles(theme)}
}

func (r *Renderer) newTable() table.Writer {
	w := table.NewWriter()
	if r.mode == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func (r *Renderer) render(w table.Writer) string {
	if r.mode == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// Metrics renders one run's metrics as a two-column table.
func (r *Renderer) Metrics(m model.Metrics) string {
	w := r.newTable()
	w.SetTitle(fmt.Sprintf("%s on %s (%d cases)", m.PromptVersion, m.Dataset, m.DatasetSize))
	w.AppendHeader(table.Row{"Metric", "Value"})
	w.AppendRows([]table.Row{
		{"precision", ratio(m.Precision)},
		{"recall", ratio(m.Recall)},
		{"f1", ratio(m.F1)},
		{"high-severity recall", ratio(m.HighSeverityRecall)},
		{"high-severity FN", m.HighSeverityFNCount},
		{"parse errors", m.ParseErrorCount},
		{"tp / fp / fn / tn", fmt.Sprintf("%d / %d / %d / %d", m.TP, m.FP, m.FN, m.TN)},
		{"p50 latency (ms)", latency(m.P50LatencyMs)},
		{"p95 latency (ms)", latency(m.P95LatencyMs)},
	})
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return r.render(w)
}

// Runs renders logged runs, one row each, in the order given.
func (r *Renderer) Runs(records []model.RunRecord) string {
	w := r.newTable()
	w.AppendHeader(table.Row{"Timestamp", "Version", "Dataset", "Model", "N", "Recall", "HS Recall", "F1", "Parse Err", "p95 ms"})
	for _, rec := range records {
		w.AppendRow(table.Row{
			rec.Timestamp.Format("2006-01-02 15:04"),
			rec.PromptVersion,
			rec.Dataset,
			rec.Model,
			rec.DatasetSize,
			ratio(rec.Recall),
			ratio(rec.HighSeverityRecall),
			ratio(rec.F1),
			rec.ParseErrorCount,
			latency(rec.P95LatencyMs),
		})
	}
	w.AppendFooter(table.Row{"", "", "", "runs", len(records)})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	return r.render(w)
}

// Drift renders the gold-versus-drift comparison per prompt version.
func (r *Renderer) Drift(drifts []runlog.Drift) string {
	w := r.newTable()
	w.AppendHeader(table.Row{"Version", "Gold Recall", "Drift Recall", "Recall Drop", "Gold HS", "Drift HS", "HS Drop"})
	for _, d := range drifts {
		w.AppendRow(table.Row{
			d.PromptVersion,
			ratio(d.GoldRecall),
			ratio(d.DriftRecall),
			fmt.Sprintf("%.3f", d.RecallDrop),
			ratio(d.GoldHSRecall),
			ratio(d.DriftHSRecall),
			fmt.Sprintf("%.3f", d.HSRecallDrop),
		})
	}
	return r.render(w)
}

// Thresholds renders a styled one-line status per threshold.
func (r *Renderer) Thresholds(m model.Metrics, t runlog.Thresholds) string {
	rep := runlog.CheckThresholds(m, t)
	var b strings.Builder
	b.WriteString(r.styles.title.Render("Thresholds"))
	b.WriteString("\n")
	b.WriteString(r.status(rep.HighSeverityRecallOK,
		fmt.Sprintf("high-severity recall %s (target >= %s)", ratio(m.HighSeverityRecall), ratio(t.HighSeverityRecall))))
	b.WriteString("\n")
	b.WriteString(r.status(rep.P95LatencyOK,
		fmt.Sprintf("p95 latency %s ms (target <= %s ms)", latency(m.P95LatencyMs), latency(t.P95LatencyMs))))
	b.WriteString("\n")
	if m.ParseErrorCount > 0 {
		b.WriteString(r.styles.warn.Render(fmt.Sprintf("  %d verdicts escalated after unparseable output", m.ParseErrorCount)))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) status(ok bool, msg string) string {
	if ok {
		return "  " + r.styles.pass.Render("PASS") + " " + r.styles.dim.Render(msg)
	}
	return "  " + r.styles.fail.Render("FAIL") + " " + r.styles.dim.Render(msg)
}

func ratio(f float64) string {
	return fmt.Sprintf("%.4f", f)
}

func latency(f float64) string {
	return fmt.Sprintf("%.1f", f)
}
