package evaluator

import (
	"math"
	"sort"

	"github.com/timvw/risk-patrol/internal/model"
)

// ComputeMetrics scores a finished run. Ratios are rounded to 4 decimal
// places and latencies to 1. Any ratio whose denominator is zero is 0, and
// an empty result set yields all-zero metrics.
func ComputeMetrics(results []model.CaseResult, promptVersion, dataset string) model.Metrics {
	m := model.Metrics{
		PromptVersion: promptVersion,
		Dataset:       dataset,
		DatasetSize:   len(results),
	}
	if len(results) == 0 {
		return m
	}

	var hsTP, hsFN int
	latencies := make([]float64, 0, len(results))
	for _, r := range results {
		predicted := r.Verdict.Label
		switch {
		case r.TrueLabel == model.LabelViolation && predicted == model.LabelViolation:
			m.TP++
		case r.TrueLabel == model.LabelBenign && predicted == model.LabelViolation:
			m.FP++
		case r.TrueLabel == model.LabelViolation && predicted == model.LabelBenign:
			m.FN++
		case r.TrueLabel == model.LabelBenign && predicted == model.LabelBenign:
			m.TN++
		}

		if r.TrueSeverity == model.SeverityHigh && r.TrueLabel == model.LabelViolation {
			if predicted == model.LabelViolation {
				hsTP++
			} else {
				hsFN++
			}
		}
		if r.Verdict.IsParseError() {
			m.ParseErrorCount++
		}
		latencies = append(latencies, r.Verdict.LatencyMs)
	}

	precision := ratio(m.TP, m.TP+m.FP)
	recall := ratio(m.TP, m.TP+m.FN)
	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	m.Precision = round(precision, 4)
	m.Recall = round(recall, 4)
	m.F1 = round(f1, 4)
	m.HighSeverityRecall = round(ratio(hsTP, hsTP+hsFN), 4)
	m.HighSeverityFNCount = hsFN

	sort.Float64s(latencies)
	m.P50LatencyMs = round(percentile(latencies, 0.50), 1)
	m.P95LatencyMs = round(percentile(latencies, 0.95), 1)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
