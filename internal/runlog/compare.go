package runlog

import (
	"math"
	"sort"

	"github.com/timvw/risk-patrol/internal/model"
)

// Dataset names used when comparing gold and drift runs.
const (
	DatasetGold  = "gold"
	DatasetDrift = "drift"
)

// LatestByVersion returns the most recent record per prompt version for
// dataset, sorted by prompt version. Ties on timestamp go to the record
// appended last.
func LatestByVersion(records []model.RunRecord, dataset string) []model.RunRecord {
	latest := make(map[string]model.RunRecord)
	for _, r := range records {
		if r.Dataset != dataset {
			continue
		}
		prev, ok := latest[r.PromptVersion]
		if !ok || !r.Timestamp.Before(prev.Timestamp) {
			latest[r.PromptVersion] = r
		}
	}
	result := make([]model.RunRecord, 0, len(latest))
	for _, r := range latest {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PromptVersion < result[j].PromptVersion
	})
	return result
}

// Drift compares the latest gold and drift runs of one prompt version.
type Drift struct {
	PromptVersion     string  `json:"prompt_version"`
	GoldRecall        float64 `json:"gold_recall"`
	DriftRecall       float64 `json:"drift_recall"`
	RecallDrop        float64 `json:"recall_drop"`
	GoldHSRecall      float64 `json:"gold_hs_recall"`
	DriftHSRecall     float64 `json:"drift_hs_recall"`
	HSRecallDrop      float64 `json:"hs_recall_drop"`
	GoldP95LatencyMs  float64 `json:"gold_p95_latency_ms"`
	DriftP95LatencyMs float64 `json:"drift_p95_latency_ms"`
}

// CompareDrift joins the latest gold and drift run per prompt version.
// Versions missing either dataset are left out. Drops are gold minus drift,
// rounded to 3 decimal places.
func CompareDrift(records []model.RunRecord) []Drift {
	drift := make(map[string]model.RunRecord)
	for _, r := range LatestByVersion(records, DatasetDrift) {
		drift[r.PromptVersion] = r
	}

	var result []Drift
	for _, g := range LatestByVersion(records, DatasetGold) {
		d, ok := drift[g.PromptVersion]
		if !ok {
			continue
		}
		result = append(result, Drift{
			PromptVersion:     g.PromptVersion,
			GoldRecall:        g.Recall,
			DriftRecall:       d.Recall,
			RecallDrop:        round3(g.Recall - d.Recall),
			GoldHSRecall:      g.HighSeverityRecall,
			DriftHSRecall:     d.HighSeverityRecall,
			HSRecallDrop:      round3(g.HighSeverityRecall - d.HighSeverityRecall),
			GoldP95LatencyMs:  g.P95LatencyMs,
			DriftP95LatencyMs: d.P95LatencyMs,
		})
	}
	return result
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// Thresholds are the operational targets a run is reported against.
type Thresholds struct {
	HighSeverityRecall float64
	P95LatencyMs       float64
}

// DefaultThresholds returns the standard targets.
func DefaultThresholds() Thresholds {
	return Thresholds{HighSeverityRecall: 0.85, P95LatencyMs: 6000}
}

// ThresholdReport is an informational pass/fail summary. Nothing in the
// classification path acts on it.
type ThresholdReport struct {
	HighSeverityRecallOK bool `json:"high_severity_recall_ok"`
	P95LatencyOK         bool `json:"p95_latency_ok"`
}

// Pass reports whether every threshold was met.
func (r ThresholdReport) Pass() bool {
	return r.HighSeverityRecallOK && r.P95LatencyOK
}

// CheckThresholds compares m against t.
func CheckThresholds(m model.Metrics, t Thresholds) ThresholdReport {
	return ThresholdReport{
		HighSeverityRecallOK: m.HighSeverityRecall >= t.HighSeverityRecall,
		P95LatencyOK:         m.P95LatencyMs <= t.P95LatencyMs,
	}
}
