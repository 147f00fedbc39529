package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/timvw/risk-patrol/internal/config"
	"github.com/timvw/risk-patrol/internal/evaluator"
	"github.com/timvw/risk-patrol/internal/llm"
	"github.com/timvw/risk-patrol/internal/model"
	telem "github.com/timvw/risk-patrol/internal/otel"
	"github.com/timvw/risk-patrol/internal/report"
	"github.com/timvw/risk-patrol/internal/runlog"
)

var (
	flagDatasets    []string
	flagVersions    []string
	flagNoLog       bool
	flagJSON        bool
	flagTableFormat string
	flagTheme       string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate prompt versions against labeled datasets",
	Long: `Run every case of a labeled JSONL dataset through the classifier and
report precision, recall, F1, high-severity recall, parse errors and
latency percentiles.

Datasets are named "gold" and "drift" (resolved via gold_data_path and
drift_data_path) or given as file paths. Each run is appended to the run
log in log_dir unless --no-log is set.

Cases are classified one at a time with the configured delay between
them. Any failed case aborts the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		mode, err := report.ParseMode(flagTableFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		tel := initTelemetry(ctx, cfg)
		defer shutdownTelemetry(tel)

		p, err := newProvider(cfg)
		if err != nil {
			return err
		}

		versions := flagVersions
		if len(versions) == 0 {
			versions = []string{cfg.PromptVersion}
		}
		var log *runlog.Log
		if !flagNoLog {
			log = runlog.NewLog(cfg.LogDir)
		}

		var all []model.Metrics
		for _, version := range versions {
			for _, dataset := range flagDatasets {
				m, err := runEvaluation(ctx, cfg, p, log, metricsOf(tel), version, dataset)
				if err != nil {
					return err
				}
				all = append(all, m)
			}
		}

		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}
		printMetrics(cmd.OutOrStdout(), report.NewRenderer(mode, report.ThemeByName(flagTheme)), cfg, all)
		return nil
	},
}

// runEvaluation evaluates one prompt version on one dataset and, when log
// is non-nil, appends the metrics to the run log.
func runEvaluation(ctx context.Context, cfg *config.Config, p llm.Provider, log *runlog.Log, metrics *telem.Metrics, version, dataset string) (model.Metrics, error) {
	name, path := resolveDataset(cfg, dataset)

	a, err := newAgent(cfg, p, version, cfg.PolicyPath, metrics)
	if err != nil {
		return model.Metrics{}, err
	}
	ev := evaluator.New(a, evaluator.WithDelay(cfg.DelayDuration), evaluator.WithMetrics(metrics))

	_, m, err := ev.Evaluate(ctx, path, name)
	if err != nil {
		return model.Metrics{}, fmt.Errorf("evaluate %s on %s: %w", version, name, err)
	}
	if log != nil {
		if _, err := log.Append(m, p.Name(), p.Model()); err != nil {
			return model.Metrics{}, err
		}
	}
	return m, nil
}

// resolveDataset maps a dataset name to its configured path. Anything that
// is not a known name is treated as a path and named by itself.
func resolveDataset(cfg *config.Config, dataset string) (name, path string) {
	switch dataset {
	case runlog.DatasetGold:
		return dataset, cfg.GoldDataPath
	case runlog.DatasetDrift:
		return dataset, cfg.DriftDataPath
	default:
		return dataset, dataset
	}
}

func printMetrics(w io.Writer, r *report.Renderer, cfg *config.Config, all []model.Metrics) {
	thresholds := runlog.Thresholds{
		HighSeverityRecall: cfg.HighSeverityRecallThreshold,
		P95LatencyMs:       cfg.LatencyP95ThresholdMs,
	}
	for _, m := range all {
		fmt.Fprintln(w, r.Metrics(m))
		fmt.Fprintln(w, r.Thresholds(m, thresholds))
	}
}

func init() {
	evalCmd.Flags().StringSliceVar(&flagDatasets, "dataset", []string{runlog.DatasetGold}, "datasets to evaluate: gold, drift, or a JSONL path (repeatable)")
	evalCmd.Flags().StringSliceVar(&flagVersions, "versions", nil, "prompt versions to evaluate (default: the configured prompt version)")
	evalCmd.Flags().BoolVar(&flagNoLog, "no-log", false, "do not append results to the run log")
	evalCmd.Flags().BoolVar(&flagJSON, "json", false, "print metrics as JSON")
	evalCmd.Flags().StringVar(&flagTableFormat, "format", "table", "table format: table, markdown")
	evalCmd.Flags().StringVar(&flagTheme, "theme", "dark", "color theme: dark, light")
	rootCmd.AddCommand(evalCmd)
}
