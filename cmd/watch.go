package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/timvw/risk-patrol/internal/logging"
	"github.com/timvw/risk-patrol/internal/model"
	"github.com/timvw/risk-patrol/internal/runlog"
)

var (
	flagSchedule string
	flagRunNow   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-evaluate prompt versions on a cron schedule",
	Long: `Evaluate the configured prompt versions on both the gold and drift
datasets on a schedule, appending every run to the run log.

The schedule is a standard 5-field cron expression (minute hour
day-of-month month day-of-week), e.g. "0 3 * * *" for daily at 03:00.
Runs never overlap: the next fire time is computed after a run finishes.
Failed runs are logged and the watcher keeps going.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		spec := strings.TrimSpace(cfg.Schedule)
		if flagSchedule != "" {
			spec = strings.TrimSpace(flagSchedule)
		}
		if spec == "" {
			return fmt.Errorf("no schedule: set --schedule or schedule in the config file")
		}
		sched, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(spec)
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", spec, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

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
		log := runlog.NewLog(cfg.LogDir)
		logger := logging.New("watch")

		thresholds := runlog.Thresholds{
			HighSeverityRecall: cfg.HighSeverityRecallThreshold,
			P95LatencyMs:       cfg.LatencyP95ThresholdMs,
		}
		runAll := func() {
			runScheduled(ctx, logger, versions, thresholds, func(version, dataset string) (model.Metrics, error) {
				return runEvaluation(ctx, cfg, p, log, metricsOf(tel), version, dataset)
			})
		}

		logger.Info("watching", "schedule", spec, "versions", versions)
		if flagRunNow {
			runAll()
		}
		for {
			now := time.Now()
			next := sched.Next(now)
			logger.Info("next evaluation", "at", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info("watch stopped")
				return nil
			case <-timer.C:
			}
			runAll()
		}
	},
}

// runScheduled evaluates every version on gold then drift. Failures are
// logged and skipped; cancellation stops the remaining evaluations.
func runScheduled(ctx context.Context, logger *slog.Logger, versions []string, thresholds runlog.Thresholds, evaluate func(version, dataset string) (model.Metrics, error)) {
	for _, version := range versions {
		for _, dataset := range []string{runlog.DatasetGold, runlog.DatasetDrift} {
			if ctx.Err() != nil {
				return
			}
			m, err := evaluate(version, dataset)
			if err != nil {
				logger.Error("scheduled evaluation failed", "prompt_version", version, "dataset", dataset, "err", err)
				continue
			}
			logger.Info("scheduled evaluation complete",
				"prompt_version", version,
				"dataset", dataset,
				"recall", m.Recall,
				"high_severity_recall", m.HighSeverityRecall,
				"thresholds_met", runlog.CheckThresholds(m, thresholds).Pass(),
			)
		}
	}
}

func init() {
	watchCmd.Flags().StringVar(&flagSchedule, "schedule", "", "cron expression (default: schedule from config)")
	watchCmd.Flags().BoolVar(&flagRunNow, "run-now", false, "evaluate once immediately before waiting for the schedule")
	watchCmd.Flags().StringSliceVar(&flagVersions, "versions", nil, "prompt versions to evaluate (default: the configured prompt version)")
	rootCmd.AddCommand(watchCmd)
}
