package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/timvw/risk-patrol/internal/report"
	"github.com/timvw/risk-patrol/internal/runlog"
)

var flagRunsDataset string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the evaluation run log",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged evaluation runs",
	Long: `List every run in the run log, oldest first.

With --latest, only the most recent run per prompt version is shown for
the selected dataset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		records, err := runlog.NewLog(cfg.LogDir).LoadAll()
		if err != nil {
			return err
		}

		if latest, _ := cmd.Flags().GetBool("latest"); latest {
			dataset := flagRunsDataset
			if dataset == "" {
				dataset = runlog.DatasetGold
			}
			records = runlog.LatestByVersion(records, dataset)
		} else if flagRunsDataset != "" {
			filtered := records[:0]
			for _, r := range records {
				if r.Dataset == flagRunsDataset {
					filtered = append(filtered, r)
				}
			}
			records = filtered
		}
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Timestamp.Before(records[j].Timestamp)
		})

		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no runs logged yet")
			return nil
		}
		mode, err := report.ParseMode(flagTableFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.NewRenderer(mode, report.ThemeByName(flagTheme)).Runs(records))
		return nil
	},
}

var runsCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare gold and drift recall per prompt version",
	Long: `Join the latest gold run and the latest drift run of each prompt
version and show how much recall and high-severity recall drop on the
drift set. Versions without both runs are omitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		records, err := runlog.NewLog(cfg.LogDir).LoadAll()
		if err != nil {
			return err
		}
		drifts := runlog.CompareDrift(records)

		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(drifts)
		}
		if len(drifts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no prompt version has both a gold and a drift run")
			return nil
		}
		mode, err := report.ParseMode(flagTableFormat)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.NewRenderer(mode, report.ThemeByName(flagTheme)).Drift(drifts))
		return nil
	},
}

func init() {
	runsListCmd.Flags().StringVar(&flagRunsDataset, "dataset", "", "only show runs on this dataset")
	runsListCmd.Flags().Bool("latest", false, "only the latest run per prompt version")
	for _, c := range []*cobra.Command{runsListCmd, runsCompareCmd} {
		c.Flags().BoolVar(&flagJSON, "json", false, "print as JSON")
		c.Flags().StringVar(&flagTableFormat, "format", "table", "table format: table, markdown")
		c.Flags().StringVar(&flagTheme, "theme", "dark", "color theme: dark, light")
	}
	runsCmd.AddCommand(runsListCmd, runsCompareCmd)
	rootCmd.AddCommand(runsCmd)
}
