package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagPolicy string
	flagStdin  bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Classify one piece of content",
	Long: `Classify a single piece of content and print the verdict as JSON.

The content is taken from the argument, or read from stdin when no
argument is given (or --stdin is set).

Prompt versions that need policy context (v2_hierarchical) read it from
--policy, falling back to the configured policy_path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		text, err := classifyInput(cmd.InOrStdin(), args)
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

		policyPath := cfg.PolicyPath
		if flagPolicy != "" {
			policyPath = flagPolicy
		}
		a, err := newAgent(cfg, p, cfg.PromptVersion, policyPath, metricsOf(tel))
		if err != nil {
			return err
		}

		verdict, err := a.Classify(ctx, text, "")
		if err != nil {
			return fmt.Errorf("classification failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

func classifyInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && !flagStdin {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no content to classify")
	}
	return text, nil
}

func init() {
	classifyCmd.Flags().StringVar(&flagPolicy, "policy", "", "policy document used as policy context")
	classifyCmd.Flags().BoolVar(&flagStdin, "stdin", false, "read content from stdin")
	rootCmd.AddCommand(classifyCmd)
}
