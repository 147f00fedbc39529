package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/timvw/risk-patrol/internal/agent"
	"github.com/timvw/risk-patrol/internal/config"
	"github.com/timvw/risk-patrol/internal/llm"
	"github.com/timvw/risk-patrol/internal/logging"
	telem "github.com/timvw/risk-patrol/internal/otel"
	"github.com/timvw/risk-patrol/internal/prompt"
)

var (
	// Global flags.
	flagConfig        string
	flagProvider      string
	flagModel         string
	flagBaseURL       string
	flagAPIKey        string
	flagMaxTokens     int64
	flagPromptVersion string
	flagPromptDir     string
	flagLogLevel      string
	flagLogFormat     string
)

var rootCmd = &cobra.Command{
	Use:   "risk-patrol",
	Short: "LLM-backed financial-integrity risk classifier",
	Long: `risk-patrol classifies user content against a financial-integrity
taxonomy (scams, fraud, market manipulation) with a language model.

Every piece of content gets exactly one structured verdict. Model output
that cannot be parsed is never treated as benign: it is escalated for
human review.

Prompt versions can be evaluated against labeled gold and drift datasets;
each run's metrics are appended to a JSONL run log for comparison.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: .risk-patrol.yaml, then ~/.config/risk-patrol/config.yaml)")
	pf.StringVar(&flagProvider, "provider", "", "LLM provider: anthropic, openai")
	pf.StringVar(&flagModel, "model", "", "LLM model name (default: claude-haiku-4-5-20251001 for anthropic, gpt-4o-mini for openai)")
	pf.StringVar(&flagBaseURL, "base-url", "", "override LLM API base URL")
	pf.StringVar(&flagAPIKey, "api-key", "", "override LLM API key")
	pf.Int64Var(&flagMaxTokens, "max-tokens", 0, "max completion tokens (default: 512)")
	pf.StringVar(&flagPromptVersion, "prompt-version", "", "prompt template: v1_baseline, v2_hierarchical, v3_high_recall")
	pf.StringVar(&flagPromptDir, "prompt-dir", "", "directory of <version>.txt templates (default: built-in)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: text, json")
}

// loadConfig resolves configuration (defaults, file, env) and applies any
// flags the user set explicitly. It also initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		// Keep the model in step with the provider unless one was chosen.
		if cfg.Model == config.DefaultModel(cfg.Provider) {
			cfg.Model = config.DefaultModel(flagProvider)
		}
		cfg.Provider = flagProvider
	}
	if flags.Changed("model") {
		cfg.Model = flagModel
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = flagBaseURL
	}
	if flags.Changed("api-key") {
		cfg.APIKey = flagAPIKey
	}
	if flags.Changed("max-tokens") {
		cfg.MaxTokens = flagMaxTokens
	}
	if flags.Changed("prompt-version") {
		cfg.PromptVersion = flagPromptVersion
	}
	if flags.Changed("prompt-dir") {
		cfg.PromptDir = flagPromptDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	if cfg.ConfigFile != "" {
		logging.New("config").Debug("loaded config file", "path", cfg.ConfigFile)
	}
	return cfg, nil
}

// initTelemetry starts OTEL export. Failures are logged, never fatal.
func initTelemetry(ctx context.Context, cfg *config.Config) *telem.Telemetry {
	telem.Version = Version
	tel, err := telem.Init(ctx, telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		logging.New("otel").Warn("otel init failed", "err", err)
		return nil
	}
	return tel
}

func shutdownTelemetry(tel *telem.Telemetry) {
	if err := tel.Shutdown(context.Background()); err != nil {
		logging.New("otel").Warn("otel shutdown failed", "err", err)
	}
}

// newProvider builds the configured LLM provider.
func newProvider(cfg *config.Config) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key found. Set RISK_PATROL_API_KEY, AZURE_OPENAI_API_KEY, or the provider's own key (ANTHROPIC_API_KEY, OPENAI_API_KEY)")
	}

	// Azure AI Foundry needs both "api-key" (Azure) and the SDK's default auth header.
	extraHeaders := map[string]string{}
	if os.Getenv("AZURE_RESOURCE_NAME") != "" || config.IsAzureEndpoint(cfg.BaseURL) {
		extraHeaders["api-key"] = cfg.APIKey
	}

	return llm.NewProvider(llm.ProviderConfig{
		Name:         cfg.Provider,
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		ExtraHeaders: extraHeaders,
	})
}

// newAgent builds an Agent for version. When the template needs policy
// context, the policy document at policyPath is loaded as the default.
func newAgent(cfg *config.Config, p llm.Provider, version, policyPath string, metrics *telem.Metrics) (*agent.Agent, error) {
	prompts := prompt.Builtin()
	if cfg.PromptDir != "" {
		prompts = os.DirFS(cfg.PromptDir)
	}
	opts := agent.Options{
		PromptVersion: version,
		Prompts:       prompts,
		Provider:      p,
		MaxTokens:     cfg.MaxTokens,
		Metrics:       metrics,
	}

	a, err := agent.New(opts)
	if err != nil || !a.RequiresPolicyContext() {
		return a, err
	}

	policy, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("prompt %s requires policy context: %w", version, err)
	}
	opts.PolicyContext = string(policy)
	return agent.New(opts)
}

func metricsOf(tel *telem.Telemetry) *telem.Metrics {
	if tel == nil {
		return nil
	}
	return tel.Metrics
}
