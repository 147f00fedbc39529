// Package config loads risk-patrol configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (RISK_PATROL_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .risk-patrol.yaml in current directory
//  2. ~/.config/risk-patrol/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default models per provider, used when no model is configured.
const (
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

// Config holds all risk-patrol configuration.
type Config struct {
	// LLM settings
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int64  `yaml:"max_tokens"`

	// Prompts and data
	PromptDir     string `yaml:"prompt_dir"` // empty uses the embedded templates
	PromptVersion string `yaml:"prompt_version"`
	GoldDataPath  string `yaml:"gold_data_path"`
	DriftDataPath string `yaml:"drift_data_path"`
	PolicyPath    string `yaml:"policy_path"`
	LogDir        string `yaml:"log_dir"`

	// Pacing between dataset cases. Go duration string, e.g. "200ms".
	Delay string `yaml:"delay"`

	// Informational thresholds, reported but never enforced.
	HighSeverityRecallThreshold float64 `yaml:"high_severity_recall_threshold"`
	LatencyP95ThresholdMs       float64 `yaml:"latency_p95_threshold_ms"`

	// Schedule is a cron spec for the watch command, e.g. "0 3 * * *".
	Schedule string `yaml:"schedule"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed durations (not from YAML, set after loading)
	DelayDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Provider:                    "anthropic",
		MaxTokens:                   512,
		PromptVersion:               "v1_baseline",
		GoldDataPath:                "data/gold_cases.jsonl",
		DriftDataPath:               "data/drift_cases.jsonl",
		PolicyPath:                  "policy/policy.md",
		LogDir:                      "logs/eval_runs",
		Delay:                       "200ms",
		HighSeverityRecallThreshold: 0.85,
		LatencyP95ThresholdMs:       6000,
		LogLevel:                    "info",
		LogFormat:                   "text",
	}
}

// Load reads configuration from the first config file found and the
// environment. Environment variables always override file values.
func Load() (*Config, error) {
	path, data, err := findConfigFile()
	if err != nil {
		return finish(Defaults(), "", nil)
	}
	return finish(Defaults(), path, data)
}

// LoadFile is like Load but reads an explicit config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return finish(Defaults(), path, data)
}

func finish(cfg *Config, path string, data []byte) (*Config, error) {
	if data != nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}

	var err error
	cfg.DelayDuration, err = parseDurationOrDisable(cfg.Delay, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid delay %q: %w", cfg.Delay, err)
	}

	return cfg, nil
}

// DefaultModel returns the default model for a provider.
func DefaultModel(provider string) string {
	if provider == "openai" {
		return DefaultOpenAIModel
	}
	return DefaultAnthropicModel
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".risk-patrol.yaml"); err == nil {
		return ".risk-patrol.yaml", data, nil
	}

	// 2. ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "risk-patrol", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Provider != "" {
		cfg.Provider = file.Provider
	}
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.PromptDir != "" {
		cfg.PromptDir = file.PromptDir
	}
	if file.PromptVersion != "" {
		cfg.PromptVersion = file.PromptVersion
	}
	if file.GoldDataPath != "" {
		cfg.GoldDataPath = file.GoldDataPath
	}
	if file.DriftDataPath != "" {
		cfg.DriftDataPath = file.DriftDataPath
	}
	if file.PolicyPath != "" {
		cfg.PolicyPath = file.PolicyPath
	}
	if file.LogDir != "" {
		cfg.LogDir = file.LogDir
	}
	if file.Delay != "" {
		cfg.Delay = file.Delay
	}
	if file.HighSeverityRecallThreshold > 0 {
		cfg.HighSeverityRecallThreshold = file.HighSeverityRecallThreshold
	}
	if file.LatencyP95ThresholdMs > 0 {
		cfg.LatencyP95ThresholdMs = file.LatencyP95ThresholdMs
	}
	if file.Schedule != "" {
		cfg.Schedule = file.Schedule
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	strVars := map[string]*string{
		"RISK_PATROL_PROVIDER":        &cfg.Provider,
		"RISK_PATROL_MODEL":           &cfg.Model,
		"RISK_PATROL_BASE_URL":        &cfg.BaseURL,
		"RISK_PATROL_API_KEY":         &cfg.APIKey,
		"RISK_PATROL_PROMPT_DIR":      &cfg.PromptDir,
		"RISK_PATROL_PROMPT_VERSION":  &cfg.PromptVersion,
		"RISK_PATROL_GOLD_DATA_PATH":  &cfg.GoldDataPath,
		"RISK_PATROL_DRIFT_DATA_PATH": &cfg.DriftDataPath,
		"RISK_PATROL_POLICY_PATH":     &cfg.PolicyPath,
		"RISK_PATROL_LOG_DIR":         &cfg.LogDir,
		"RISK_PATROL_DELAY":           &cfg.Delay,
		"RISK_PATROL_SCHEDULE":        &cfg.Schedule,
		"RISK_PATROL_LOG_LEVEL":       &cfg.LogLevel,
		"RISK_PATROL_LOG_FORMAT":      &cfg.LogFormat,
		"OTEL_EXPORTER_OTLP_ENDPOINT": &cfg.OTELEndpoint,
		"OTEL_EXPORTER_OTLP_HEADERS":  &cfg.OTELHeaders,
	}
	for key, dst := range strVars {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("RISK_PATROL_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid RISK_PATROL_MAX_TOKENS %q", v)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("RISK_PATROL_HIGH_SEVERITY_RECALL_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RISK_PATROL_HIGH_SEVERITY_RECALL_THRESHOLD %q: %w", v, err)
		}
		cfg.HighSeverityRecallThreshold = f
	}
	if v := os.Getenv("RISK_PATROL_LATENCY_P95_THRESHOLD_MS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RISK_PATROL_LATENCY_P95_THRESHOLD_MS %q: %w", v, err)
		}
		cfg.LatencyP95ThresholdMs = f
	}

	// API key fallbacks follow the selected provider.
	if cfg.APIKey == "" {
		if v := os.Getenv("AZURE_OPENAI_API_KEY"); v != "" {
			cfg.APIKey = v
		}
	}
	if cfg.APIKey == "" {
		switch cfg.Provider {
		case "anthropic":
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	// Azure base URL fallback
	if cfg.BaseURL == "" {
		if rn := os.Getenv("AZURE_RESOURCE_NAME"); rn != "" {
			switch cfg.Provider {
			case "anthropic":
				cfg.BaseURL = fmt.Sprintf("https://%s.services.ai.azure.com/anthropic/", rn)
			case "openai":
				cfg.BaseURL = fmt.Sprintf("https://%s.openai.azure.com/openai/v1", rn)
			}
		}
	}
	return nil
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// IsAzureEndpoint returns true if the URL is an Azure endpoint.
func IsAzureEndpoint(url string) bool {
	return strings.Contains(url, ".azure.com") || strings.Contains(url, ".azure.us")
}
