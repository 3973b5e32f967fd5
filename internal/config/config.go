// Package config loads the runtime configuration: defaults, then an optional
// YAML file, then environment overrides. Nothing prompts interactively.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/holdgrid/bookingwatch/internal/logging"
)

// Duration is a time.Duration that unmarshals from YAML strings like "60s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type GmailConfig struct {
	// Label is the mailbox label polled for candidates.
	Label string `yaml:"label"`
	// ExtraQuery narrows the poll beyond the label, e.g. "to:*@venues.com".
	ExtraQuery string `yaml:"extra_query"`
}

type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	Range         string `yaml:"range"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GoogleConfig struct {
	// CredentialsPath is the OAuth client secret JSON.
	CredentialsPath string `yaml:"credentials_path"`
	// TokenPath is the cached OAuth token JSON.
	TokenPath string `yaml:"token_path"`
}

type Config struct {
	PollInterval      Duration `yaml:"poll_interval"`
	MaxRetryAttempts  int      `yaml:"max_retry_attempts"`
	BackoffInitial    Duration `yaml:"backoff_initial"`
	BackoffMax        Duration `yaml:"backoff_max"`
	BackoffJitterFrac float64  `yaml:"backoff_jitter_frac"`
	RateLimitRPS      float64  `yaml:"rate_limit_rps"`

	StateDBPath string `yaml:"state_db_path"`

	Gmail  GmailConfig    `yaml:"gmail"`
	Sheets SheetsConfig   `yaml:"sheets"`
	Gemini GeminiConfig   `yaml:"gemini"`
	Google GoogleConfig   `yaml:"google"`
	Log    logging.Config `yaml:"log"`
}

func defaults() Config {
	return Config{
		PollInterval:      Duration(time.Minute),
		MaxRetryAttempts:  3,
		BackoffInitial:    Duration(500 * time.Millisecond),
		BackoffMax:        Duration(10 * time.Second),
		BackoffJitterFrac: 0.2,
		StateDBPath:       "bookingwatch.db",
		Gmail:             GmailConfig{Label: "SENT"},
		Sheets:            SheetsConfig{Range: "Hold Grid!A:G"},
		Gemini:            GeminiConfig{Model: "gemini-2.0-flash"},
		Google: GoogleConfig{
			CredentialsPath: "credentials.json",
			TokenPath:       "token.json",
		},
		Log: logging.DefaultConfig(),
	}
}

// Load builds the effective configuration. The file is optional; environment
// variables win over it.
func Load(path string) (Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings a run actually needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Sheets.SpreadsheetID) == "" {
		return fmt.Errorf("sheets.spreadsheet_id (env SPREADSHEET_ID) is required")
	}
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return fmt.Errorf("gemini.api_key (env GEMINI_API_KEY) is required")
	}
	if c.PollInterval.Std() <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxRetryAttempts <= 0 {
		return fmt.Errorf("max_retry_attempts must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return err
	}
	if cfg.MaxRetryAttempts, err = envInt("MAX_RETRIES", cfg.MaxRetryAttempts); err != nil {
		return err
	}
	if cfg.BackoffInitial, err = envDuration("BACKOFF_INITIAL", cfg.BackoffInitial); err != nil {
		return err
	}
	if cfg.BackoffMax, err = envDuration("BACKOFF_MAX", cfg.BackoffMax); err != nil {
		return err
	}
	if cfg.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		return err
	}

	cfg.StateDBPath = envString("STATE_DB_PATH", cfg.StateDBPath)
	cfg.Gmail.Label = envString("GMAIL_LABEL", cfg.Gmail.Label)
	cfg.Gmail.ExtraQuery = envString("GMAIL_QUERY", cfg.Gmail.ExtraQuery)
	cfg.Sheets.SpreadsheetID = envString("SPREADSHEET_ID", cfg.Sheets.SpreadsheetID)
	cfg.Sheets.Range = envString("SHEET_RANGE", cfg.Sheets.Range)
	cfg.Gemini.APIKey = envString("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.Model = envString("GEMINI_MODEL", cfg.Gemini.Model)
	cfg.Gemini.BaseURL = envString("GEMINI_BASE_URL", cfg.Gemini.BaseURL)
	cfg.Google.CredentialsPath = envString("GOOGLE_CREDENTIALS", cfg.Google.CredentialsPath)
	cfg.Google.TokenPath = envString("GOOGLE_TOKEN", cfg.Google.TokenPath)
	cfg.Log.Level = envString("LOG_LEVEL", cfg.Log.Level)
	return nil
}

func envString(varName, fallback string) string {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback Duration) (Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return Duration(out), nil
}
