// Package config holds operator-level configuration for a SafeOps
// installation: where logs and evidence live, how to reach the reasoning
// service, retry and timeout budgets, and where critical alerts go.
//
// Values come from Viper, which merges flags, env vars (SAFEOPS_*), the
// config file (safeops.config.yaml) and defaults, in that order of precedence.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/safeops/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the SAFEOPS_ prefix
// (e.g. "llm_base_url" → SAFEOPS_LLM_BASE_URL) and to a YAML field in
// safeops.config.yaml.
const (
	KeyDataDir             = "data_dir"
	KeyLogDir              = "log_dir"
	KeyLLMProvider         = "llm_provider"
	KeyLLMBaseURL          = "llm_base_url"
	KeyLLMModel            = "llm_model"
	KeyLLMAPIKey           = "llm_api_key"
	KeyReasoningTimeout    = "reasoning_timeout"
	KeyReasoningRetries    = "reasoning_retries"
	KeyReasoningRetryDelay = "reasoning_retry_delay"
	KeyAdvisoryTimeout     = "advisory_timeout"
	KeyLLMRatePerMinute    = "llm_rate_per_minute"
	KeyRulesFile           = "rules_file"
	KeyDedupeAlerts        = "dedupe_alerts"
	KeyConcurrency         = "concurrency"
	KeySMTPHost            = "smtp_host"
	KeySMTPPort            = "smtp_port"
	KeySMTPUsername        = "smtp_username"
	KeySMTPPassword        = "smtp_password"
	KeyAlertFrom           = "alert_from"
	KeyAlertTo             = "alert_to"
	KeyAlertWebhookURL     = "alert_webhook_url"
	KeySigningKey          = "signing_key"
)

// Defaults. The signing key intentionally has no baked-in default; when
// unset a deterministic per-machine fallback is derived and a warning logged.
const (
	DefaultLLMProvider         = "openai"
	DefaultLLMBaseURL          = "http://localhost:1234"
	DefaultLLMModel            = "mistral-7b-instruct-v0.2"
	DefaultReasoningTimeout    = 20 * time.Second
	DefaultReasoningRetries    = 2
	DefaultReasoningRetryDelay = 2 * time.Second
	DefaultAdvisoryTimeout     = 120 * time.Second
	DefaultSMTPPort            = 587
	DefaultConcurrency         = 1
)

// Config holds resolved operator-level configuration for a SafeOps process.
type Config struct {
	DataDir string // evidence database and other state (~/.safeops)
	LogDir  string // text logs read by the dashboard (default: working directory)

	LLMProvider   string
	LLMBaseURL    string
	LLMModel      string
	LLMAPIKey     string
	RatePerMinute int // 0 = unlimited

	ReasoningTimeout    time.Duration
	ReasoningRetries    int
	ReasoningRetryDelay time.Duration
	AdvisoryTimeout     time.Duration

	RulesFile    string
	DedupeAlerts bool
	Concurrency  int

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	AlertFrom       string
	AlertTo         []string
	AlertWebhookURL string

	SigningKey string

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the evidence signing key was derived (not set explicitly).
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// EvidenceDBPath returns the full path to the evidence SQLite database.
func (c *Config) EvidenceDBPath() string {
	return filepath.Join(c.DataDir, "evidence.db")
}

// LogPath returns the full path of a log file under LogDir.
func (c *Config) LogPath(name string) string {
	return filepath.Join(c.LogDir, name)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// EmailEnabled reports whether an SMTP transport is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("using derived default SAFEOPS_SIGNING_KEY; set it via env var or config file for production")
	}
}

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers env binding and defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("SAFEOPS")
	v.AutomaticEnv()
	v.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	v.SetDefault(KeyLLMBaseURL, DefaultLLMBaseURL)
	v.SetDefault(KeyLLMModel, DefaultLLMModel)
	v.SetDefault(KeyReasoningTimeout, DefaultReasoningTimeout)
	v.SetDefault(KeyReasoningRetries, DefaultReasoningRetries)
	v.SetDefault(KeyReasoningRetryDelay, DefaultReasoningRetryDelay)
	v.SetDefault(KeyAdvisoryTimeout, DefaultAdvisoryTimeout)
	v.SetDefault(KeySMTPPort, DefaultSMTPPort)
	v.SetDefault(KeyConcurrency, DefaultConcurrency)
}

// Load reads configuration from the global Viper instance and returns a validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v and returns a validated Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:             resolveDataDir(v),
		LogDir:              v.GetString(KeyLogDir),
		LLMProvider:         strings.ToLower(strings.TrimSpace(v.GetString(KeyLLMProvider))),
		LLMBaseURL:          v.GetString(KeyLLMBaseURL),
		LLMModel:            v.GetString(KeyLLMModel),
		LLMAPIKey:           v.GetString(KeyLLMAPIKey),
		RatePerMinute:       v.GetInt(KeyLLMRatePerMinute),
		ReasoningTimeout:    v.GetDuration(KeyReasoningTimeout),
		ReasoningRetries:    v.GetInt(KeyReasoningRetries),
		ReasoningRetryDelay: v.GetDuration(KeyReasoningRetryDelay),
		AdvisoryTimeout:     v.GetDuration(KeyAdvisoryTimeout),
		RulesFile:           v.GetString(KeyRulesFile),
		DedupeAlerts:        v.GetBool(KeyDedupeAlerts),
		Concurrency:         v.GetInt(KeyConcurrency),
		SMTPHost:            v.GetString(KeySMTPHost),
		SMTPPort:            v.GetInt(KeySMTPPort),
		SMTPUsername:        v.GetString(KeySMTPUsername),
		SMTPPassword:        v.GetString(KeySMTPPassword),
		AlertFrom:           v.GetString(KeyAlertFrom),
		AlertTo:             splitList(v.GetStringSlice(KeyAlertTo)),
		AlertWebhookURL:     v.GetString(KeyAlertWebhookURL),
		SigningKey:          v.GetString(KeySigningKey),
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "."
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "evidence-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".safeops"
	}
	return filepath.Join(home, ".safeops")
}

// deriveDefaultKey produces a deterministic 64-hex-character fallback key
// from the data directory path and a salt. It is NOT cryptographically
// strong; it exists so `safeops run` works out of the box while still
// signing evidence with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("safeops:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("llm_provider must be \"openai\" or \"ollama\" (got %q)", c.LLMProvider)
	}
	if c.LLMModel == "" {
		return fmt.Errorf("llm_model must be set")
	}
	if c.ReasoningTimeout <= 0 || c.AdvisoryTimeout <= 0 {
		return fmt.Errorf("reasoning_timeout and advisory_timeout must be positive")
	}
	if c.ReasoningRetries < 1 {
		return fmt.Errorf("reasoning_retries must be at least 1 (got %d)", c.ReasoningRetries)
	}
	if c.ReasoningRetryDelay < 0 {
		return fmt.Errorf("reasoning_retry_delay must not be negative")
	}
	if c.RatePerMinute < 0 {
		return fmt.Errorf("llm_rate_per_minute must not be negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1 (got %d)", c.Concurrency)
	}
	if c.SMTPHost != "" && (c.AlertFrom == "" || len(c.AlertTo) == 0) {
		return fmt.Errorf("smtp_host is set but alert_from or alert_to is missing")
	}
	return nil
}

// validateSigningKey applies the evidence signer's key rules up front so a
// weak key fails at startup instead of on the first record.
func validateSigningKey(key string) error {
	if _, err := cryptoutil.DecodeKey(key); err != nil {
		return fmt.Errorf("signing_key: %w; set SAFEOPS_SIGNING_KEY", err)
	}
	return nil
}

// Redacted returns the configuration as key/value pairs with secrets masked,
// for `safeops config show`.
func (c *Config) Redacted() map[string]interface{} {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	signing := mask(c.SigningKey)
	if c.usingDefaultSigningKey {
		signing = "(derived default)"
	}
	return map[string]interface{}{
		KeyDataDir:             c.DataDir,
		KeyLogDir:              c.LogDir,
		KeyLLMProvider:         c.LLMProvider,
		KeyLLMBaseURL:          c.LLMBaseURL,
		KeyLLMModel:            c.LLMModel,
		KeyLLMAPIKey:           mask(c.LLMAPIKey),
		KeyLLMRatePerMinute:    c.RatePerMinute,
		KeyReasoningTimeout:    c.ReasoningTimeout.String(),
		KeyReasoningRetries:    c.ReasoningRetries,
		KeyReasoningRetryDelay: c.ReasoningRetryDelay.String(),
		KeyAdvisoryTimeout:     c.AdvisoryTimeout.String(),
		KeyRulesFile:           c.RulesFile,
		KeyDedupeAlerts:        c.DedupeAlerts,
		KeyConcurrency:         c.Concurrency,
		KeySMTPHost:            c.SMTPHost,
		KeySMTPPort:            c.SMTPPort,
		KeySMTPUsername:        c.SMTPUsername,
		KeySMTPPassword:        mask(c.SMTPPassword),
		KeyAlertFrom:           c.AlertFrom,
		KeyAlertTo:             strings.Join(c.AlertTo, ","),
		KeyAlertWebhookURL:     c.AlertWebhookURL,
		KeySigningKey:          signing,
	}
}
