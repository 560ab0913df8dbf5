package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SAFEOPS_DATA_DIR", "SAFEOPS_LOG_DIR", "SAFEOPS_LLM_PROVIDER", "SAFEOPS_LLM_BASE_URL",
	"SAFEOPS_LLM_MODEL", "SAFEOPS_LLM_API_KEY", "SAFEOPS_REASONING_TIMEOUT", "SAFEOPS_REASONING_RETRIES",
	"SAFEOPS_REASONING_RETRY_DELAY", "SAFEOPS_ADVISORY_TIMEOUT", "SAFEOPS_LLM_RATE_PER_MINUTE",
	"SAFEOPS_RULES_FILE", "SAFEOPS_DEDUPE_ALERTS", "SAFEOPS_CONCURRENCY", "SAFEOPS_SMTP_HOST",
	"SAFEOPS_SMTP_PORT", "SAFEOPS_SMTP_USERNAME", "SAFEOPS_SMTP_PASSWORD", "SAFEOPS_ALERT_FROM",
	"SAFEOPS_ALERT_TO", "SAFEOPS_ALERT_WEBHOOK_URL", "SAFEOPS_SIGNING_KEY",
}

func freshViper(t *testing.T) *viper.Viper {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	v := freshViper(t)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultLLMProvider, cfg.LLMProvider)
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLMBaseURL)
	assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
	assert.Equal(t, 20*time.Second, cfg.ReasoningTimeout)
	assert.Equal(t, 2, cfg.ReasoningRetries)
	assert.Equal(t, 2*time.Second, cfg.ReasoningRetryDelay)
	assert.Equal(t, 120*time.Second, cfg.AdvisoryTimeout)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.False(t, cfg.DedupeAlerts)
	assert.Equal(t, ".", cfg.LogDir)
	assert.False(t, cfg.EmailEnabled())
	assert.True(t, cfg.UsingDefaultSigningKey(), "should report default key when none is set")
	assert.Len(t, cfg.SigningKey, 64)
}

func TestLoad_FromEnv(t *testing.T) {
	v := freshViper(t)
	dir := t.TempDir()
	t.Setenv("SAFEOPS_DATA_DIR", dir)
	t.Setenv("SAFEOPS_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("SAFEOPS_LLM_PROVIDER", "Ollama")
	t.Setenv("SAFEOPS_LLM_BASE_URL", "http://gpu-box:11434")
	t.Setenv("SAFEOPS_REASONING_TIMEOUT", "5s")
	t.Setenv("SAFEOPS_REASONING_RETRIES", "3")
	t.Setenv("SAFEOPS_DEDUPE_ALERTS", "true")
	t.Setenv("SAFEOPS_CONCURRENCY", "4")
	t.Setenv("SAFEOPS_SIGNING_KEY", "my-signing-key-at-least-32-chars!")
	t.Setenv("SAFEOPS_SMTP_HOST", "smtp.example.com")
	t.Setenv("SAFEOPS_ALERT_FROM", "safeops@example.com")
	t.Setenv("SAFEOPS_ALERT_TO", "officer@example.com, supervisor@example.com")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "logs", "logs.txt"), cfg.LogPath("logs.txt"))
	assert.Equal(t, filepath.Join(dir, "evidence.db"), cfg.EvidenceDBPath())
	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLMBaseURL)
	assert.Equal(t, 5*time.Second, cfg.ReasoningTimeout)
	assert.Equal(t, 3, cfg.ReasoningRetries)
	assert.True(t, cfg.DedupeAlerts)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "my-signing-key-at-least-32-chars!", cfg.SigningKey)
	assert.False(t, cfg.UsingDefaultSigningKey())
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, []string{"officer@example.com", "supervisor@example.com"}, cfg.AlertTo)
}

func TestLoad_ConfigFile(t *testing.T) {
	v := freshViper(t)
	path := filepath.Join(t.TempDir(), "safeops.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm_model: llama3.1:8b
llm_provider: ollama
alert_webhook_url: http://pager.internal/hook
alert_to:
  - a@example.com
  - b@example.com
reasoning_retry_delay: 500ms
`), 0o644))
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", cfg.LLMModel)
	assert.Equal(t, "http://pager.internal/hook", cfg.AlertWebhookURL)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AlertTo)
	assert.Equal(t, 500*time.Millisecond, cfg.ReasoningRetryDelay)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"short signing key", map[string]string{"SAFEOPS_SIGNING_KEY": "short"}, "signing_key: signing key too short"},
		{"unknown provider", map[string]string{"SAFEOPS_LLM_PROVIDER": "bedrock"}, "llm_provider"},
		{"zero retries", map[string]string{"SAFEOPS_REASONING_RETRIES": "0"}, "reasoning_retries"},
		{"zero concurrency", map[string]string{"SAFEOPS_CONCURRENCY": "0"}, "concurrency"},
		{"negative rate", map[string]string{"SAFEOPS_LLM_RATE_PER_MINUTE": "-1"}, "llm_rate_per_minute"},
		{"smtp without recipients", map[string]string{"SAFEOPS_SMTP_HOST": "smtp.example.com"}, "alert_from or alert_to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := freshViper(t)
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			_, err := LoadFrom(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_EnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: filepath.Join(dir, "nested", "deep")}
	require.NoError(t, cfg.EnsureDataDir())
	info, err := os.Stat(cfg.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfig_Redacted(t *testing.T) {
	cfg := &Config{LLMAPIKey: "sk-live", SMTPPassword: "hunter2", SigningKey: "k", AlertTo: []string{"a", "b"}}
	r := cfg.Redacted()
	assert.Equal(t, "********", r[KeyLLMAPIKey])
	assert.Equal(t, "********", r[KeySMTPPassword])
	assert.Equal(t, "********", r[KeySigningKey])
	assert.Equal(t, "a,b", r[KeyAlertTo])
	assert.Equal(t, "", r[KeySMTPHost])
}

func TestDeriveDefaultKey(t *testing.T) {
	assert.Equal(t, deriveDefaultKey("/data", "salt"), deriveDefaultKey("/data", "salt"))
	assert.NotEqual(t, deriveDefaultKey("/data", "a"), deriveDefaultKey("/data", "b"))
	assert.NotEqual(t, deriveDefaultKey("/home/alice/.safeops", "salt"), deriveDefaultKey("/home/bob/.safeops", "salt"))
	assert.NoError(t, validateSigningKey(deriveDefaultKey("/data", "salt")))
}
