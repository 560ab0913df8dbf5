package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/testutil"
)

func setEnv(t *testing.T) (dataDir, logDir string) {
	t.Helper()
	root := t.TempDir()
	dataDir = filepath.Join(root, "data")
	logDir = filepath.Join(root, "logs")
	t.Setenv("SAFEOPS_DATA_DIR", dataDir)
	t.Setenv("SAFEOPS_LOG_DIR", logDir)
	t.Setenv("SAFEOPS_SIGNING_KEY", testutil.TestSigningKey)
	return dataDir, logDir
}

func find(report *Report, name string) *CheckResult {
	for i := range report.Checks {
		if report.Checks[i].Name == name {
			return &report.Checks[i]
		}
	}
	return nil
}

func TestRun_ConfigCategory(t *testing.T) {
	setEnv(t)

	report := Run(context.Background(), Options{SkipUpstream: true})

	configChecks := 0
	for _, c := range report.Checks {
		if c.Category == "config" {
			configChecks++
		}
	}
	assert.Equal(t, 7, configChecks)
	assert.Nil(t, find(report, "reasoning_upstream"))
	// Only the alert transport warns in a bare setup.
	assert.Equal(t, StatusWarn, report.Status)
	assert.Equal(t, 1, report.Summary.Warn)
	assert.Equal(t, 0, report.Summary.Fail)
}

func TestRun_ConfigLoadFailure(t *testing.T) {
	setEnv(t)
	t.Setenv("SAFEOPS_LLM_PROVIDER", "bedrock")

	report := Run(context.Background(), Options{SkipUpstream: true})
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "config_load", report.Checks[0].Name)
	assert.Equal(t, StatusFail, report.Status)
}

func TestRun_UpstreamReachable(t *testing.T) {
	setEnv(t)
	srv := testutil.NewChatServer(`{}`, 0, 0)
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	report := Run(context.Background(), Options{})
	c := find(report, "reasoning_upstream")
	require.NotNil(t, c)
	assert.Equal(t, StatusPass, c.Status)
	assert.Contains(t, c.Message, srv.URL)
}

func TestRun_UpstreamServerError(t *testing.T) {
	setEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	report := Run(context.Background(), Options{})
	c := find(report, "reasoning_upstream")
	require.NotNil(t, c)
	assert.Equal(t, StatusFail, c.Status)
	assert.Contains(t, c.Message, "/v1/models: 502")
}

func TestRun_UpstreamOllamaPath(t *testing.T) {
	setEnv(t)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_PROVIDER", "ollama")
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	report := Run(context.Background(), Options{})
	require.NotNil(t, find(report, "reasoning_upstream"))
	assert.Equal(t, "/api/tags", gotPath)
}

func TestCheckRules(t *testing.T) {
	setEnv(t)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  bogus:\n    action: x\n"), 0o600))
	t.Setenv("SAFEOPS_RULES_FILE", path)

	report := Run(context.Background(), Options{SkipUpstream: true})
	c := find(report, "rules_valid")
	require.NotNil(t, c)
	assert.Equal(t, StatusFail, c.Status)
	assert.Equal(t, StatusFail, report.Status)
}

func TestCheckSystem_LogFiles(t *testing.T) {
	_, logDir := setEnv(t)
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "logs.txt"), []byte("x\n"), 0o600))

	report := Run(context.Background(), Options{SkipUpstream: true})
	c := find(report, "log_files")
	require.NotNil(t, c)
	assert.Contains(t, c.Message, "logs.txt")

	stats := find(report, "evidence_stats")
	require.NotNil(t, stats)
	assert.Contains(t, stats.Message, "0 records")
}
