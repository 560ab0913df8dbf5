// Package doctor provides preflight checks for SafeOps configuration and
// runtime. Used by `safeops doctor`.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dativo-io/safeops/internal/auditlog"
	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/evidence"
	"github.com/dativo-io/safeops/internal/llm"
	"github.com/dativo-io/safeops/internal/rules"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	SkipUpstream bool // skip reasoning service connectivity (for CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = []CheckResult{{
			Name: "config_load", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check SAFEOPS_* env vars and safeops.config.yaml",
		}}
	} else {
		report.Checks = append(report.Checks, checkConfig(cfg)...)
		if !opts.SkipUpstream {
			report.Checks = append(report.Checks, checkUpstream(ctx, cfg)...)
		}
		report.Checks = append(report.Checks, checkSystem(ctx, cfg)...)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}

	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func checkConfig(cfg *config.Config) []CheckResult {
	return []CheckResult{
		checkWritable("data_dir_writable", cfg.DataDir),
		checkWritable("log_dir_writable", cfg.LogDir),
		checkRules(cfg),
		checkProvider(cfg),
		checkSigningKey(cfg),
		checkEvidenceDB(cfg),
		checkAlerts(cfg),
	}
}

func checkWritable(name, dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			Name: name, Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", dir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(dir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: name, Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: name, Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", dir),
	}
}

func checkRules(cfg *config.Config) CheckResult {
	if cfg.RulesFile == "" {
		return CheckResult{
			Name: "rules_valid", Category: "config", Status: StatusPass,
			Message: fmt.Sprintf("built-in table (%d kinds)", len(rules.DefaultTable())),
		}
	}
	table, err := rules.LoadTable(cfg.RulesFile)
	if err != nil {
		return CheckResult{
			Name: "rules_valid", Category: "config", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Run 'safeops validate --rules " + cfg.RulesFile + " <batch>' for details",
		}
	}
	return CheckResult{
		Name: "rules_valid", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d kinds)", cfg.RulesFile, len(table)),
	}
}

func checkProvider(cfg *config.Config) CheckResult {
	if _, err := llm.NewProvider(llm.ProviderConfig{Name: cfg.LLMProvider, BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey}); err != nil {
		return CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusFail,
			Message: err.Error(),
		}
	}
	if llm.ProviderUsesAPIKey(cfg.LLMProvider) && cfg.LLMAPIKey == "" && cfg.LLMBaseURL == "" {
		return CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusFail,
			Message: cfg.LLMProvider + " has no API key",
			Fix:     "Set SAFEOPS_LLM_API_KEY or point SAFEOPS_LLM_BASE_URL at a local server",
		}
	}
	target := cfg.LLMBaseURL
	if target == "" {
		target = "default endpoint"
	}
	return CheckResult{
		Name: "llm_provider", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s, model %s (%s)", cfg.LLMProvider, cfg.LLMModel, target),
	}
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: StatusWarn,
			Message: "Using derived default", Fix: "Set SAFEOPS_SIGNING_KEY for production",
		}
	}
	return CheckResult{Name: "signing_key", Category: "config", Status: StatusPass, Message: "Configured"}
}

func checkEvidenceDB(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{Name: "evidence_db", Category: "config", Status: StatusFail, Message: err.Error()}
	}
	store, err := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{Name: "evidence_db", Category: "config", Status: StatusFail, Message: err.Error()}
	}
	_ = store.Close()
	return CheckResult{Name: "evidence_db", Category: "config", Status: StatusPass, Message: cfg.EvidenceDBPath()}
}

func checkAlerts(cfg *config.Config) CheckResult {
	switch {
	case cfg.EmailEnabled():
		return CheckResult{
			Name: "alert_transport", Category: "config", Status: StatusPass,
			Message: fmt.Sprintf("email via %s:%d to %d recipient(s)", cfg.SMTPHost, cfg.SMTPPort, len(cfg.AlertTo)),
		}
	case cfg.AlertWebhookURL != "":
		return CheckResult{
			Name: "alert_transport", Category: "config", Status: StatusPass,
			Message: "webhook " + cfg.AlertWebhookURL,
		}
	default:
		return CheckResult{
			Name: "alert_transport", Category: "config", Status: StatusWarn,
			Message: "No SMTP or webhook configured, alerts are logged only",
			Fix:     "Set SAFEOPS_SMTP_HOST and SAFEOPS_ALERT_TO, or SAFEOPS_ALERT_WEBHOOK_URL",
		}
	}
}

// checkUpstream probes the reasoning service. A model listing endpoint that
// answers below 500 counts as reachable.
func checkUpstream(ctx context.Context, cfg *config.Config) []CheckResult {
	baseURL := strings.TrimRight(cfg.LLMBaseURL, "/")
	if baseURL == "" {
		return nil
	}
	modelsURL := baseURL + "/v1/models"
	if cfg.LLMProvider == "ollama" {
		modelsURL = baseURL + "/api/tags"
	} else if strings.HasSuffix(baseURL, "/v1") {
		modelsURL = baseURL + "/models"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return []CheckResult{{
			Name: "reasoning_upstream", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", err),
		}}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL from operator config
	latency := time.Since(start)
	if err != nil {
		return []CheckResult{{
			Name: "reasoning_upstream", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Start the local model server or fix SAFEOPS_LLM_BASE_URL",
		}}
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return []CheckResult{{
			Name: "reasoning_upstream", Category: "upstream", Status: StatusFail,
			Message: fmt.Sprintf("GET %s: %d", modelsURL, resp.StatusCode),
		}}
	}

	results := []CheckResult{{
		Name: "reasoning_upstream", Category: "upstream", Status: StatusPass,
		Message: fmt.Sprintf("%s (%dms)", baseURL, latency.Milliseconds()),
	}}
	if latency > cfg.ReasoningTimeout/2 {
		results = append(results, CheckResult{
			Name: "reasoning_latency", Category: "upstream", Status: StatusWarn,
			Message: fmt.Sprintf("%.1fs, over half the %s reasoning timeout", latency.Seconds(), cfg.ReasoningTimeout),
			Fix:     "Raise SAFEOPS_REASONING_TIMEOUT or use a smaller model",
		})
	}
	return results
}

func checkSystem(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	store, err := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if err == nil {
		defer store.Close()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if index, listErr := store.ListIndex(ctx, evidence.Filter{}); listErr == nil {
			sizeStr := "unknown"
			if fi, _ := os.Stat(cfg.EvidenceDBPath()); fi != nil {
				sizeStr = fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024))
			}
			results = append(results, CheckResult{
				Name: "evidence_stats", Category: "system", Status: StatusPass,
				Message: fmt.Sprintf("%d records, %s", len(index), sizeStr),
			})
		}
	}

	var present []string
	for _, name := range []string{auditlog.ActionLogFile, auditlog.ReasoningLogFile, auditlog.ActionPlanLogFile, auditlog.PolicyRecsLogFile} {
		if fi, statErr := os.Stat(cfg.LogPath(name)); statErr == nil {
			present = append(present, fmt.Sprintf("%s %.1f KB", name, float64(fi.Size())/1024))
		}
	}
	msg := "no logs yet"
	if len(present) > 0 {
		msg = strings.Join(present, ", ")
	}
	results = append(results, CheckResult{Name: "log_files", Category: "system", Status: StatusPass, Message: msg})
	return results
}
