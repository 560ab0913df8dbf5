package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/doctor"
	"github.com/dativo-io/safeops/internal/testutil"
)

func TestDoctorCmd_PassesWithReachableEndpoint(t *testing.T) {
	dataDir, logDir := testDirs(t)
	srv := testutil.NewChatServer(calmVerdict, 0, 0)
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	out, err := executeCmd(t, "doctor")
	require.NoError(t, err)

	assert.Contains(t, out, dataDir+" (writable)")
	assert.Contains(t, out, logDir+" (writable)")
	assert.Contains(t, out, "built-in table (7 kinds)")
	assert.Contains(t, out, "reasoning_upstream")
	assert.Contains(t, out, filepath.Join(dataDir, "evidence.db"))
	assert.Contains(t, out, "alerts are logged only")
	assert.Contains(t, out, "All checks passed.")
}

func TestDoctorCmd_FailsOnBadRulesFile(t *testing.T) {
	testDirs(t)
	bad := writeFile(t, filepath.Join(t.TempDir(), "rules.yaml"), "rules:\n  bogus:\n    action: x\n")
	t.Setenv("SAFEOPS_RULES_FILE", bad)

	out, err := executeCmd(t, "doctor", "--skip-upstream")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight checks failed")
	assert.Contains(t, out, "unknown violation kind")
	assert.Contains(t, out, "fix: Run 'safeops validate")
}

func TestDoctorCmd_JSON(t *testing.T) {
	testDirs(t)
	t.Setenv("SAFEOPS_SIGNING_KEY", "")

	out, err := executeCmd(t, "doctor", "--skip-upstream", "--json")
	require.NoError(t, err)

	var report doctor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, doctor.StatusWarn, report.Status)
	for _, c := range report.Checks {
		assert.NotEqual(t, "reasoning_upstream", c.Name)
	}
}

func TestRenderDoctorReport(t *testing.T) {
	var buf bytes.Buffer
	renderDoctorReport(&buf, &doctor.Report{
		Status: doctor.StatusFail,
		Checks: []doctor.CheckResult{
			{Name: "signing_key", Status: doctor.StatusWarn, Message: "Using derived default", Fix: "Set SAFEOPS_SIGNING_KEY"},
			{Name: "evidence_db", Status: doctor.StatusFail, Message: "locked"},
		},
		Summary: doctor.Summary{Warn: 1, Fail: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "fix: Set SAFEOPS_SIGNING_KEY")
	assert.Contains(t, out, "0 passed, 1 warning(s), 1 failed")
	assert.NotContains(t, out, "All checks passed.")
}
