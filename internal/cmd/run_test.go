package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/escalation"
	"github.com/dativo-io/safeops/internal/evidence"
	"github.com/dativo-io/safeops/internal/pipeline"
	"github.com/dativo-io/safeops/internal/reasoning"
	"github.com/dativo-io/safeops/internal/rules"
	"github.com/dativo-io/safeops/internal/testutil"
	"github.com/dativo-io/safeops/internal/violation"
)

const calmVerdict = `{"escalate": false, "notify_roles": [], "shutdown_required": false, "summary": "Minor issue."}`

const twoFrameBatch = `[
  {"frame_id": "frame_001", "detections": [{"type": "no_helmet", "confidence": 0.91}]},
  {"frame_id": "frame_002", "detections": []}
]`

func TestRunCmd_Flags(t *testing.T) {
	expected := map[string]string{
		"reset-logs":  "false",
		"location":    "",
		"shift":       "",
		"concurrency": "0",
		"no-evidence": "false",
	}
	for name, wantDefault := range expected {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "run flag %q should be registered", name)
		assert.Equal(t, wantDefault, flag.DefValue, "run flag %q default", name)
	}
}

func TestRunCmd_RequiresExactlyOneArg(t *testing.T) {
	require.NotNil(t, runCmd.Args)
	assert.Error(t, runCmd.Args(runCmd, []string{}))
	assert.Error(t, runCmd.Args(runCmd, []string{"a", "b"}))
	assert.NoError(t, runCmd.Args(runCmd, []string{"detections.json"}))
}

func TestRunCmd_ProcessesBatch(t *testing.T) {
	dataDir, logDir := testDirs(t)
	srv := testutil.NewChatServer(calmVerdict, 0, 0)
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	batch := writeFile(t, filepath.Join(t.TempDir(), "batch.json"), twoFrameBatch)
	out, err := executeCmd(t, "run", batch)
	require.NoError(t, err)

	assert.Contains(t, out, "frame_001")
	assert.Contains(t, out, "frame_002")
	assert.Contains(t, out, "2 frame(s), 0 escalated")

	actions, err := os.ReadFile(filepath.Join(logDir, "logs.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(actions), "[Frame frame_001] [no_helmet] Send alert to site supervisor: Worker without helmet.")

	verdicts, err := os.ReadFile(filepath.Join(logDir, "llm_logs.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(verdicts), "[Frame frame_001]\n")
	assert.NotContains(t, string(verdicts), "frame_002")

	store, err := evidence.NewStore(filepath.Join(dataDir, "evidence.db"), testutil.TestSigningKey)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.List(context.Background(), evidence.Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunCmd_NoEvidence(t *testing.T) {
	dataDir, _ := testDirs(t)
	srv := testutil.NewChatServer(calmVerdict, 0, 0)
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	batch := writeFile(t, filepath.Join(t.TempDir(), "batch.json"), twoFrameBatch)
	_, err := executeCmd(t, "run", "--no-evidence", batch)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dataDir, "evidence.db"))
	assert.True(t, os.IsNotExist(err), "evidence DB should not be created")
}

func TestRunCmd_ResetLogs(t *testing.T) {
	_, logDir := testDirs(t)
	srv := testutil.NewChatServer(calmVerdict, 0, 0)
	defer srv.Close()
	t.Setenv("SAFEOPS_LLM_BASE_URL", srv.URL)

	writeFile(t, filepath.Join(logDir, "llm_logs.txt"), "[Frame stale]\n{}\n\n")
	writeFile(t, filepath.Join(logDir, "logs.txt"), "[2024-01-01 00:00:00] [Frame old] [no_helmet] kept\n")

	batch := writeFile(t, filepath.Join(t.TempDir(), "batch.json"), twoFrameBatch)
	_, err := executeCmd(t, "run", "--reset-logs", "--no-evidence", batch)
	require.NoError(t, err)

	verdicts, err := os.ReadFile(filepath.Join(logDir, "llm_logs.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(verdicts), "stale")

	actions, err := os.ReadFile(filepath.Join(logDir, "logs.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(actions), "[Frame old]")
	assert.Contains(t, string(actions), "[Frame frame_001]")
}

func TestRunCmd_InvalidBatch(t *testing.T) {
	_, logDir := testDirs(t)

	batch := writeFile(t, filepath.Join(t.TempDir(), "batch.json"), `{"frame_id": "not-an-array"}`)
	_, err := executeCmd(t, "run", batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, violation.ErrInput))

	_, statErr := os.Stat(filepath.Join(logDir, "logs.txt"))
	assert.True(t, os.IsNotExist(statErr), "no log should be touched for an invalid batch")
}

func TestRenderRunSummary(t *testing.T) {
	var buf bytes.Buffer
	renderRunSummary(&buf, &pipeline.Summary{
		RunID: "run_abc12345",
		Frames: []pipeline.FrameOutcome{
			{
				FrameResult: escalation.FrameResult{
					FrameID: "frame_005",
					Actions: []rules.Resolution{{Violation: "trip-hazard"}},
					Verdict: &reasoning.Verdict{Escalate: true},
				},
				Location: "near blast zone",
				Shift:    "day shift",
			},
			{
				FrameResult: escalation.FrameResult{
					FrameID:      "frame_006",
					Actions:      []rules.Resolution{{Violation: "fatigue-posture"}},
					ReasoningErr: &reasoning.Failure{Kind: reasoning.ErrParse},
				},
				Location: "loading area",
				Shift:    "night shift",
			},
			{FrameResult: escalation.FrameResult{FrameID: "frame_007"}, Location: "loading area", Shift: "day shift"},
		},
		Escalated:         1,
		ReasoningFailures: 1,
		Duration:          1500 * time.Millisecond,
	})
	out := buf.String()
	assert.Contains(t, out, "frame_005 [near blast zone, day shift] trip-hazard | ESCALATE")
	assert.Contains(t, out, "reasoning parse failure")
	assert.Contains(t, out, "frame_007 [loading area, day shift] safe")
	assert.Contains(t, out, "Run run_abc12345: 3 frame(s), 1 escalated, 0 alert(s), 1 reasoning failure(s)")
}
