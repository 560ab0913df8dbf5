package dashboard

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/advisory"
	"github.com/dativo-io/safeops/internal/auditlog"
)

func TestParseBlocks_FirstOccurrenceWins(t *testing.T) {
	in := "[Frame frame_001]\nfirst\n\n" +
		"[Frame frame_002]\nstep 1\n\nstep 2\n\n" +
		"[Frame frame_001]\nsecond\n\n"

	blocks, err := ParseBlocks(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, Block{FrameID: "frame_001", Payload: "first"}, blocks[0])
	assert.Equal(t, Block{FrameID: "frame_002", Payload: "step 1\n\nstep 2"}, blocks[1])
}

func TestParseBlocks_IgnoresLeadingText(t *testing.T) {
	blocks, err := ParseBlocks(strings.NewReader("garbage\n[Frame a]\nx\n"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "x", blocks[0].Payload)
}

func TestParseBlocks_RoundTripsFormatBlock(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(auditlog.FormatBlock("f1", "{\n  \"escalate\": true\n}"))
	sb.WriteString(auditlog.FormatBlock("f2", "plain text\n"))

	blocks, err := ParseBlocks(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "{\n  \"escalate\": true\n}", blocks[0].Payload)
	assert.Equal(t, "plain text", blocks[1].Payload)
}

func TestParseActions(t *testing.T) {
	in := "[2025-03-01 08:15:00] [Frame frame_001] [missing-head-protection] Send alert to site supervisor: Worker without helmet.\n" +
		"not an audit line\n" +
		"[2025-03-01 08:15:01] [Frame frame_001] [no_vest] Unknown violation 'no_vest' detected. Log for review.\n"

	entries, err := ParseActions(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "frame_001", entries[0].FrameID)
	assert.Equal(t, "missing-head-protection", entries[0].Violation)
	assert.Equal(t, "Send alert to site supervisor: Worker without helmet.", entries[0].Action)
	assert.Equal(t, 8, entries[0].Timestamp.Hour())
	assert.Equal(t, "no_vest", entries[1].Violation)
}

func TestParseActions_LogsSkippedLines(t *testing.T) {
	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	in := "[2025-03-01 08:15:00] [Frame frame]001] [no_helmet] Send alert.\n" +
		"\n" +
		"[2025-03-01 08:15:01] [Frame frame_002] [no_vest] Log for review.\n"

	entries, err := ParseActions(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "frame_002", entries[0].FrameID)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "blank lines are not reported")
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &fields))
	assert.Equal(t, "action_log_line_skipped", fields["message"])
	assert.Equal(t, "debug", fields["level"])
	assert.EqualValues(t, 1, fields["line_no"])
	assert.Contains(t, fields["line"], "frame]001")
}

func writeLogs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestReader_MissingLogsReadEmpty(t *testing.T) {
	r := NewReader(t.TempDir())

	actions, err := r.Actions()
	require.NoError(t, err)
	assert.Empty(t, actions)
	verdicts, err := r.Verdicts()
	require.NoError(t, err)
	assert.Empty(t, verdicts)
	frames, err := r.Frames()
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestReader_Verdicts_SkipsUnparseableBlocks(t *testing.T) {
	dir := writeLogs(t, map[string]string{
		auditlog.ReasoningLogFile: "[Frame a]\n```json\n{\"escalate\": true, \"notify_roles\": [\"Supervisor\"], \"shutdown_required\": true, \"summary\": \"Stop the line.\"}\n```\n\n" +
			"[Frame b]\nnot json\n\n" +
			"[Frame a]\n{\"escalate\": false, \"notify_roles\": [], \"shutdown_required\": false, \"summary\": \"later\"}\n\n",
	})
	verdicts, err := NewReader(dir).Verdicts()
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Equal(t, "a", verdicts[0].FrameID)
	assert.True(t, verdicts[0].Verdict.ShutdownRequired)
	assert.Equal(t, "Stop the line.", verdicts[0].Verdict.Summary)
}

func TestReader_AdvisoriesUnknownKind(t *testing.T) {
	_, err := NewReader(t.TempDir()).Advisories("haiku")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestReader_Frames(t *testing.T) {
	dir := writeLogs(t, map[string]string{
		auditlog.ActionLogFile: "[2025-03-01 08:15:00] [Frame f1] [trip-hazard] Cordon off area and remove trip hazard.\n" +
			"[2025-03-01 08:15:00] [Frame f1] [no_vest] Unknown violation 'no_vest' detected. Log for review.\n" +
			"[2025-03-01 08:15:02] [Frame f2] [fatigue-posture] Recommend break: Worker shows fatigue posture.\n",
		auditlog.ReasoningLogFile:  "[Frame f1]\n{\"escalate\": true, \"notify_roles\": [\"Supervisor\"], \"shutdown_required\": false, \"summary\": \"Hazard.\"}\n\n",
		auditlog.ActionPlanLogFile: "[Frame f1]\n1. Cordon off.\n\n[Frame f3]\nOrphan plan.\n\n",
		auditlog.PolicyRecsLogFile: "[Frame f2]\nAdd rest breaks.\n\n",
	})
	r := NewReader(dir)

	frames, err := r.Frames()
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, "f1", frames[0].FrameID)
	assert.Equal(t, []string{"trip-hazard", "no_vest"}, frames[0].Violations)
	require.NotNil(t, frames[0].Verdict)
	assert.True(t, frames[0].Verdict.Escalate)
	assert.True(t, frames[0].HasActionPlan)
	assert.False(t, frames[0].HasPolicyGuidance)

	assert.Equal(t, "f2", frames[1].FrameID)
	assert.Nil(t, frames[1].Verdict)
	assert.True(t, frames[1].HasPolicyGuidance)

	assert.Equal(t, "f3", frames[2].FrameID)
	assert.Empty(t, frames[2].Actions)

	plans, err := r.Advisories(advisory.KindActionPlan)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}
