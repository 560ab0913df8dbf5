package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/violation"
)

func TestValidateCmd_ValidBatchWithUnknownTag(t *testing.T) {
	testDirs(t)
	batch := writeFile(t, filepath.Join(t.TempDir(), "batch.json"), `[
  {"frame_id": "frame_001", "detections": [{"type": "no_helmet"}, {"type": "mystery"}]},
  {"frame_id": "frame_002", "detections": [{"type": "mystery"}]}
]`)

	out, err := executeCmd(t, "validate", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Batch valid")
	assert.Contains(t, out, "Frames: 2")
	assert.Contains(t, out, "Detections: 3")
	assert.Contains(t, out, "Unknown violation tags: mystery (2)")
	assert.NotContains(t, out, "Rules valid")
}

func TestValidateCmd_InvalidBatch(t *testing.T) {
	testDirs(t)
	batch := writeFile(t, filepath.Join(t.TempDir(), "batch.json"), `[{"frame_id": "", "detections": []}]`)

	out, err := executeCmd(t, "validate", batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, violation.ErrInput))
	assert.Contains(t, out, "Invalid batch")
}

func TestValidateCmd_RulesFile(t *testing.T) {
	testDirs(t)
	dir := t.TempDir()
	batch := writeFile(t, filepath.Join(dir, "batch.json"), `[]`)

	good := writeFile(t, filepath.Join(dir, "rules.yaml"), `
rules:
  fatigue_posture:
    action: "Send worker to the rest area."
    notify_now: true
`)
	out, err := executeCmd(t, "validate", "--rules", good, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Rules valid")
	assert.Contains(t, out, "5 notify immediately")

	bad := writeFile(t, filepath.Join(dir, "bad.yaml"), "rules:\n  not_a_kind:\n    action: x\n")
	out, err = executeCmd(t, "validate", "--rules", bad, batch)
	require.Error(t, err)
	assert.Contains(t, out, "Invalid rules file")
}

func TestValidateCmd_UsesConfiguredRulesFile(t *testing.T) {
	testDirs(t)
	dir := t.TempDir()
	batch := writeFile(t, filepath.Join(dir, "batch.json"), `[]`)
	rulesPath := writeFile(t, filepath.Join(dir, "rules.yaml"), "rules: {}\n")
	t.Setenv("SAFEOPS_RULES_FILE", rulesPath)

	out, err := executeCmd(t, "validate", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Rules valid: "+rulesPath)
}
