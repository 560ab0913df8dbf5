package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/evidence"
)

// NewTestEvidenceStore opens a signed evidence store under t.TempDir keyed
// with TestSigningKey. It is closed on cleanup.
func NewTestEvidenceStore(t *testing.T) *evidence.Store {
	t.Helper()
	store, err := evidence.NewStore(filepath.Join(t.TempDir(), "evidence.db"), TestSigningKey)
	require.NoError(t, err, "opening test evidence store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}
