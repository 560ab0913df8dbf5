package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/safeops/internal/violation"
)

func TestResolve_UnknownFallsBack(t *testing.T) {
	r := NewResolver(nil)

	for _, tag := range []violation.Kind{"unknown_x", "no_vest", "", "MISSING-HEAD-PROTECTION"} {
		action, notify := r.Resolve(tag)
		assert.Equal(t, "Unknown violation '"+string(tag)+"' detected. Log for review.", action)
		assert.False(t, notify, tag)
	}

	action, notify := r.Resolve("unknown_x")
	assert.Equal(t, "Unknown violation 'unknown_x' detected. Log for review.", action)
	assert.False(t, notify)
}

func TestResolve_KnownKindsDeterministic(t *testing.T) {
	r := NewResolver(nil)
	for _, k := range violation.KnownKinds() {
		a1, n1 := r.Resolve(k)
		a2, n2 := r.Resolve(k)
		assert.NotEmpty(t, a1)
		assert.NotContains(t, a1, "Unknown violation")
		assert.Equal(t, a1, a2)
		assert.Equal(t, n1, n2)
	}
}

func TestResolve_CriticalSet(t *testing.T) {
	r := NewResolver(nil)
	critical := map[violation.Kind]bool{
		violation.KindMissingHeadProtection: true,
		violation.KindBlockedEgress:         true,
		violation.KindTripHazard:            true,
		violation.KindMissingHiVis:          true,
		violation.KindFatiguePosture:        false,
		violation.KindProximityToMachinery:  false,
		violation.KindUnsafeLift:            false,
	}
	for k, want := range critical {
		assert.Equal(t, want, r.IsCritical(k), k)
	}
}

func TestResolve_LegacyAliasMatchesCanonical(t *testing.T) {
	r := NewResolver(nil)
	a1, n1 := r.Resolve("no_helmet")
	a2, n2 := r.Resolve(violation.KindMissingHeadProtection)
	assert.Equal(t, a2, a1)
	assert.Equal(t, n2, n1)
	assert.True(t, n1)
}

func TestResolveAll_PreservesOrder(t *testing.T) {
	r := NewResolver(nil)
	res := r.ResolveAll([]violation.Detection{
		{Type: violation.KindFatiguePosture},
		{Type: "mystery"},
		{Type: violation.KindTripHazard},
	})
	require.Len(t, res, 3)
	assert.Equal(t, violation.KindFatiguePosture, res[0].Violation)
	assert.False(t, res[0].NotifyNow)
	assert.Equal(t, violation.Kind("mystery"), res[1].Violation)
	assert.Equal(t, FallbackAction("mystery"), res[1].Action)
	assert.True(t, res[2].NotifyNow)
}

func TestNewResolver_CopiesTable(t *testing.T) {
	table := DefaultTable()
	r := NewResolver(table)
	table[violation.KindTripHazard] = Rule{Action: "mutated"}

	action, _ := r.Resolve(violation.KindTripHazard)
	assert.Equal(t, "Cordon off area and remove trip hazard.", action)
}
