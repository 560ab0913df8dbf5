// Package violation defines the detection data model consumed by the
// escalation pipeline: violation kinds, detections, frames and batches.
//
// Records arrive from an external detector and are treated as immutable
// value objects once loaded.
package violation

import "strings"

// Kind is a safety-violation category tag. The set is open: tags the
// pipeline does not recognize are carried through unchanged and classified
// as KindUnknown by Canonical.
type Kind string

// Known violation kinds.
const (
	KindMissingHeadProtection Kind = "missing-head-protection"
	KindProximityToMachinery  Kind = "proximity-to-machinery"
	KindFatiguePosture        Kind = "fatigue-posture"
	KindTripHazard            Kind = "trip-hazard"
	KindMissingHiVis          Kind = "missing-hi-vis"
	KindBlockedEgress         Kind = "blocked-egress"
	KindUnsafeLift            Kind = "unsafe-lift"

	// KindUnknown is the classification of any unrecognized tag.
	KindUnknown Kind = "unknown"
)

// legacyAliases maps tags emitted by the first-generation detector to their
// canonical kind.
var legacyAliases = map[string]Kind{
	"no_helmet":              KindMissingHeadProtection,
	"too_close_to_excavator": KindProximityToMachinery,
	"fatigue_posture":        KindFatiguePosture,
	"trip_hazard":            KindTripHazard,
	"no_safety_vest":         KindMissingHiVis,
	"obstructed_exit":        KindBlockedEgress,
	"unsafe_manual_handling": KindUnsafeLift,
}

// KnownKinds returns all recognized kinds in a stable order.
func KnownKinds() []Kind {
	return []Kind{
		KindMissingHeadProtection,
		KindProximityToMachinery,
		KindFatiguePosture,
		KindTripHazard,
		KindMissingHiVis,
		KindBlockedEgress,
		KindUnsafeLift,
	}
}

// Canonical returns the canonical kind for k and whether it is recognized.
// Legacy detector tags resolve to their canonical kind; anything else
// returns (KindUnknown, false).
func (k Kind) Canonical() (Kind, bool) {
	tag := strings.TrimSpace(string(k))
	for _, known := range KnownKinds() {
		if Kind(tag) == known {
			return known, true
		}
	}
	if alias, ok := legacyAliases[tag]; ok {
		return alias, true
	}
	return KindUnknown, false
}

// Known reports whether k is a recognized kind or alias.
func (k Kind) Known() bool {
	_, ok := k.Canonical()
	return ok
}

func (k Kind) String() string { return string(k) }
