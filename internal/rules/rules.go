// Package rules resolves detected violations into canonical first-line
// actions. The resolver is a pure, total function over a rule table: any
// unrecognized tag yields a generic "log for review" action and never an
// error.
package rules

import (
	"fmt"

	"github.com/dativo-io/safeops/internal/violation"
)

// Rule is the deterministic response to one violation kind.
type Rule struct {
	Action    string
	NotifyNow bool
}

// Resolution is the outcome of resolving one detection.
type Resolution struct {
	Violation violation.Kind
	Action    string
	NotifyNow bool
}

// Table maps canonical violation kinds to their rule.
type Table map[violation.Kind]Rule

// DefaultTable returns the built-in rule table. The critical set (rules with
// NotifyNow) covers head protection, blocked egress, trip hazards and
// missing hi-vis.
func DefaultTable() Table {
	return Table{
		violation.KindMissingHeadProtection: {Action: "Send alert to site supervisor: Worker without helmet.", NotifyNow: true},
		violation.KindProximityToMachinery:  {Action: "Trigger proximity warning system: Worker too close to machinery."},
		violation.KindFatiguePosture:        {Action: "Recommend break: Worker shows fatigue posture."},
		violation.KindTripHazard:            {Action: "Cordon off area and remove trip hazard.", NotifyNow: true},
		violation.KindMissingHiVis:          {Action: "Remind worker to wear high-visibility vest.", NotifyNow: true},
		violation.KindBlockedEgress:         {Action: "Clear emergency exit path immediately and inform supervisor.", NotifyNow: true},
		violation.KindUnsafeLift:            {Action: "Assess lifting posture and retrain worker on manual handling protocols."},
	}
}

// Resolver maps violation tags to actions. It is safe for concurrent use;
// the table is never mutated after construction.
type Resolver struct {
	table Table
}

// NewResolver creates a resolver over a copy of table. A nil table uses DefaultTable.
func NewResolver(table Table) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	cp := make(Table, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &Resolver{table: cp}
}

// Resolve returns the action text and whether it requires an immediate
// critical notification. Unknown tags fall back to a review action.
func (r *Resolver) Resolve(kind violation.Kind) (action string, notifyNow bool) {
	canonical, known := kind.Canonical()
	if known {
		if rule, ok := r.table[canonical]; ok {
			return rule.Action, rule.NotifyNow
		}
	}
	return FallbackAction(kind), false
}

// ResolveAll resolves every detection in order.
func (r *Resolver) ResolveAll(detections []violation.Detection) []Resolution {
	out := make([]Resolution, 0, len(detections))
	for _, d := range detections {
		action, notify := r.Resolve(d.Type)
		out = append(out, Resolution{Violation: d.Type, Action: action, NotifyNow: notify})
	}
	return out
}

// IsCritical reports whether kind is in the critical (notify-now) set.
func (r *Resolver) IsCritical(kind violation.Kind) bool {
	_, notify := r.Resolve(kind)
	return notify
}

// FallbackAction is the action text for an unrecognized violation tag.
func FallbackAction(kind violation.Kind) string {
	return fmt.Sprintf("Unknown violation '%s' detected. Log for review.", string(kind))
}
