package pipeline

import "strings"

// Site labels used when no fixed location or shift is configured.
const (
	LocationBlastZone = "near blast zone"
	LocationLoading   = "loading area"
	ShiftNight        = "night shift"
	ShiftDay          = "day shift"
)

// SiteContext supplies the location and shift passed to the reasoning
// service. Empty fields fall back to heuristics on the frame id.
type SiteContext struct {
	Location string
	Shift    string
}

// For returns the location and shift for frameID.
func (s SiteContext) For(frameID string) (location, shift string) {
	location, shift = s.Location, s.Shift
	if location == "" {
		location = LocationLoading
		if strings.Contains(frameID, "005") {
			location = LocationBlastZone
		}
	}
	if shift == "" {
		shift = ShiftDay
		if strings.Contains(frameID, "night") {
			shift = ShiftNight
		}
	}
	return location, shift
}
