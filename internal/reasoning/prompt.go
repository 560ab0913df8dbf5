package reasoning

import (
	"fmt"
	"strings"
)

// SystemPrompt pins the service to JSON-only replies.
const SystemPrompt = "You are a JSON-only safety analysis agent. Always return strict JSON. No Markdown or extra text."

// BuildPrompt renders the user prompt for one frame.
func BuildPrompt(frameID string, violations []string, location, shift string) string {
	quoted := make([]string, len(violations))
	for i, v := range violations {
		quoted[i] = fmt.Sprintf("%q", v)
	}

	var b strings.Builder
	b.WriteString("You are a safety compliance assistant.\n\n")
	fmt.Fprintf(&b, "Frame ID: %s\n", frameID)
	fmt.Fprintf(&b, "Location: %s\n", location)
	fmt.Fprintf(&b, "Shift: %s\n", shift)
	fmt.Fprintf(&b, "Violations detected: [%s]\n\n", strings.Join(quoted, ", "))
	b.WriteString("Based on safety protocols in mining and construction sites, analyze the violations and decide:\n\n")
	b.WriteString("Respond with a VALID JSON object ONLY (no markdown, no explanation):\n")
	b.WriteString("{\n")
	b.WriteString("  \"escalate\": true or false,\n")
	b.WriteString("  \"notify_roles\": [\"Safety Officer\", \"Supervisor\"],\n")
	b.WriteString("  \"shutdown_required\": true or false,\n")
	fmt.Fprintf(&b, "  \"summary\": \"Brief one-sentence explanation of the issue in frame %s at %s during %s\"\n", frameID, location, shift)
	b.WriteString("}\n")
	return b.String()
}
