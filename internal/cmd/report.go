package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/dashboard"
)

var (
	reportEscalatedOnly bool
	reportJSON          bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the action, reasoning and advisory logs per frame",
	Long: `Reads logs.txt, llm_logs.txt, action_plan.txt and policy_recommendations.txt
from the log directory and joins them per frame. This is the terminal view of
what the dashboard API serves under /v1/frames.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportEscalatedOnly, "escalated-only", false, "only show frames whose verdict escalated")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print frames as JSON")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	_, span := tracer.Start(cmd.Context(), "report")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	frames, err := dashboard.NewReader(cfg.LogDir).Frames()
	if err != nil {
		return fmt.Errorf("reading logs: %w", err)
	}
	if reportEscalatedOnly {
		kept := frames[:0]
		for _, f := range frames {
			if f.Verdict != nil && f.Verdict.Escalate {
				kept = append(kept, f)
			}
		}
		frames = kept
	}

	out := cmd.OutOrStdout()
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if frames == nil {
			frames = []dashboard.FrameSummary{}
		}
		return enc.Encode(frames)
	}
	renderReport(out, cfg.LogDir, frames)
	return nil
}

func renderReport(w io.Writer, dir string, frames []dashboard.FrameSummary) {
	if len(frames) == 0 {
		fmt.Fprintf(w, "No frames logged in %s\n", dir)
		return
	}

	var escalated, shutdowns, plans, policies int
	violations := make(map[string]int)
	for i := range frames {
		f := &frames[i]
		for _, v := range f.Violations {
			violations[v]++
		}
		if f.HasActionPlan {
			plans++
		}
		if f.HasPolicyGuidance {
			policies++
		}

		verdict := dim("no verdict")
		if f.Verdict != nil {
			verdict = "no escalation"
			if f.Verdict.Escalate {
				escalated++
				verdict = critical("ESCALATE")
				if roles := strings.Join(f.Verdict.NotifyRoles, ", "); roles != "" {
					verdict += " -> " + roles
				}
			}
			if f.Verdict.ShutdownRequired {
				shutdowns++
				verdict += " " + critical("[shutdown]")
			}
		}
		fmt.Fprintf(w, "%s  %s\n", highlight(f.FrameID), verdict)
		if len(f.Violations) > 0 {
			fmt.Fprintf(w, "    violations: %s\n", strings.Join(f.Violations, ", "))
		}
		if f.Verdict != nil && f.Verdict.Summary != "" {
			fmt.Fprintf(w, "    summary:    %s\n", f.Verdict.Summary)
		}
		fmt.Fprintf(w, "    advisories: action plan %s, policy %s\n", yesNo(f.HasActionPlan), yesNo(f.HasPolicyGuidance))
	}

	total := len(frames)
	fmt.Fprintf(w, "\n%d frame(s) in %s\n", total, dir)
	fmt.Fprintf(w, "  Escalated:          %d (%.1f%%)\n", escalated, pct(escalated, total))
	fmt.Fprintf(w, "  Shutdown required:  %d\n", shutdowns)
	fmt.Fprintf(w, "  Action plans:       %d\n", plans)
	fmt.Fprintf(w, "  Policy guidance:    %d\n", policies)
	if len(violations) > 0 {
		kinds := make([]string, 0, len(violations))
		for v := range violations {
			kinds = append(kinds, v)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "  Violations by frame:")
		for _, v := range kinds {
			fmt.Fprintf(w, "    - %s: %d\n", v, violations[v])
		}
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
