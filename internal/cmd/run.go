package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/pipeline"
	"github.com/dativo-io/safeops/internal/reasoning"
)

var (
	runResetLogs   bool
	runLocation    string
	runShift       string
	runConcurrency int
	runNoEvidence  bool
)

var runCmd = &cobra.Command{
	Use:   "run <detections.json>",
	Short: "Process a detection batch",
	Long: `Runs every frame of a detection batch through the escalation pipeline.

Actions are appended to logs.txt, verdicts to llm_logs.txt and advisories to
action_plan.txt / policy_recommendations.txt under the log directory. Each
frame is also recorded in the signed evidence store.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runResetLogs, "reset-logs", false, "truncate llm_logs.txt, action_plan.txt and policy_recommendations.txt first")
	runCmd.Flags().StringVar(&runLocation, "location", "", "fixed site location for every frame (default: derived from frame id)")
	runCmd.Flags().StringVar(&runShift, "shift", "", "fixed shift for every frame (default: derived from frame id)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "frames processed at once (default: config concurrency)")
	runCmd.Flags().BoolVar(&runNoEvidence, "no-evidence", false, "skip the signed evidence store")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := tracer.Start(ctx, "run")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	opts := pipeline.BuildOptions{
		ResetLogs:   runResetLogs,
		Site:        pipeline.SiteContext{Location: runLocation, Shift: runShift},
		Concurrency: runConcurrency,
		NoEvidence:  runNoEvidence,
	}
	summary, err := pipeline.RunFile(ctx, cfg, opts, args[0])
	if summary != nil {
		renderRunSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		if summary != nil && errors.Is(err, context.Canceled) {
			log.Warn().Int("skipped", summary.Skipped).Msg("run_interrupted")
		}
		return err
	}
	return nil
}

// renderRunSummary writes one line per frame and the batch totals to w.
func renderRunSummary(w io.Writer, s *pipeline.Summary) {
	for i := range s.Frames {
		f := &s.Frames[i]
		mark := okMark
		verdict := dim("no verdict")
		switch {
		case f.Verdict != nil && f.Verdict.Escalate:
			mark = warnMark
			verdict = critical("ESCALATE")
		case f.Verdict != nil:
			verdict = "no escalation"
		case f.ReasoningErr != nil:
			verdict = warning("reasoning " + reasoning.KindName(f.ReasoningErr) + " failure")
		}
		violations := make([]string, 0, len(f.Actions))
		for _, a := range f.Actions {
			violations = append(violations, string(a.Violation))
		}
		if len(violations) == 0 {
			violations = append(violations, "safe")
		}
		fmt.Fprintf(w, "%s %s [%s] %s | %s | alerts: %d\n",
			mark, highlight(f.FrameID), f.Location+", "+f.Shift,
			strings.Join(violations, ", "), verdict, len(f.Notifications))
	}

	fmt.Fprintf(w, "\nRun %s: %d frame(s), %d escalated, %d alert(s)", s.RunID, len(s.Frames), s.Escalated, s.Notifications)
	if s.ReasoningFailures > 0 {
		fmt.Fprintf(w, ", %s", warning(fmt.Sprintf("%d reasoning failure(s)", s.ReasoningFailures)))
	}
	if s.AdvisoryFailures > 0 {
		fmt.Fprintf(w, ", %s", warning(fmt.Sprintf("%d advisory failure(s)", s.AdvisoryFailures)))
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, ", %s", critical(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	fmt.Fprintf(w, " in %s\n", s.Duration.Round(time.Millisecond))
}
