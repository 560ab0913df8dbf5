package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/safeops/internal/doctor"
)

var (
	doctorJSON         bool
	doctorSkipUpstream bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (directories, rules, LLM, signing key, SQLite, alerts)",
	Long: `Verifies the data and log directories are writable, the rules file parses,
the LLM provider is configured and reachable, and the evidence DB opens.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipUpstream, "skip-upstream", false, "skip the reasoning service connectivity check")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	ctx, span := tracer.Start(ctx, "doctor")
	defer span.End()

	report := doctor.Run(ctx, doctor.Options{SkipUpstream: doctorSkipUpstream})

	out := cmd.OutOrStdout()
	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderDoctorReport(out, report)
	}
	if report.Status == doctor.StatusFail {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}

func renderDoctorReport(w io.Writer, report *doctor.Report) {
	for _, c := range report.Checks {
		mark := okMark
		switch c.Status {
		case doctor.StatusWarn:
			mark = warnMark
		case doctor.StatusFail:
			mark = failMark
		}
		fmt.Fprintf(w, "%s %-20s %s\n", mark, c.Name, c.Message)
		if c.Fix != "" && c.Status != doctor.StatusPass {
			fmt.Fprintf(w, "  %s\n", dim("fix: "+c.Fix))
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warning(s), %d failed\n", report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
	if report.Status != doctor.StatusFail {
		fmt.Fprintln(w, "All checks passed.")
	}
}
