package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/evidence"
)

var (
	auditRun       string
	auditFrame     string
	auditEscalated bool
	auditLimit     int

	auditVerifyRun string

	auditExportFormat string
	auditExportOutput string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query, verify and export signed frame evidence",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evidence records, newest first",
	RunE:  auditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [evidence-id]",
	Short: "Verify the HMAC signature of a record or of a whole run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  auditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export evidence records as CSV or JSON",
	RunE:  auditExport,
}

func init() {
	auditListCmd.Flags().StringVar(&auditRun, "run", "", "filter by run ID")
	auditListCmd.Flags().StringVar(&auditFrame, "frame", "", "filter by frame ID")
	auditListCmd.Flags().BoolVar(&auditEscalated, "escalated", false, "only records whose verdict escalated")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum records to show")

	auditVerifyCmd.Flags().StringVar(&auditVerifyRun, "run", "", "verify every record of this run")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "csv", "output format: csv or json")
	auditExportCmd.Flags().StringVar(&auditExportOutput, "output", "", "write to file instead of stdout")
	auditExportCmd.Flags().StringVar(&auditRun, "run", "", "filter by run ID")

	auditCmd.AddCommand(auditListCmd, auditVerifyCmd, auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

func openEvidenceStore() (*evidence.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing evidence store: %w", err)
	}
	defer store.Close()

	index, err := store.ListIndex(ctx, evidence.Filter{
		RunID:         auditRun,
		FrameID:       auditFrame,
		EscalatedOnly: auditEscalated,
		Limit:         auditLimit,
	})
	if err != nil {
		return fmt.Errorf("querying evidence: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(index) == 0 {
		fmt.Fprintln(out, "No evidence records found.")
		return nil
	}
	renderAuditList(out, index)
	return nil
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if len(args) == 0 && auditVerifyRun == "" {
		return errors.New("pass an evidence ID or --run")
	}

	store, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing evidence store: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		checked, invalid, err := store.VerifyRun(ctx, auditVerifyRun)
		if err != nil {
			return fmt.Errorf("verifying run: %w", err)
		}
		renderVerifyRun(out, auditVerifyRun, checked, invalid)
		if len(invalid) > 0 {
			return fmt.Errorf("signature verification failed for %d record(s) of run %s", len(invalid), auditVerifyRun)
		}
		return nil
	}

	evidenceID := args[0]
	valid, err := store.Verify(ctx, evidenceID)
	if err != nil {
		return fmt.Errorf("verifying evidence: %w", err)
	}
	renderVerifyResult(out, evidenceID, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", evidenceID)
	}
	return nil
}

func auditExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	format := strings.ToLower(auditExportFormat)
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported format %q (want csv or json)", auditExportFormat)
	}

	store, err := openEvidenceStore()
	if err != nil {
		return fmt.Errorf("initializing evidence store: %w", err)
	}
	defer store.Close()

	list, err := store.List(ctx, evidence.Filter{RunID: auditRun})
	if err != nil {
		return fmt.Errorf("querying evidence: %w", err)
	}
	records := make([]evidence.ExportRecord, len(list))
	for i := range list {
		records[i] = evidence.ToExportRecord(&list[i])
	}

	var w io.Writer = cmd.OutOrStdout()
	if auditExportOutput != "" {
		f, err := os.Create(auditExportOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeExport(w, format, records)
}

func writeExport(w io.Writer, format string, records []evidence.ExportRecord) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(evidence.CSVHeader); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(records[i].CSVRow()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// renderAuditList writes evidence index lines to w.
func renderAuditList(w io.Writer, index []evidence.Index) {
	fmt.Fprintf(w, "Evidence Records (showing %d):\n\n", len(index))
	for i := range index {
		entry := &index[i]
		status := okMark
		if entry.Escalated {
			status = warnMark
		}
		reasoningMark := ""
		if entry.Detections > 0 && !entry.ReasoningOK {
			reasoningMark = " " + warning("[REASONING FAILED]")
		}
		fmt.Fprintf(w, "  %s %s | %s | %s | %s | %d detection(s) | %d alert(s) | %dms%s\n",
			status,
			entry.ID,
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			entry.RunID,
			highlight(entry.FrameID),
			entry.Detections,
			entry.Notifications,
			entry.DurationMS,
			reasoningMark,
		)
	}
}

// renderVerifyResult writes the verify outcome for one record to w.
func renderVerifyResult(w io.Writer, evidenceID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "%s Evidence %s: signature VALID (HMAC-SHA256 intact)\n", okMark, evidenceID)
	} else {
		fmt.Fprintf(w, "%s Evidence %s: signature INVALID (possible tampering)\n", failMark, evidenceID)
	}
}

func renderVerifyRun(w io.Writer, runID string, checked int, invalid []string) {
	if checked == 0 {
		fmt.Fprintf(w, "%s Run %s: no records found\n", warnMark, runID)
		return
	}
	if len(invalid) == 0 {
		fmt.Fprintf(w, "%s Run %s: %d record(s), all signatures VALID\n", okMark, runID, checked)
		return
	}
	fmt.Fprintf(w, "%s Run %s: %d of %d record(s) INVALID\n", failMark, runID, len(invalid), checked)
	for _, id := range invalid {
		fmt.Fprintf(w, "    - %s\n", id)
	}
}
