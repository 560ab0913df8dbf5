package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/rules"
	"github.com/dativo-io/safeops/internal/violation"
)

var validateRules string

var validateCmd = &cobra.Command{
	Use:   "validate <detections.json>",
	Short: "Validate a detection batch and the rules file",
	Long: `Checks a detection batch against the batch schema without running it.
Unknown violation tags are reported as warnings since the pipeline logs them
with a fallback action. When a rules file is configured (or passed with
--rules) it is parsed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "validate")
		defer span.End()

		out := cmd.OutOrStdout()
		path := args[0]

		batch, err := violation.LoadBatchFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("batch_validation_failed")
			fmt.Fprintf(out, "%s Invalid batch: %s\n", failMark, path)
			return err
		}

		unknown := map[string]int{}
		detections := 0
		for _, f := range batch {
			for _, d := range f.Detections {
				detections++
				if !d.Type.Known() {
					unknown[string(d.Type)]++
				}
			}
		}
		fmt.Fprintf(out, "%s Batch valid: %s\n", okMark, path)
		fmt.Fprintf(out, "  Frames: %d\n", len(batch))
		fmt.Fprintf(out, "  Detections: %d\n", detections)
		if len(unknown) > 0 {
			tags := make([]string, 0, len(unknown))
			for tag, n := range unknown {
				tags = append(tags, fmt.Sprintf("%s (%d)", tag, n))
			}
			sort.Strings(tags)
			fmt.Fprintf(out, "%s %s\n", warnMark, warning("Unknown violation tags: "+strings.Join(tags, ", ")))
		}

		rulesPath := validateRules
		if rulesPath == "" {
			if cfg, err := config.Load(); err == nil {
				rulesPath = cfg.RulesFile
			}
		}
		if rulesPath == "" {
			return nil
		}
		table, err := rules.LoadTable(rulesPath)
		if err != nil {
			fmt.Fprintf(out, "%s Invalid rules file: %s\n", failMark, rulesPath)
			return fmt.Errorf("validating rules: %w", err)
		}
		immediate := 0
		for _, r := range table {
			if r.NotifyNow {
				immediate++
			}
		}
		fmt.Fprintf(out, "%s Rules valid: %s (%d kinds, %d notify immediately)\n", okMark, rulesPath, len(table), immediate)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateRules, "rules", "", "rules YAML file to check (default: config rules_file)")
	rootCmd.AddCommand(validateCmd)
}
