package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/statement-mapper/internal/pipeline"
	"github.com/sells-group/statement-mapper/internal/report"
)

var (
	runEvidence []string
	runOutput   string
	runSheet    string
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run <template.xlsx>",
	Short: "Map evidence facts into a template and write the output workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if len(runEvidence) == 0 {
			return eris.New("at least one --evidence reference is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		synonyms, err := loadRegistry(ctx)
		if err != nil {
			return eris.Wrap(err, "load synonym registry")
		}

		p := pipeline.New(cfg, st, synonyms, newSemanticClient())
		result, runErr := p.Run(ctx, pipeline.Request{
			TemplatePath: args[0],
			EvidenceRefs: runEvidence,
			OutputPath:   runOutput,
			SheetName:    runSheet,
		})
		if result != nil && result.Audit != nil {
			if runJSON {
				if err := report.WriteJSON(os.Stdout, result.Audit); err != nil {
					return err
				}
			} else {
				report.WriteText(os.Stdout, result.Audit)
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "mapping run")
		}
		if result.NeedsReview {
			fmt.Fprintln(os.Stderr, "Run complete, but flagged for review. See the audit above.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runEvidence, "evidence", nil, "evidence reference (file path, http(s) or ftp URL); repeatable")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output workbook path (default <template>.mapped.xlsx)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "template sheet name (default: first sheet with a data region)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the audit as JSON instead of a text summary")
	rootCmd.AddCommand(runCmd)
}
