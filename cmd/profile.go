package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/profile"
)

var (
	profileSheet string
	profileJSON  bool
)

var profileCmd = &cobra.Command{
	Use:   "profile <template.xlsx>",
	Short: "Profile a template's writable slots without running a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := profile.Run(args[0], profile.Options{
			SheetName:         profileSheet,
			AutoDetectPeriods: cfg.Match.AutoDetectPeriods,
		})
		if err != nil {
			return err
		}

		if profileJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		}

		formatProfile(os.Stdout, p)
		return nil
	},
}

// formatProfile writes a tabular slot listing to w.
func formatProfile(out io.Writer, p *model.TemplateProfile) {
	fmt.Fprintf(out, "Sheet: %s (header row %d, %d slots, %d eligible)\n\n",
		p.Grid.Sheet, p.Grid.HeaderRow+1, len(p.Slots), len(p.EligibleSlots()))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CELL\tPERIOD\tELIGIBLE\tCONTEXT")
	for _, s := range p.Slots {
		eligible := ""
		if s.Eligible {
			eligible = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.Address, s.Period.Token(), eligible, s.ContextPath())
	}
	_ = w.Flush()
}

func init() {
	profileCmd.Flags().StringVar(&profileSheet, "sheet", "", "template sheet name")
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "emit the profile as JSON")
	rootCmd.AddCommand(profileCmd)
}
