package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/statement-mapper/internal/registry"
)

var synonymsCmd = &cobra.Command{
	Use:   "synonyms",
	Short: "Inspect the label synonym registry",
}

var synonymsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical terms and their synonym counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := loadRegistry(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load synonym registry")
		}
		formatSynonymsList(os.Stdout, table)
		return nil
	},
}

var synonymsShowCmd = &cobra.Command{
	Use:   "show <term>",
	Short: "Show the synonyms of a canonical term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadRegistry(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load synonym registry")
		}

		term, ok := table.Canonical(args[0])
		if !ok {
			return eris.Errorf("term %q not in registry", args[0])
		}
		fmt.Printf("%s\n", term)
		for _, s := range table.Synonyms(term) {
			fmt.Printf("  %s\n", s)
		}
		return nil
	},
}

func formatSynonymsList(out io.Writer, table *registry.SynonymTable) {
	fmt.Fprintf(out, "Registry version: %s (%d terms)\n\n", table.Version, table.Len())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TERM\tSYNONYMS")
	for _, term := range table.Terms() {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", term, len(table.Synonyms(term)))
	}
	_ = w.Flush()
}

func init() {
	synonymsCmd.AddCommand(synonymsListCmd)
	synonymsCmd.AddCommand(synonymsShowCmd)
	rootCmd.AddCommand(synonymsCmd)
}
