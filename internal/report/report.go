// Package report renders a finalized run audit for humans and machines. The
// text form is a terminal summary; the JSON form is the audit verbatim for
// downstream tooling.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-mapper/internal/model"
)

// WriteJSON writes the audit as indented JSON.
func WriteJSON(out io.Writer, a *model.RunAudit) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(a), "report: encode audit")
}

// WriteText writes a human-readable audit summary.
func WriteText(out io.Writer, a *model.RunAudit) {
	writeHeader(out, a)
	writeReconciliations(out, a.Reconciliations)
	writePostings(out, a.Postings)
	writeExceptions(out, a.Exceptions)
	writeUnassigned(out, a.UnassignedSlots)
}

func writeHeader(out io.Writer, a *model.RunAudit) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", a.RunID)
	_, _ = fmt.Fprintf(w, "Template:\t%s\n", a.TemplatePath)
	if a.OutputPath != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", a.OutputPath)
	}
	for _, ref := range a.EvidenceRefs {
		_, _ = fmt.Fprintf(w, "Evidence:\t%s\n", ref)
	}
	if len(a.PeriodsDetected) > 0 {
		_, _ = fmt.Fprintf(w, "Periods:\t%s\n", strings.Join(a.PeriodsDetected, ", "))
	}
	for _, sf := range sortedScales(a.ScaleFactors) {
		_, _ = fmt.Fprintf(w, "Scale:\t%s ×%g\n", sf.key, sf.scale)
	}
	if !a.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond))
	}
	review := "no"
	if a.NeedsReview {
		review = "YES"
	}
	_, _ = fmt.Fprintf(w, "Needs review:\t%s\n", review)
	_ = w.Flush()
}

func writeReconciliations(out io.Writer, results []model.ReconciliationResult) {
	if len(results) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nReconciliation:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "IDENTITY\tDELTA\tTHRESHOLD\tRESULT")
	for _, res := range results {
		status := "ok"
		if !res.WithinMateriality {
			status = "FAILED"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\n",
			res.IdentityName, res.Delta, res.Threshold, status)
	}
	_ = w.Flush()

	for _, res := range results {
		for _, sug := range res.Suggestions {
			_, _ = fmt.Fprintf(out, "  suggestion for %s: facts %v (residual %.2f)\n",
				res.IdentityName, sug.FactIDs, sug.Residual)
		}
	}
}

func writePostings(out io.Writer, postings []model.CellPosting) {
	if len(postings) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nPostings:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CELL\tLABEL\tPERIOD\tVALUE\tMATCH\tCONF\tWRITTEN\tREVIEW")
	for _, p := range postings {
		written := ""
		if p.Written {
			written = "yes"
		}
		review := ""
		if p.NeedsReview {
			review = "yes"
		}
		label := p.NormalizedLabel
		if label == "" {
			label = "(unfilled)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%.2f\t%s\t%s\n",
			p.Address, label, p.Period, p.FinalValue, p.MatchType, p.Confidence, written, review)
	}
	_ = w.Flush()
}

func writeExceptions(out io.Writer, excs []model.Exception) {
	if len(excs) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out, "\nExceptions:")
	for _, e := range excs {
		fatal := ""
		if e.Fatal {
			fatal = " [fatal]"
		}
		_, _ = fmt.Fprintf(out, "  %s%s: %s\n", e.Kind, fatal, e.Message)
	}
}

func writeUnassigned(out io.Writer, slots []string) {
	if len(slots) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\nUnassigned slots: %s\n", strings.Join(slots, ", "))
}

type scaleEntry struct {
	key   string
	scale float64
}

func sortedScales(scales map[string]float64) []scaleEntry {
	out := make([]scaleEntry, 0, len(scales))
	for k, v := range scales {
		out = append(out, scaleEntry{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
