// Package reconcile runs accounting-identity checks over the assignment set
// and surfaces gap-closing suggestions for failures. It never mutates
// assignments: repairs are proposals for a reviewer, not automatic edits.
package reconcile

import (
	"strings"

	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/registry"
)

// Term is one side-component of an identity: a named, signed bucket that
// slots are classified into.
type Term struct {
	Name  string
	Sign  float64
	Match func(slot model.TemplateSlot) bool
}

// Identity is one accounting identity, expressed as signed terms that must
// sum to (approximately) zero.
type Identity struct {
	Name      string
	Statement model.StatementType
	Terms     []Term
}

// builtinIdentities returns the standard checks. Classification works on the
// slot's folded context path and row label, so it survives cosmetic label
// variation.
func builtinIdentities() []Identity {
	return []Identity{
		{
			Name:      "Assets = Liabilities + Equity",
			Statement: model.StatementBalanceSheet,
			Terms: []Term{
				{Name: "assets", Sign: 1, Match: sectionMatcher("assets", "liabilities", "equity")},
				{Name: "liabilities", Sign: -1, Match: sectionMatcher("liabilities")},
				{Name: "equity", Sign: -1, Match: sectionMatcher("equity")},
			},
		},
		{
			Name:      "Gross Profit = Revenue - COGS",
			Statement: model.StatementIncome,
			Terms: []Term{
				{Name: "gross_profit", Sign: 1, Match: labelMatcher("gross profit")},
				{Name: "revenue", Sign: -1, Match: labelMatcher("total revenue", "revenue", "revenues", "net sales")},
				{Name: "cogs", Sign: 1, Match: labelMatcher("cost of goods sold", "cost of sales", "cost of revenue")},
			},
		},
	}
}

// sectionMatcher matches slots whose context path mentions the wanted section
// keyword and none of the excluded ones. "Assets" needs the exclusions
// because "Total Liabilities and Equity" style sections also fold to text
// containing shorter keywords.
func sectionMatcher(want string, exclude ...string) func(model.TemplateSlot) bool {
	return func(slot model.TemplateSlot) bool {
		path := registry.Fold(slot.ContextPath())
		if !strings.Contains(path, want) {
			return false
		}
		for _, ex := range exclude {
			if strings.Contains(path, ex) {
				return false
			}
		}
		return true
	}
}

// labelMatcher matches slots whose folded row label equals one of the given
// terms.
func labelMatcher(labels ...string) func(model.TemplateSlot) bool {
	return func(slot model.TemplateSlot) bool {
		folded := registry.Fold(slot.RowLabel)
		for _, l := range labels {
			if folded == l {
				return true
			}
		}
		return false
	}
}
