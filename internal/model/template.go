package model

import (
	"fmt"
	"strings"
)

// StatementType identifies which financial statement a slot belongs to,
// inferred from its section path.
type StatementType string

const (
	StatementUnknown      StatementType = "unknown"
	StatementBalanceSheet StatementType = "balance_sheet"
	StatementIncome       StatementType = "income_statement"
	StatementCashFlow     StatementType = "cash_flow"
)

// statementRoots maps section-root keywords to statement types.
var statementRoots = map[string]StatementType{
	"balance sheet":                   StatementBalanceSheet,
	"statement of financial position": StatementBalanceSheet,
	"income statement":                StatementIncome,
	"statement of operations":         StatementIncome,
	"profit and loss":                 StatementIncome,
	"cash flow":                       StatementCashFlow,
	"statement of cash flows":         StatementCashFlow,
}

// InferStatement derives the statement type from a slot's context path by
// matching the section root against known statement names.
func InferStatement(context []string) StatementType {
	for _, seg := range context {
		low := strings.ToLower(seg)
		for root, st := range statementRoots {
			if strings.Contains(low, root) {
				return st
			}
		}
	}
	return StatementUnknown
}

// SlotAddress locates one cell in the template.
type SlotAddress struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"` // zero-based
	Col   int    `json:"col"` // zero-based
}

// String renders the address in A1 notation qualified by sheet name.
func (a SlotAddress) String() string {
	return fmt.Sprintf("%s!%s%d", a.Sheet, ColName(a.Col), a.Row+1)
}

// ColName converts a zero-based column index into its spreadsheet letter
// form: 0 → A, 25 → Z, 26 → AA.
func ColName(col int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return name
}

// TemplateSlot is one addressable, writable location in the template.
// Slots are created once during profiling and never mutated afterwards.
type TemplateSlot struct {
	ID            string        `json:"id"`
	Address       SlotAddress   `json:"address"`
	Context       []string      `json:"context"`
	Statement     StatementType `json:"statement"`
	RowLabel      string        `json:"row_label"`
	Period        Period        `json:"expected_period"`
	Eligible      bool          `json:"eligible"`
	InferredScale float64       `json:"inferred_scale,omitempty"`
}

// ContextPath returns the slot's semantic path, e.g.
// "Balance Sheet > Current Assets > Cash and equivalents".
func (s TemplateSlot) ContextPath() string {
	return strings.Join(s.Context, " > ")
}

// TemplateGrid captures the row/column hierarchy discovered during profiling.
type TemplateGrid struct {
	Sheet      string   `json:"sheet"`
	HeaderRow  int      `json:"header_row"`
	LabelCol   int      `json:"label_col"`
	Rows       int      `json:"rows"`
	Cols       int      `json:"cols"`
	RowLabels  []string `json:"row_labels"`
	ColPeriods []Period `json:"col_periods"`
}

// TemplateProfile is the read-only result of profiling a template: the
// ordered eligible slot list plus the grid it was derived from.
type TemplateProfile struct {
	SourcePath string         `json:"source_path"`
	Slots      []TemplateSlot `json:"slots"`
	Grid       TemplateGrid   `json:"grid"`

	byID map[string]*TemplateSlot
}

// Index builds the slot-id lookup. Called once at the end of profiling.
func (p *TemplateProfile) Index() {
	p.byID = make(map[string]*TemplateSlot, len(p.Slots))
	for i := range p.Slots {
		p.byID[p.Slots[i].ID] = &p.Slots[i]
	}
}

// Slot returns the slot with the given id, or nil.
func (p *TemplateProfile) Slot(id string) *TemplateSlot {
	return p.byID[id]
}

// EligibleSlots returns the slots that may be written to.
func (p *TemplateProfile) EligibleSlots() []TemplateSlot {
	out := make([]TemplateSlot, 0, len(p.Slots))
	for _, s := range p.Slots {
		if s.Eligible {
			out = append(out, s)
		}
	}
	return out
}
