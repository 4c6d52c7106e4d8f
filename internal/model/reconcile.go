package model

// GapSuggestion is a bounded-search result: a small set of unassigned facts
// whose combined value approximates a reconciliation gap. Surfaced only,
// never auto-applied.
type GapSuggestion struct {
	FactIDs  []string `json:"fact_ids"`
	Sum      float64  `json:"sum"`
	Residual float64  `json:"residual"`
}

// ReconciliationResult is the outcome of one accounting-identity check.
type ReconciliationResult struct {
	IdentityName      string             `json:"identity_name"`
	Statement         StatementType      `json:"statement"`
	Terms             map[string]float64 `json:"terms"`
	Delta             float64            `json:"delta"`
	Threshold         float64            `json:"threshold"`
	WithinMateriality bool               `json:"within_materiality"`
	ContributingSlots []string           `json:"contributing_slots"`
	Suggestions       []GapSuggestion    `json:"suggestions,omitempty"`
}
