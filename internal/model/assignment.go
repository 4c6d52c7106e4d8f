package model

// MatchType records how a fact label matched a slot.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchSynonym MatchType = "synonym"
	MatchFuzzy   MatchType = "fuzzy"
)

// Candidate is a scored, unconfirmed pairing of one fact to one slot.
// Ephemeral: generated during matching, discarded after assignment (only
// losing candidates survive, copied into the winner's alternatives).
type Candidate struct {
	FactID        string    `json:"fact_id"`
	SlotID        string    `json:"slot_id"`
	Score         float64   `json:"score"`
	LabelScore    float64   `json:"label_score"`
	MatchType     MatchType `json:"match_type"`
	PeriodFactor  float64   `json:"period_factor"`
	UnitFactor    float64   `json:"unit_factor"`
	SemanticScore float64   `json:"semantic_score,omitempty"`
}

// Assignment is the accepted binding of at most one fact to one slot.
type Assignment struct {
	SlotID       string      `json:"slot_id"`
	FactID       string      `json:"fact_id,omitempty"`
	FinalValue   float64     `json:"final_value"`
	Confidence   float64     `json:"confidence"`
	Score        float64     `json:"score"`
	MatchType    MatchType   `json:"match_type,omitempty"`
	NeedsReview  bool        `json:"needs_review"`
	ReviewReason string      `json:"review_reason,omitempty"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// Assigned reports whether the slot actually received a fact.
func (a Assignment) Assigned() bool {
	return a.FactID != ""
}

// AssignmentSet is the full outcome of the matching pass.
type AssignmentSet struct {
	Assignments     []Assignment `json:"assignments"`
	UnassignedSlots []string     `json:"unassigned_slots"`
	UnusedFacts     []string     `json:"unused_facts"`
}

// BySlot returns the assignment for a slot id, or nil.
func (s *AssignmentSet) BySlot(slotID string) *Assignment {
	for i := range s.Assignments {
		if s.Assignments[i].SlotID == slotID {
			return &s.Assignments[i]
		}
	}
	return nil
}
