package match

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
)

// Assigner reduces scored candidates into the final assignment set with a
// greedy pass over a stable global ordering.
type Assigner struct {
	cfg config.MatchConfig
}

// NewAssigner builds an assigner with the given match settings.
func NewAssigner(cfg config.MatchConfig) *Assigner {
	return &Assigner{cfg: cfg}
}

// Assign sorts candidates on (score desc, fact id asc, slot id asc) and
// accepts greedily while both sides are unbound. Near-equal rivals for a slot
// (within the configured epsilon of its best live candidate) go through the
// tie-break rules instead of raw score order.
func (a *Assigner) Assign(facts []model.NormalizedFact, profile *model.TemplateProfile, cands []model.Candidate) model.AssignmentSet {
	factByID := make(map[string]model.NormalizedFact, len(facts))
	for _, f := range facts {
		factByID[f.ID] = f
	}

	sorted := append([]model.Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if sorted[i].FactID != sorted[j].FactID {
			return sorted[i].FactID < sorted[j].FactID
		}
		return sorted[i].SlotID < sorted[j].SlotID
	})

	bySlot := make(map[string][]model.Candidate)
	for _, c := range sorted {
		bySlot[c.SlotID] = append(bySlot[c.SlotID], c)
	}

	boundFacts := make(map[string]bool, len(facts))
	boundSlots := make(map[string]bool)
	var assignments []model.Assignment

	for _, c := range sorted {
		if boundSlots[c.SlotID] || boundFacts[c.FactID] {
			continue
		}

		rivals := liveRivals(bySlot[c.SlotID], boundFacts, c.Score, a.cfg.TieEpsilon)
		winner := c
		needsReview := false
		reason := ""
		if len(rivals) > 1 {
			winner, needsReview = breakTie(rivals, factByID, profile.Slot(c.SlotID), a.cfg.TieBreakOrder)
			if needsReview {
				reason = "tie resolved by source reference order"
			}
		}

		fact := factByID[winner.FactID]
		assignments = append(assignments, model.Assignment{
			SlotID:       winner.SlotID,
			FactID:       winner.FactID,
			FinalValue:   fact.ScaledValue(),
			Confidence:   fact.Confidence,
			Score:        winner.Score,
			MatchType:    winner.MatchType,
			NeedsReview:  needsReview,
			ReviewReason: reason,
			Alternatives: losers(bySlot[winner.SlotID], winner.FactID),
		})
		boundSlots[winner.SlotID] = true
		boundFacts[winner.FactID] = true
	}

	set := model.AssignmentSet{Assignments: assignments}
	for _, slot := range profile.EligibleSlots() {
		if !boundSlots[slot.ID] {
			set.UnassignedSlots = append(set.UnassignedSlots, slot.ID)
		}
	}
	for _, f := range facts {
		if !boundFacts[f.ID] {
			set.UnusedFacts = append(set.UnusedFacts, f.ID)
		}
	}
	sort.Strings(set.UnassignedSlots)
	sort.Strings(set.UnusedFacts)

	zap.L().Info("match: assignment complete",
		zap.Int("assigned", len(assignments)),
		zap.Int("unassigned_slots", len(set.UnassignedSlots)),
		zap.Int("unused_facts", len(set.UnusedFacts)),
	)
	return set
}

// liveRivals returns the slot's candidates whose facts are still unbound and
// whose scores sit within epsilon of the best live score.
func liveRivals(slotCands []model.Candidate, boundFacts map[string]bool, topScore, epsilon float64) []model.Candidate {
	var rivals []model.Candidate
	for _, c := range slotCands {
		if boundFacts[c.FactID] {
			continue
		}
		if topScore-c.Score <= epsilon {
			rivals = append(rivals, c)
		}
	}
	return rivals
}

// losers returns the slot's non-winning candidates in score order, capped,
// for the audit trail.
func losers(slotCands []model.Candidate, winnerFactID string) []model.Candidate {
	var out []model.Candidate
	for _, c := range slotCands {
		if c.FactID == winnerFactID {
			continue
		}
		out = append(out, c)
		if len(out) == maxAlternatives {
			break
		}
	}
	return out
}
