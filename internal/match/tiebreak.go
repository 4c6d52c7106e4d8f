package match

import (
	"sort"

	"github.com/sells-group/statement-mapper/internal/model"
)

// maxAlternatives caps how many losing candidates are preserved on an
// assignment for the audit trail.
const maxAlternatives = 3

// breakTie resolves near-equal candidates for one slot by applying the
// configured rules in order, narrowing the set after each rule. Returns the
// winner and whether the lexicographic source-reference rule (the last
// resort) had to decide, in which case the assignment needs human review.
func breakTie(cands []model.Candidate, facts map[string]model.NormalizedFact, slot *model.TemplateSlot, order []string) (model.Candidate, bool) {
	remaining := append([]model.Candidate(nil), cands...)
	lastResort := false

	for _, rule := range order {
		if len(remaining) == 1 {
			break
		}
		switch rule {
		case "restated":
			remaining = keepIf(remaining, func(c model.Candidate) bool {
				return facts[c.FactID].Restated
			})
		case "unit_scale":
			if slot.InferredScale > 0 {
				remaining = keepIf(remaining, func(c model.Candidate) bool {
					return facts[c.FactID].UnitScale == slot.InferredScale
				})
			}
		case "confidence":
			best := 0.0
			for _, c := range remaining {
				if conf := facts[c.FactID].Confidence; conf > best {
					best = conf
				}
			}
			remaining = keepIf(remaining, func(c model.Candidate) bool {
				return facts[c.FactID].Confidence == best
			})
		case "doc_date":
			var latest int64
			for _, c := range remaining {
				if d := facts[c.FactID].DocumentDate; d != nil && d.Unix() > latest {
					latest = d.Unix()
				}
			}
			if latest > 0 {
				remaining = keepIf(remaining, func(c model.Candidate) bool {
					d := facts[c.FactID].DocumentDate
					return d != nil && d.Unix() == latest
				})
			}
		case "source_ref":
			if len(remaining) > 1 {
				lastResort = true
				sort.SliceStable(remaining, func(i, j int) bool {
					return facts[remaining[i].FactID].Source.String() <
						facts[remaining[j].FactID].Source.String()
				})
				remaining = remaining[:1]
			}
		}
	}

	if len(remaining) > 1 {
		// Order exhausted without a unique winner: fall back to fact id.
		sort.SliceStable(remaining, func(i, j int) bool {
			return remaining[i].FactID < remaining[j].FactID
		})
	}
	return remaining[0], lastResort
}

// keepIf filters candidates by pred, but never to an empty set: a rule that
// matches nobody is skipped rather than eliminating all contenders.
func keepIf(cands []model.Candidate, pred func(model.Candidate) bool) []model.Candidate {
	var kept []model.Candidate
	for _, c := range cands {
		if pred(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return cands
	}
	return kept
}
