package reconcile

import (
	"math"
	"sort"

	"github.com/sells-group/statement-mapper/internal/model"
)

// maxSuggestions caps how many gap-closing subsets are surfaced per failed
// check.
const maxSuggestions = 5

// closeGap searches small subsets of unused facts whose scaled values sum to
// approximately the reconciliation delta (in either sign orientation, since
// the gap may sit on either side of the identity). Depth-first with a
// cardinality cap and a candidate-pool cap, so the search is bounded and
// fully deterministic. Suggestions are ranked by residual magnitude.
func closeGap(unused []model.NormalizedFact, delta, threshold float64, maxFacts, maxSubset int) []model.GapSuggestion {
	if len(unused) == 0 || maxSubset <= 0 {
		return nil
	}

	pool := append([]model.NormalizedFact(nil), unused...)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].ID < pool[j].ID
	})
	if maxFacts > 0 && len(pool) > maxFacts {
		pool = pool[:maxFacts]
	}

	target := math.Abs(delta)
	var found []model.GapSuggestion

	var walk func(start int, ids []string, sum float64)
	walk = func(start int, ids []string, sum float64) {
		if len(ids) > 0 {
			if residual := target - math.Abs(sum); math.Abs(residual) <= threshold {
				found = append(found, model.GapSuggestion{
					FactIDs:  append([]string(nil), ids...),
					Sum:      sum,
					Residual: residual,
				})
			}
		}
		if len(ids) == maxSubset {
			return
		}
		for i := start; i < len(pool); i++ {
			walk(i+1, append(ids, pool[i].ID), sum+pool[i].ScaledValue())
		}
	}
	walk(0, nil, 0)

	sort.SliceStable(found, func(i, j int) bool {
		ri, rj := math.Abs(found[i].Residual), math.Abs(found[j].Residual)
		if ri != rj {
			return ri < rj
		}
		if len(found[i].FactIDs) != len(found[j].FactIDs) {
			return len(found[i].FactIDs) < len(found[j].FactIDs)
		}
		return joinIDs(found[i].FactIDs) < joinIDs(found[j].FactIDs)
	})
	if len(found) > maxSuggestions {
		found = found[:maxSuggestions]
	}
	return found
}

func joinIDs(ids []string) string {
	out := ""
	for _, id := range ids {
		out += id + ","
	}
	return out
}
