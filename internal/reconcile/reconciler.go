package reconcile

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
)

// Reconciler checks accounting identities per statement and period column.
type Reconciler struct {
	cfg        config.ReconcileConfig
	identities []Identity
}

// New builds a reconciler with the built-in identity set.
func New(cfg config.ReconcileConfig) *Reconciler {
	return &Reconciler{cfg: cfg, identities: builtinIdentities()}
}

// Run evaluates every identity against the assignment set, one check per
// period the identity's slots report in. Pure function of its inputs:
// rerunning on the same assignments yields identical results.
func (r *Reconciler) Run(set model.AssignmentSet, profile *model.TemplateProfile, facts []model.NormalizedFact) []model.ReconciliationResult {
	periods := assignedPeriods(set, profile)
	unused := unusedFacts(set, facts)

	var results []model.ReconciliationResult
	for _, id := range r.identities {
		for _, period := range periods {
			res, ok := r.check(id, period, set, profile)
			if !ok {
				continue
			}
			if !res.WithinMateriality {
				res.Suggestions = closeGap(unused, res.Delta, res.Threshold,
					r.cfg.GapSearchMaxFacts, r.cfg.GapSearchMaxSubset)
				zap.L().Warn("reconcile: identity failed",
					zap.String("identity", res.IdentityName),
					zap.Float64("delta", res.Delta),
					zap.Float64("threshold", res.Threshold),
					zap.Int("suggestions", len(res.Suggestions)),
				)
			}
			results = append(results, res)
		}
	}
	return results
}

// check evaluates one identity for one period. Returns ok=false when fewer
// than two terms have contributions, which makes the check vacuous.
func (r *Reconciler) check(id Identity, period string, set model.AssignmentSet, profile *model.TemplateProfile) (model.ReconciliationResult, bool) {
	terms := make(map[string]float64, len(id.Terms))
	var contributing []string
	delta := 0.0
	populated := 0

	for _, term := range id.Terms {
		sum := 0.0
		seen := false
		for _, a := range set.Assignments {
			if !a.Assigned() {
				continue
			}
			slot := profile.Slot(a.SlotID)
			if slot == nil || slot.Period.Token() != period {
				continue
			}
			if id.Statement != model.StatementUnknown &&
				slot.Statement != model.StatementUnknown &&
				slot.Statement != id.Statement {
				continue
			}
			if !term.Match(*slot) {
				continue
			}
			sum += a.FinalValue
			seen = true
			contributing = append(contributing, a.SlotID)
		}
		terms[term.Name] = sum
		delta += term.Sign * sum
		if seen {
			populated++
		}
	}

	if populated < 2 {
		return model.ReconciliationResult{}, false
	}

	maxTerm := 0.0
	for _, v := range terms {
		if abs := math.Abs(v); abs > maxTerm {
			maxTerm = abs
		}
	}
	threshold := math.Max(r.cfg.MaterialityAbsolute, r.cfg.MaterialityRelative*maxTerm)

	sort.Strings(contributing)
	return model.ReconciliationResult{
		IdentityName:      fmt.Sprintf("%s (%s)", id.Name, period),
		Statement:         id.Statement,
		Terms:             terms,
		Delta:             delta,
		Threshold:         threshold,
		WithinMateriality: math.Abs(delta) <= threshold,
		ContributingSlots: contributing,
	}, true
}

// assignedPeriods returns the sorted set of period tokens the assignments
// touch.
func assignedPeriods(set model.AssignmentSet, profile *model.TemplateProfile) []string {
	seen := map[string]bool{}
	for _, a := range set.Assignments {
		if !a.Assigned() {
			continue
		}
		if slot := profile.Slot(a.SlotID); slot != nil {
			seen[slot.Period.Token()] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// unusedFacts resolves the assignment set's unused fact ids back to facts,
// preserving fact-id order.
func unusedFacts(set model.AssignmentSet, facts []model.NormalizedFact) []model.NormalizedFact {
	byID := make(map[string]model.NormalizedFact, len(facts))
	for _, f := range facts {
		byID[f.ID] = f
	}
	out := make([]model.NormalizedFact, 0, len(set.UnusedFacts))
	for _, id := range set.UnusedFacts {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out
}
