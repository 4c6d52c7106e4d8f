// Package match scores candidate (fact, slot) pairs and resolves them into a
// deterministic assignment set. Scoring is embarrassingly parallel; the
// greedy reduction is single-threaded so identical inputs always produce
// identical assignments.
package match

import (
	"context"

	"github.com/agext/levenshtein"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/registry"
)

const (
	labelScoreExact   = 1.0
	labelScoreSynonym = 0.9
	fuzzyScoreFloor   = 0.5
	fuzzyScoreCeil    = 0.89

	scoreWorkers = 8
)

// Scorer generates scored candidates for fact/slot pairs.
type Scorer struct {
	synonyms *registry.SynonymTable
	cfg      config.MatchConfig

	// semantic holds pre-fetched external compatibility scores keyed by
	// PairKey. Never consulted at scoring time beyond a map lookup.
	semantic map[string]float64
}

// NewScorer builds a scorer over the given synonym table and match settings.
func NewScorer(synonyms *registry.SynonymTable, cfg config.MatchConfig) *Scorer {
	return &Scorer{synonyms: synonyms, cfg: cfg}
}

// SetSemanticScores installs pre-fetched (fact, slot) compatibility scores.
// Must be called before Candidates.
func (s *Scorer) SetSemanticScores(scores map[string]float64) {
	s.semantic = scores
}

// PairKey identifies one (fact, slot) pair in the semantic score map.
func PairKey(factID, slotID string) string {
	return factID + "|" + slotID
}

// Candidates scores every (fact, eligible slot) pair with compatible periods.
// Output order is fixed by (fact input order, slot profile order) regardless
// of scheduling.
func (s *Scorer) Candidates(ctx context.Context, facts []model.NormalizedFact, profile *model.TemplateProfile) ([]model.Candidate, error) {
	slots := profile.EligibleSlots()
	perFact := make([][]model.Candidate, len(facts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreWorkers)
	for i := range facts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perFact[i] = s.scoreFact(facts[i], slots)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Candidate
	for _, cands := range perFact {
		out = append(out, cands...)
	}
	return out, nil
}

func (s *Scorer) scoreFact(fact model.NormalizedFact, slots []model.TemplateSlot) []model.Candidate {
	var out []model.Candidate
	for _, slot := range slots {
		if !fact.Period.Compatible(slot.Period, s.cfg.AllowAggregation) {
			continue
		}
		if s.cfg.StatementType != "" &&
			slot.Statement != model.StatementUnknown &&
			string(slot.Statement) != s.cfg.StatementType {
			continue
		}

		labelScore, matchType, ok := s.labelScore(fact, slot)
		if !ok {
			continue
		}

		periodFactor := periodFactor(fact.Period, slot.Period)
		unitFactor := unitFactor(fact, slot)

		base := labelScore
		semScore := 0.0
		if w := s.cfg.SemanticWeight; w > 0 {
			if sem, found := s.semantic[PairKey(fact.ID, slot.ID)]; found {
				semScore = sem
				base = (1-w)*labelScore + w*sem
			}
		}

		out = append(out, model.Candidate{
			FactID:        fact.ID,
			SlotID:        slot.ID,
			Score:         clamp01(base * periodFactor * unitFactor * fact.Confidence),
			LabelScore:    labelScore,
			MatchType:     matchType,
			PeriodFactor:  periodFactor,
			UnitFactor:    unitFactor,
			SemanticScore: semScore,
		})
	}
	return out
}

// labelScore ranks label compatibility: exact folded equality beats a synonym
// hit beats a fuzzy match above the configured threshold. Anything below the
// threshold produces no candidate.
func (s *Scorer) labelScore(fact model.NormalizedFact, slot model.TemplateSlot) (float64, model.MatchType, bool) {
	factFold := registry.Fold(fact.RawLabel)
	slotFold := registry.Fold(slot.RowLabel)

	if factFold == slotFold {
		return labelScoreExact, model.MatchExact, true
	}

	slotCanon, slotMapped := s.synonyms.Canonical(slot.RowLabel)
	if !slotMapped {
		slotCanon = slotFold
	}
	if (fact.LabelMapped || slotMapped) && fact.Label == slotCanon {
		return labelScoreSynonym, model.MatchSynonym, true
	}

	ratio := levenshtein.Match(factFold, slotFold, nil)
	if ratio < s.cfg.FuzzyThreshold {
		return 0, "", false
	}
	span := 1 - s.cfg.FuzzyThreshold
	score := fuzzyScoreFloor + (ratio-s.cfg.FuzzyThreshold)/span*(fuzzyScoreCeil-fuzzyScoreFloor)
	return score, model.MatchFuzzy, true
}

// periodFactor discounts subsumption matches relative to exact period hits.
func periodFactor(fact, slot model.Period) float64 {
	if fact.Equal(slot) {
		return 1.0
	}
	return 0.85
}

// unitFactor discounts facts whose scale is undeclared, and facts whose
// declared scale disagrees with the scale the template section declares.
func unitFactor(fact model.NormalizedFact, slot model.TemplateSlot) float64 {
	if fact.ScaleConfidence < 1.0 {
		return 0.85
	}
	if slot.InferredScale > 0 && fact.UnitScale != slot.InferredScale {
		return 0.9
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
