package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-mapper/internal/model"
)

func TestAssigner_GreedyBestFirst(t *testing.T) {
	profile := testProfile(
		slot("s1", "Goodwill", fy(2024)),
		slot("s2", "Goodwill, Net", fy(2024)),
	)
	facts := []model.NormalizedFact{
		fact("f00000", "Goodwill", fy(2024), 1.0),
		fact("f00001", "Goodwill, Net", fy(2024), 1.0),
	}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 2)

	assert.Equal(t, "f00000", set.Assignments[0].FactID)
	assert.Equal(t, "s1", set.Assignments[0].SlotID)
	assert.Equal(t, "f00001", set.Assignments[1].FactID)
	assert.Equal(t, "s2", set.Assignments[1].SlotID)
	assert.Empty(t, set.UnassignedSlots)
	assert.Empty(t, set.UnusedFacts)
}

// Two synonyms of the same canonical term compete for one slot with equal
// scores. The higher-confidence fact wins; the loser stays unused and is
// reported as an alternative.
func TestAssigner_TieBrokenByConfidence(t *testing.T) {
	profile := testProfile(slot("s1", "Total Revenue", fy(2024)))

	f1 := fact("f00000", "Net Sales", fy(2024), 1.0)
	f1.Label = "Total Revenue"
	f1.LabelMapped = true
	f1.Value = 1500000
	f2 := fact("f00001", "Revenues", fy(2024), 0.99)
	f2.Label = "Total Revenue"
	f2.LabelMapped = true
	f2.Value = 1500000
	facts := []model.NormalizedFact{f1, f2}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 1)

	a := set.Assignments[0]
	assert.Equal(t, "f00000", a.FactID)
	assert.Equal(t, 1500000.0, a.FinalValue)
	assert.False(t, a.NeedsReview)
	require.Len(t, a.Alternatives, 1)
	assert.Equal(t, "f00001", a.Alternatives[0].FactID)
	assert.Equal(t, []string{"f00001"}, set.UnusedFacts)
}

func TestAssigner_TieBrokenByRestated(t *testing.T) {
	profile := testProfile(slot("s1", "Goodwill", fy(2024)))

	original := fact("f00000", "Goodwill", fy(2024), 1.0)
	restated := fact("f00001", "Goodwill", fy(2024), 1.0)
	restated.Restated = true
	facts := []model.NormalizedFact{original, restated}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 1)
	assert.Equal(t, "f00001", set.Assignments[0].FactID)
	assert.False(t, set.Assignments[0].NeedsReview)
}

func TestAssigner_TieBrokenByDocDate(t *testing.T) {
	profile := testProfile(slot("s1", "Goodwill", fy(2024)))

	early := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	f1 := fact("f00000", "Goodwill", fy(2024), 1.0)
	f1.DocumentDate = &early
	f2 := fact("f00001", "Goodwill", fy(2024), 1.0)
	f2.DocumentDate = &late
	facts := []model.NormalizedFact{f1, f2}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 1)
	assert.Equal(t, "f00001", set.Assignments[0].FactID)
	assert.False(t, set.Assignments[0].NeedsReview)
}

// Facts identical on every rule fall through to the source-reference order;
// that resolution is flagged for review.
func TestAssigner_LastResortNeedsReview(t *testing.T) {
	profile := testProfile(slot("s1", "Goodwill", fy(2024)))

	f1 := fact("f00000", "Goodwill", fy(2024), 1.0)
	f1.Source = model.SourceRef{DocumentID: "doc", Page: 2, Region: "r1", Cell: "c1"}
	f2 := fact("f00001", "Goodwill", fy(2024), 1.0)
	f2.Source = model.SourceRef{DocumentID: "doc", Page: 1, Region: "r1", Cell: "c1"}
	facts := []model.NormalizedFact{f1, f2}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 1)

	a := set.Assignments[0]
	assert.Equal(t, "f00001", a.FactID, "smaller source ref wins")
	assert.True(t, a.NeedsReview)
	assert.NotEmpty(t, a.ReviewReason)
}

func TestAssigner_ScaleMismatchLoses(t *testing.T) {
	sl := slot("s1", "Goodwill", fy(2024))
	sl.InferredScale = 1000
	profile := testProfile(sl)

	f1 := fact("f00000", "Goodwill", fy(2024), 1.0)
	f1.UnitScale = 1
	f2 := fact("f00001", "Goodwill", fy(2024), 1.0)
	f2.UnitScale = 1000
	facts := []model.NormalizedFact{f1, f2}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 1)
	assert.Equal(t, "f00001", set.Assignments[0].FactID)
	assert.Equal(t, 100000.0, set.Assignments[0].FinalValue)
}

func TestAssigner_ReportsUnassignedAndUnused(t *testing.T) {
	profile := testProfile(
		slot("s1", "Goodwill", fy(2024)),
		slot("s2", "Deferred Tax Assets", fy(2024)),
	)
	facts := []model.NormalizedFact{
		fact("f00000", "Goodwill", fy(2024), 1.0),
		fact("f00001", "Prepaid Expenses", fy(2024), 1.0),
	}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)

	set := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	require.Len(t, set.Assignments, 1)
	assert.Equal(t, []string{"s2"}, set.UnassignedSlots)
	assert.Equal(t, []string{"f00001"}, set.UnusedFacts)
}

func TestAssigner_DeterministicAcrossCandidateOrder(t *testing.T) {
	profile := testProfile(slot("s1", "Goodwill", fy(2024)))
	facts := []model.NormalizedFact{
		fact("f00000", "Goodwill", fy(2024), 1.0),
		fact("f00001", "Goodwill", fy(2024), 0.99),
	}

	s := NewScorer(testSynonyms(t), testMatchConfig())
	cands, err := s.Candidates(context.Background(), facts, profile)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	forward := NewAssigner(testMatchConfig()).Assign(facts, profile, cands)
	reversed := []model.Candidate{cands[1], cands[0]}
	backward := NewAssigner(testMatchConfig()).Assign(facts, profile, reversed)
	assert.Equal(t, forward, backward)
}
