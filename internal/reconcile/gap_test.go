package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-mapper/internal/model"
)

func TestCloseGap_SingleFact(t *testing.T) {
	got := closeGap([]model.NormalizedFact{
		unusedFact("f00000", 100500),
		unusedFact("f00001", 3),
	}, 100000, 1000, 20, 3)

	require.NotEmpty(t, got)
	assert.Equal(t, []string{"f00000"}, got[0].FactIDs)
	assert.InDelta(t, -500.0, got[0].Residual, 1e-9)
}

func TestCloseGap_NegativeDeltaMatchesMagnitude(t *testing.T) {
	got := closeGap([]model.NormalizedFact{
		unusedFact("f00000", 100000),
	}, -100000, 1000, 20, 3)

	require.Len(t, got, 1)
	assert.Equal(t, []string{"f00000"}, got[0].FactIDs)
}

func TestCloseGap_SubsetCardinalityCap(t *testing.T) {
	facts := []model.NormalizedFact{
		unusedFact("f00000", 25000),
		unusedFact("f00001", 25000),
		unusedFact("f00002", 25000),
		unusedFact("f00003", 25000),
	}
	// The only exact combination needs four facts; a cap of 3 must find none.
	got := closeGap(facts, 100000, 100, 20, 3)
	assert.Empty(t, got)

	got = closeGap(facts, 100000, 100, 20, 4)
	require.Len(t, got, 1)
	assert.Len(t, got[0].FactIDs, 4)
}

func TestCloseGap_PoolCap(t *testing.T) {
	facts := []model.NormalizedFact{
		unusedFact("f00000", 1),
		unusedFact("f00001", 2),
		unusedFact("f00002", 100000),
	}
	// With the pool capped to the first two ids, the matching fact is never
	// considered.
	got := closeGap(facts, 100000, 100, 2, 3)
	assert.Empty(t, got)
}

func TestCloseGap_RankedByResidual(t *testing.T) {
	got := closeGap([]model.NormalizedFact{
		unusedFact("f00000", 99000),
		unusedFact("f00001", 100000),
	}, 100000, 5000, 20, 1)

	require.Len(t, got, 2)
	assert.Equal(t, []string{"f00001"}, got[0].FactIDs)
	assert.Equal(t, []string{"f00000"}, got[1].FactIDs)
}

func TestCloseGap_Empty(t *testing.T) {
	assert.Nil(t, closeGap(nil, 100000, 1000, 20, 3))
}
