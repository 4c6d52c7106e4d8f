package normalize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/registry"
)

func testTable(t *testing.T) *registry.SynonymTable {
	t.Helper()
	return registry.NewSynonymTable("test", map[string][]string{
		"Total Revenue": {"Net Sales", "Revenues"},
		"Total Assets":  {},
	})
}

func TestNormalizer_MapsSynonym(t *testing.T) {
	n := New(testTable(t))
	res, err := n.Run(context.Background(), []model.RawFact{
		{RawLabel: "Net Sales", RawValueText: "1,500,000", PeriodHint: "FY2024", RawConfidence: 0.9, DocumentID: "10k.pdf"},
	})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)

	f := res.Facts[0]
	assert.Equal(t, "Total Revenue", f.Label)
	assert.True(t, f.LabelMapped)
	assert.Equal(t, "Net Sales", f.RawLabel)
	assert.Equal(t, 1500000.0, f.Value)
	assert.Equal(t, "FY2024", f.Period.Token())
	assert.Equal(t, 1.0, f.PeriodConfidence)
}

func TestNormalizer_UnmappedLabelPassesThrough(t *testing.T) {
	n := New(testTable(t))
	res, err := n.Run(context.Background(), []model.RawFact{
		{RawLabel: "Goodwill, Net", RawValueText: "10", RawConfidence: 1.0},
	})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)
	assert.False(t, res.Facts[0].LabelMapped)
	assert.Equal(t, "goodwill net", res.Facts[0].Label)
}

func TestNormalizer_ScaleFromHeaderHint(t *testing.T) {
	n := New(testTable(t))
	res, err := n.Run(context.Background(), []model.RawFact{
		{RawLabel: "Total Assets", RawValueText: "1,234", ScaleHint: "in thousands", RawConfidence: 1.0},
	})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, 1000.0, res.Facts[0].UnitScale)
	assert.Equal(t, 1234000.0, res.Facts[0].ScaledValue())
}

func TestNormalizer_ParenthesesNegative(t *testing.T) {
	n := New(testTable(t))
	res, err := n.Run(context.Background(), []model.RawFact{
		{RawLabel: "Total Assets", RawValueText: "(1,234)", RawConfidence: 1.0},
	})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, -1234.0, res.Facts[0].Value)
}

func TestNormalizer_DropsUnparseableWithException(t *testing.T) {
	n := New(testTable(t))
	res, err := n.Run(context.Background(), []model.RawFact{
		{RawLabel: "Total Assets", RawValueText: "n/a", RawConfidence: 1.0, DocumentID: "doc1"},
		{RawLabel: "Total Assets", RawValueText: "500", RawConfidence: 1.0, DocumentID: "doc1"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Facts, 1)
	require.Len(t, res.Exceptions, 1)
	assert.Equal(t, model.ExceptionEvidenceParse, res.Exceptions[0].Kind)
	assert.False(t, res.Exceptions[0].Fatal)
}

func TestNormalizer_DeterministicIDs(t *testing.T) {
	n := New(testTable(t))
	raws := []model.RawFact{
		{RawLabel: "a", RawValueText: "1", RawConfidence: 1},
		{RawLabel: "b", RawValueText: "2", RawConfidence: 1},
		{RawLabel: "c", RawValueText: "3", RawConfidence: 1},
	}
	res1, err := n.Run(context.Background(), raws)
	require.NoError(t, err)
	res2, err := n.Run(context.Background(), raws)
	require.NoError(t, err)

	require.Equal(t, len(res1.Facts), len(res2.Facts))
	for i := range res1.Facts {
		assert.Equal(t, res1.Facts[i].ID, res2.Facts[i].ID)
	}
	assert.Equal(t, "f00000", res1.Facts[0].ID)
	assert.Equal(t, "f00002", res1.Facts[2].ID)
}

func TestNormalizer_AmbiguousPeriodZeroConfidence(t *testing.T) {
	n := New(testTable(t))
	res, err := n.Run(context.Background(), []model.RawFact{
		{RawLabel: "Total Assets", RawValueText: "9", PeriodHint: "around year end", RawConfidence: 1},
	})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)
	assert.Equal(t, 0.0, res.Facts[0].PeriodConfidence)
	assert.Equal(t, "around year end", res.Facts[0].Period.Raw)
}
