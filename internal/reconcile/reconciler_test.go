package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
)

func testReconcileConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		MaterialityAbsolute: 1000,
		MaterialityRelative: 0.01,
		GapSearchMaxFacts:   20,
		GapSearchMaxSubset:  3,
	}
}

func fy2024() model.Period {
	return model.Period{Kind: model.PeriodFiscalYear, Year: 2024}
}

func bsSlot(id, section, label string) model.TemplateSlot {
	return model.TemplateSlot{
		ID:        id,
		RowLabel:  label,
		Context:   []string{"Balance Sheet", section, label},
		Statement: model.StatementBalanceSheet,
		Period:    fy2024(),
		Eligible:  true,
	}
}

func assigned(slotID, factID string, value float64) model.Assignment {
	return model.Assignment{SlotID: slotID, FactID: factID, FinalValue: value}
}

func unusedFact(id string, value float64) model.NormalizedFact {
	return model.NormalizedFact{ID: id, Value: value, UnitScale: 1, Confidence: 1}
}

// Assets 1,500,000 against Liabilities 800,000 + Equity 600,000 leaves a
// 100,000 gap, over both thresholds. Two unused facts summing to the gap are
// surfaced as a suggestion.
func TestReconciler_BalanceSheetGap(t *testing.T) {
	profile := &model.TemplateProfile{Slots: []model.TemplateSlot{
		bsSlot("s1", "Assets", "Cash and equivalents"),
		bsSlot("s2", "Liabilities", "Notes payable"),
		bsSlot("s3", "Equity", "Common stock"),
	}}
	profile.Index()

	set := model.AssignmentSet{
		Assignments: []model.Assignment{
			assigned("s1", "f00000", 1500000),
			assigned("s2", "f00001", 800000),
			assigned("s3", "f00002", 600000),
		},
		UnusedFacts: []string{"f00003", "f00004", "f00005"},
	}
	facts := []model.NormalizedFact{
		unusedFact("f00003", 60000),
		unusedFact("f00004", 40000),
		unusedFact("f00005", 999000),
	}

	results := New(testReconcileConfig()).Run(set, profile, facts)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "Assets = Liabilities + Equity (FY2024)", res.IdentityName)
	assert.Equal(t, model.StatementBalanceSheet, res.Statement)
	assert.InDelta(t, 100000.0, res.Delta, 1e-9)
	assert.InDelta(t, 15000.0, res.Threshold, 1e-9)
	assert.False(t, res.WithinMateriality)
	assert.Equal(t, []string{"s1", "s2", "s3"}, res.ContributingSlots)

	require.NotEmpty(t, res.Suggestions)
	best := res.Suggestions[0]
	assert.Equal(t, []string{"f00003", "f00004"}, best.FactIDs)
	assert.InDelta(t, 100000.0, best.Sum, 1e-9)
	assert.InDelta(t, 0.0, best.Residual, 1e-9)
}

func TestReconciler_BalanceSheetWithinMateriality(t *testing.T) {
	profile := &model.TemplateProfile{Slots: []model.TemplateSlot{
		bsSlot("s1", "Assets", "Cash and equivalents"),
		bsSlot("s2", "Liabilities", "Notes payable"),
		bsSlot("s3", "Equity", "Common stock"),
	}}
	profile.Index()

	set := model.AssignmentSet{Assignments: []model.Assignment{
		assigned("s1", "f00000", 1500000),
		assigned("s2", "f00001", 800000),
		assigned("s3", "f00002", 699500),
	}}

	results := New(testReconcileConfig()).Run(set, profile, nil)
	require.Len(t, results, 1)
	assert.True(t, results[0].WithinMateriality)
	assert.Empty(t, results[0].Suggestions)
}

func TestReconciler_GrossProfitIdentity(t *testing.T) {
	isSlot := func(id, label string) model.TemplateSlot {
		return model.TemplateSlot{
			ID:        id,
			RowLabel:  label,
			Context:   []string{"Income Statement", label},
			Statement: model.StatementIncome,
			Period:    fy2024(),
			Eligible:  true,
		}
	}
	profile := &model.TemplateProfile{Slots: []model.TemplateSlot{
		isSlot("s1", "Total Revenue"),
		isSlot("s2", "Cost of Goods Sold"),
		isSlot("s3", "Gross Profit"),
	}}
	profile.Index()

	set := model.AssignmentSet{Assignments: []model.Assignment{
		assigned("s1", "f00000", 1500000),
		assigned("s2", "f00001", 800000),
		assigned("s3", "f00002", 700000),
	}}

	results := New(testReconcileConfig()).Run(set, profile, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Gross Profit = Revenue - COGS (FY2024)", results[0].IdentityName)
	assert.InDelta(t, 0.0, results[0].Delta, 1e-9)
	assert.True(t, results[0].WithinMateriality)
}

func TestReconciler_VacuousCheckSkipped(t *testing.T) {
	profile := &model.TemplateProfile{Slots: []model.TemplateSlot{
		bsSlot("s1", "Assets", "Cash and equivalents"),
	}}
	profile.Index()

	set := model.AssignmentSet{Assignments: []model.Assignment{
		assigned("s1", "f00000", 1500000),
	}}

	results := New(testReconcileConfig()).Run(set, profile, nil)
	assert.Empty(t, results)
}

func TestReconciler_PerPeriodChecks(t *testing.T) {
	fy2023 := model.Period{Kind: model.PeriodFiscalYear, Year: 2023}
	mk := func(id, section, label string, p model.Period) model.TemplateSlot {
		s := bsSlot(id, section, label)
		s.Period = p
		return s
	}
	profile := &model.TemplateProfile{Slots: []model.TemplateSlot{
		mk("s1", "Assets", "Cash", fy2023),
		mk("s2", "Liabilities", "Debt", fy2023),
		mk("s3", "Assets", "Cash", fy2024()),
		mk("s4", "Liabilities", "Debt", fy2024()),
	}}
	profile.Index()

	set := model.AssignmentSet{Assignments: []model.Assignment{
		assigned("s1", "f00000", 100),
		assigned("s2", "f00001", 100),
		assigned("s3", "f00002", 200),
		assigned("s4", "f00003", 200),
	}}

	results := New(testReconcileConfig()).Run(set, profile, nil)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].IdentityName, "FY2023")
	assert.Contains(t, results[1].IdentityName, "FY2024")
}

func TestReconciler_Idempotent(t *testing.T) {
	profile := &model.TemplateProfile{Slots: []model.TemplateSlot{
		bsSlot("s1", "Assets", "Cash and equivalents"),
		bsSlot("s2", "Liabilities", "Notes payable"),
		bsSlot("s3", "Equity", "Common stock"),
	}}
	profile.Index()

	set := model.AssignmentSet{
		Assignments: []model.Assignment{
			assigned("s1", "f00000", 1500000),
			assigned("s2", "f00001", 800000),
			assigned("s3", "f00002", 600000),
		},
		UnusedFacts: []string{"f00003"},
	}
	facts := []model.NormalizedFact{unusedFact("f00003", 100000)}

	r := New(testReconcileConfig())
	first := r.Run(set, profile, facts)
	second := r.Run(set, profile, facts)
	assert.Equal(t, first, second)
}
