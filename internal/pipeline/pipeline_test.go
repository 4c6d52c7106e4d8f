package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/registry"
	"github.com/sells-group/statement-mapper/internal/store"
	"github.com/sells-group/statement-mapper/pkg/semantic"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "runs.db"),
		},
		Match: config.MatchConfig{
			FuzzyThreshold:    0.72,
			TieEpsilon:        0.02,
			TieBreakOrder:     []string{"restated", "unit_scale", "confidence", "doc_date", "source_ref"},
			AutoDetectPeriods: true,
		},
		Reconcile: config.ReconcileConfig{
			MaterialityAbsolute: 1000,
			MaterialityRelative: 0.01,
			GapSearchMaxFacts:   20,
			GapSearchMaxSubset:  3,
		},
	}
}

func testStore(t *testing.T, cfg *config.Config) store.Store {
	t.Helper()
	st, err := store.New(context.Background(), cfg.Store)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

// writeTemplate builds a one-column balance-sheet template.
func writeTemplate(t *testing.T) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Model")
	require.NoError(t, err)

	addRow := func(labels ...string) *xlsx.Row {
		row := sheet.AddRow()
		for _, l := range labels {
			row.AddCell().SetString(l)
		}
		return row
	}

	addRow("Balance Sheet ($ in thousands)")
	addRow("", "FY2024")
	addRow("Current Assets")
	addRow("  Cash and equivalents", "")
	addRow("  Accounts receivable", "")
	total := addRow("Total Current Assets")
	total.AddCell().SetFormula("SUM(B4:B5)")

	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeEvidence(t *testing.T) string {
	t.Helper()
	body := `{
		"document_id": "10k-2024",
		"document_date": "2025-02-15",
		"scale_hint": "thousands",
		"facts": [
			{"raw_label": "Cash and equivalents", "raw_value_text": "1,250", "raw_confidence": 0.98, "period_hint": "FY2024", "page_ref": 12},
			{"raw_label": "Accounts receivable", "raw_value_text": "430", "raw_confidence": 0.95, "period_hint": "FY2024", "page_ref": 12}
		]
	}`
	path := filepath.Join(t.TempDir(), "evidence.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestPipeline(t *testing.T, cfg *config.Config, sem semantic.Client) (*Pipeline, store.Store) {
	t.Helper()
	synonyms, err := registry.Default()
	require.NoError(t, err)
	st := testStore(t, cfg)
	return New(cfg, st, synonyms, sem), st
}

func TestPipeline_FullRun(t *testing.T) {
	cfg := testConfig(t)
	p, st := newTestPipeline(t, cfg, nil)

	template := writeTemplate(t)
	outPath := filepath.Join(t.TempDir(), "out.xlsx")

	result, err := p.Run(context.Background(), Request{
		TemplatePath: template,
		EvidenceRefs: []string{writeEvidence(t)},
		OutputPath:   outPath,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, outPath, result.OutputPath)
	assert.FileExists(t, outPath)

	// Both evidence facts land on their slots, scaled by the declared
	// thousands hint.
	require.NotNil(t, result.Assignments)
	assert.Len(t, result.Assignments.Assignments, 2)
	for _, a := range result.Assignments.Assignments {
		assert.True(t, a.Assigned())
	}

	f, err := xlsx.OpenFile(outPath)
	require.NoError(t, err)
	cash, err := f.Sheet["Model"].Cell(3, 1).Float()
	require.NoError(t, err)
	assert.InDelta(t, 1_250_000, cash, 1e-9)

	// Audit is finalized and persisted.
	require.NotNil(t, result.Audit)
	assert.True(t, result.Audit.Finalized)
	assert.NotEmpty(t, result.Audit.Postings)

	saved, err := st.GetAudit(context.Background(), result.RunID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, result.RunID, saved.RunID)

	run, err := st.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	postings, err := st.ListPostings(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Len(t, postings, len(result.Audit.Postings))
}

func TestPipeline_PhaseSequence(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, nil)

	result, err := p.Run(context.Background(), Request{
		TemplatePath: writeTemplate(t),
		EvidenceRefs: []string{writeEvidence(t)},
		OutputPath:   filepath.Join(t.TempDir(), "out.xlsx"),
	})
	require.NoError(t, err)

	var names []string
	for _, ph := range result.Phases {
		names = append(names, ph.Name)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status)
	}
	assert.Equal(t, []string{"normalize", "profile", "match", "reconcile", "writeback"}, names)
}

func TestPipeline_MissingTemplateFailsWithAudit(t *testing.T) {
	cfg := testConfig(t)
	p, st := newTestPipeline(t, cfg, nil)

	result, err := p.Run(context.Background(), Request{
		TemplatePath: filepath.Join(t.TempDir(), "nope.xlsx"),
		EvidenceRefs: []string{writeEvidence(t)},
	})
	require.Error(t, err)
	require.NotNil(t, result)

	// The aborted run still leaves an inspectable finalized audit.
	require.NotNil(t, result.Audit)
	assert.True(t, result.Audit.Finalized)
	require.NotNil(t, result.Audit.FatalException())
	assert.Equal(t, model.ExceptionProfiling, result.Audit.FatalException().Kind)
	assert.Empty(t, result.OutputPath)

	run, getErr := st.GetRun(context.Background(), result.RunID)
	require.NoError(t, getErr)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestPipeline_UnreadableEvidenceFails(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, nil)

	result, err := p.Run(context.Background(), Request{
		TemplatePath: writeTemplate(t),
		EvidenceRefs: []string{filepath.Join(t.TempDir(), "missing.json")},
	})
	require.Error(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Audit.FatalException())
	assert.Equal(t, model.ExceptionEvidenceParse, result.Audit.FatalException().Kind)
}

type stubSemantic struct {
	calls int
	text  string
}

func (s *stubSemantic) CreateMessage(_ context.Context, _ semantic.MessageRequest) (*semantic.MessageResponse, error) {
	s.calls++
	return &semantic.MessageResponse{
		Content: []semantic.ContentBlock{{Type: "text", Text: s.text}},
	}, nil
}

func TestPipeline_SemanticDisabledByZeroWeight(t *testing.T) {
	cfg := testConfig(t)
	stub := &stubSemantic{text: `{"scores": []}`}
	p, _ := newTestPipeline(t, cfg, stub)

	_, err := p.Run(context.Background(), Request{
		TemplatePath: writeTemplate(t),
		EvidenceRefs: []string{writeEvidence(t)},
		OutputPath:   filepath.Join(t.TempDir(), "out.xlsx"),
	})
	require.NoError(t, err)
	assert.Zero(t, stub.calls)
}

func TestPipeline_SemanticScoresFetched(t *testing.T) {
	cfg := testConfig(t)
	cfg.Match.SemanticWeight = 0.3
	cfg.Semantic = config.SemanticConfig{RateLimit: 100}
	stub := &stubSemantic{text: `{"scores": []}`}
	p, _ := newTestPipeline(t, cfg, stub)

	_, err := p.Run(context.Background(), Request{
		TemplatePath: writeTemplate(t),
		EvidenceRefs: []string{writeEvidence(t)},
		OutputPath:   filepath.Join(t.TempDir(), "out.xlsx"),
	})
	require.NoError(t, err)
	assert.Positive(t, stub.calls)
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "model.mapped.xlsx", defaultOutputPath("model.xlsx"))
	assert.Equal(t, "dir/model.mapped.xlsx", defaultOutputPath("dir/model.xlsx"))
}
