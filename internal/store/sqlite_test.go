package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-mapper/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "template.xlsx", []string{"evidence.json"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusMatching))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusMatching, got.Status)
	assert.Equal(t, []string{"evidence.json"}, got.EvidenceRefs)

	require.NoError(t, s.UpdateRunResult(ctx, run.ID, &model.RunResult{
		OutputPath:  "out.xlsx",
		SlotsFilled: 10,
		SlotsTotal:  12,
	}))
}

func TestSQLiteStore_GetRun_NotFound(t *testing.T) {
	s := newTestSQLite(t)
	got, err := s.GetRun(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_UpdateStatus_NotFound(t *testing.T) {
	s := newTestSQLite(t)
	err := s.UpdateRunStatus(context.Background(), "nonexistent", model.RunStatusFailed)
	require.Error(t, err)
}

func TestSQLiteStore_ListRuns_FilterByStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	r1, err := s.CreateRun(ctx, "a.xlsx", nil)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "b.xlsx", nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, r1.ID, model.RunStatusComplete))

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, r1.ID, complete[0].ID)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_PostingsAppendOnly(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "t.xlsx", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.AppendPostings(ctx, run.ID, []model.CellPosting{
		{SlotID: "s0001", Address: "Model!B4", FinalValue: 100, CreatedAt: now},
		{SlotID: "s0002", Address: "Model!B5", FinalValue: 200, CreatedAt: now},
	}))
	require.NoError(t, s.AppendPostings(ctx, run.ID, []model.CellPosting{
		{SlotID: "s0003", Address: "Model!B6", FinalValue: 300, CreatedAt: now},
	}))

	postings, err := s.ListPostings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, postings, 3)
	assert.Equal(t, "s0001", postings[0].SlotID)
	assert.Equal(t, "s0003", postings[2].SlotID)
	assert.Equal(t, 100.0, postings[0].FinalValue)
}

func TestSQLiteStore_ConcurrentPostingAppends(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	runA, err := s.CreateRun(ctx, "a.xlsx", nil)
	require.NoError(t, err)
	runB, err := s.CreateRun(ctx, "b.xlsx", nil)
	require.NoError(t, err)

	done := make(chan error, 2)
	appendN := func(runID, prefix string) {
		var err error
		for i := 0; i < 20 && err == nil; i++ {
			err = s.AppendPostings(ctx, runID, []model.CellPosting{
				{SlotID: prefix, CreatedAt: time.Now().UTC()},
			})
		}
		done <- err
	}
	go appendN(runA.ID, "a")
	go appendN(runB.ID, "b")
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	a, err := s.ListPostings(ctx, runA.ID)
	require.NoError(t, err)
	assert.Len(t, a, 20)
	b, err := s.ListPostings(ctx, runB.ID)
	require.NoError(t, err)
	assert.Len(t, b, 20)
}

func TestSQLiteStore_AuditImmutable(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "t.xlsx", nil)
	require.NoError(t, err)

	audit := &model.RunAudit{RunID: run.ID, TemplatePath: "t.xlsx", Finalized: true}
	require.NoError(t, s.SaveAudit(ctx, audit))

	got, err := s.GetAudit(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.ID, got.RunID)
	assert.True(t, got.Finalized)

	// Second save must fail: finalized audits are never overwritten.
	require.Error(t, s.SaveAudit(ctx, audit))
}

func TestSQLiteStore_GetAudit_NotFound(t *testing.T) {
	s := newTestSQLite(t)
	got, err := s.GetAudit(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}
