package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/statement-mapper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	template_path TEXT NOT NULL,
	evidence_refs TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	result        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_postings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	slot_id    TEXT NOT NULL,
	posting    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_audits (
	run_id       TEXT PRIMARY KEY REFERENCES runs(id),
	audit        TEXT NOT NULL,
	finalized_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_audit_postings_run_id ON audit_postings(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, templatePath string, evidenceRefs []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	refsJSON, err := json.Marshal(evidenceRefs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal evidence refs")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, template_path, evidence_refs, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, templatePath, string(refsJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:           id,
		TemplatePath: templatePath,
		EvidenceRefs: evidenceRefs,
		Status:       model.RunStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, template_path, evidence_refs, status, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, template_path, evidence_refs, status, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) AppendPostings(ctx context.Context, runID string, postings []model.CellPosting) error {
	if len(postings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin postings tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_postings (run_id, slot_id, posting, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare posting insert")
	}
	defer stmt.Close()

	for _, p := range postings {
		body, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal posting")
		}
		if _, err := stmt.ExecContext(ctx, runID, p.SlotID, string(body), p.CreatedAt); err != nil {
			return eris.Wrapf(err, "sqlite: insert posting %s", p.SlotID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit postings")
}

func (s *SQLiteStore) ListPostings(ctx context.Context, runID string) ([]model.CellPosting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT posting FROM audit_postings WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list postings")
	}
	defer rows.Close()

	var postings []model.CellPosting
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan posting")
		}
		var p model.CellPosting
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal posting")
		}
		postings = append(postings, p)
	}
	return postings, eris.Wrap(rows.Err(), "sqlite: list postings iterate")
}

func (s *SQLiteStore) SaveAudit(ctx context.Context, audit *model.RunAudit) error {
	body, err := json.Marshal(audit)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit")
	}

	// Audits are immutable once finalized: reject overwrites.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_audits (run_id, audit, finalized_at) VALUES (?, ?, ?)`,
		audit.RunID, string(body), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert audit %s", audit.RunID)
}

func (s *SQLiteStore) GetAudit(ctx context.Context, runID string) (*model.RunAudit, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT audit FROM run_audits WHERE run_id = ?`, runID,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get audit %s", runID)
	}

	var audit model.RunAudit
	if err := json.Unmarshal([]byte(body), &audit); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal audit")
	}
	return &audit, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var r model.Run
	var refsJSON string
	err := row.Scan(&r.ID, &r.TemplatePath, &refsJSON, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(refsJSON), &r.EvidenceRefs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal evidence refs")
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
