package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-mapper/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. Satisfied by pgxmock
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hot paths (posting appends dominate).
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, template_path, evidence_refs, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT id, template_path, evidence_refs, status, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_posting":    `INSERT INTO audit_postings (run_id, slot_id, posting, created_at) VALUES ($1, $2, $3, $4)`,
	"list_postings":     `SELECT posting FROM audit_postings WHERE run_id = $1 ORDER BY id`,
	"insert_audit":      `INSERT INTO run_audits (run_id, audit, finalized_at) VALUES ($1, $2, $3)`,
	"get_audit":         `SELECT audit FROM run_audits WHERE run_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	template_path TEXT NOT NULL,
	evidence_refs JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	result        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_postings (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	slot_id    TEXT NOT NULL,
	posting    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_audits (
	run_id       TEXT PRIMARY KEY REFERENCES runs(id),
	audit        JSONB NOT NULL,
	finalized_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_audit_postings_run_id ON audit_postings(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, templatePath string, evidenceRefs []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	refsJSON, err := json.Marshal(evidenceRefs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal evidence refs")
	}

	_, err = s.pool.Exec(ctx, preparedStatements["insert_run"],
		id, templatePath, string(refsJSON), string(model.RunStatusQueued), now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx, preparedStatements["update_run_status"],
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["update_run_result"],
		string(resultJSON), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var refsJSON string
	err := s.pool.QueryRow(ctx, preparedStatements["get_run"], runID).
		Scan(&r.ID, &r.TemplatePath, &refsJSON, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err := json.Unmarshal([]byte(refsJSON), &r.EvidenceRefs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal evidence refs")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, template_path, evidence_refs, status, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var refsJSON string
		if err := rows.Scan(&r.ID, &r.TemplatePath, &refsJSON, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal([]byte(refsJSON), &r.EvidenceRefs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence refs")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AppendPostings(ctx context.Context, runID string, postings []model.CellPosting) error {
	for _, p := range postings {
		body, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal posting")
		}
		if _, err := s.pool.Exec(ctx, preparedStatements["insert_posting"],
			runID, p.SlotID, string(body), p.CreatedAt); err != nil {
			return eris.Wrapf(err, "postgres: insert posting %s", p.SlotID)
		}
	}
	return nil
}

func (s *PostgresStore) ListPostings(ctx context.Context, runID string) ([]model.CellPosting, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_postings"], runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list postings")
	}
	defer rows.Close()

	var postings []model.CellPosting
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan posting")
		}
		var p model.CellPosting
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal posting")
		}
		postings = append(postings, p)
	}
	return postings, eris.Wrap(rows.Err(), "postgres: list postings iterate")
}

func (s *PostgresStore) SaveAudit(ctx context.Context, audit *model.RunAudit) error {
	body, err := json.Marshal(audit)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit")
	}
	_, err = s.pool.Exec(ctx, preparedStatements["insert_audit"],
		audit.RunID, string(body), time.Now().UTC())
	return eris.Wrapf(err, "postgres: insert audit %s", audit.RunID)
}

func (s *PostgresStore) GetAudit(ctx context.Context, runID string) (*model.RunAudit, error) {
	var body string
	err := s.pool.QueryRow(ctx, preparedStatements["get_audit"], runID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get audit %s", runID)
	}

	var audit model.RunAudit
	if err := json.Unmarshal([]byte(body), &audit); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal audit")
	}
	return &audit, nil
}
