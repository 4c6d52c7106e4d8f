// Package store persists runs and their audit trails. Two backends: SQLite
// for single-operator use and Postgres for shared deployments. Audit postings
// are append-only and keyed by run id, so concurrent runs never conflict.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-mapper/internal/config"
	"github.com/sells-group/statement-mapper/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the mapping pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, templatePath string, evidenceRefs []string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Audit trail. Postings append during the run; the finalized audit is
	// written once at run end and never updated.
	AppendPostings(ctx context.Context, runID string, postings []model.CellPosting) error
	ListPostings(ctx context.Context, runID string) ([]model.CellPosting, error)
	SaveAudit(ctx context.Context, audit *model.RunAudit) error
	GetAudit(ctx context.Context, runID string) (*model.RunAudit, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store selected by configuration.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
