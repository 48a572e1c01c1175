package store

import (
	"context"
	"time"

	"github.com/parity-labs/parity-cli/internal/model"
)

// RunFilter specifies criteria for listing validation runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	ProducerID   string          `json:"producer_id,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for validation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, pairs []model.PairKey) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	SaveMatrix(ctx context.Context, runID string, matrix *model.ValidationMatrix) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Pair history across runs, newest first.
	PairHistory(ctx context.Context, key model.PairKey, limit int) ([]model.PairResult, error)

	// Taxonomy sharing
	SaveTaxonomy(ctx context.Context, taxonomy *model.SchemaTaxonomy) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
