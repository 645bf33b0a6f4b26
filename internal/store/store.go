package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run exists with the given id.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Source       string          `json:"source,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs and their outputs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Home-range samples
	SaveSamples(ctx context.Context, runID string, samples []model.RangeSample) error
	ListSamples(ctx context.Context, runID string) ([]model.RangeSample, error)

	// Logistic fit. GetFit returns nils without error when no fit is stored.
	SaveFit(ctx context.Context, runID string, fit *model.FitResult, settlement *model.Settlement) error
	GetFit(ctx context.Context, runID string) (*model.FitResult, *model.Settlement, error)

	// Dispersal distances
	SaveDispersals(ctx context.Context, runID string, dispersals []model.Dispersal) error
	ListDispersals(ctx context.Context, runID string) ([]model.Dispersal, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
