package ports

import (
	"context"

	"chatintent/domain/core"
	"chatintent/domain/run"
)

// RunRepository records training runs and their epoch history
type RunRepository interface {
	// Create registers a run in the running state
	Create(ctx context.Context, manifest *run.Manifest) error

	// AddEpochs appends epoch rows to a run
	AddEpochs(ctx context.Context, runID core.RunID, epochs []run.Epoch) error

	// Finish stores the final outcome of a run
	Finish(ctx context.Context, runID core.RunID, outcome run.Outcome) error

	// Get returns a run with its epochs; NOT_FOUND when unknown
	Get(ctx context.Context, runID core.RunID) (*run.Record, error)

	// ListRecent returns runs newest first, without epochs
	ListRecent(ctx context.Context, limit int) ([]*run.Record, error)
}
