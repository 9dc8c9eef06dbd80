package storage

import (
	"context"

	"virusnet/internal/model"
)

// Store defines transaction-like persistence operations for exploration runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveGenerationResults(ctx context.Context, runID string, results []model.GenerationResult) error
	GetGenerationResults(ctx context.Context, runID string) ([]model.GenerationResult, bool, error)
	SaveDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveTopology(ctx context.Context, snapshot model.TopologySnapshot) error
	GetTopology(ctx context.Context, runID string) (model.TopologySnapshot, bool, error)
}
