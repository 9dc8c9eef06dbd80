//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virusnet/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "virusnet.db")

	store := NewSQLiteStore(dbPath)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.RunRecord{
		VersionedRecord: CurrentVersion(),
		RunID:           "run-1",
		Status:          model.StatusExhausted,
		StopGeneration:  9,
		BestFitness:     0.8,
		BestPositions:   []int{0, 1},
		Simulation:      "virus-on-network",
		CreatedAtUTC:    "2026-01-01T00:00:00Z",
	}
	require.NoError(t, store.SaveRun(ctx, run))
	run.Status = model.StatusConverged
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, ok, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusConverged, loaded.Status)
	assert.Equal(t, []int{0, 1}, loaded.BestPositions)

	require.NoError(t, store.SaveRun(ctx, model.RunRecord{VersionedRecord: CurrentVersion(), RunID: "run-0", CreatedAtUTC: "2025-12-31T00:00:00Z"}))
	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-0", runs[0].RunID)

	results := []model.GenerationResult{{RunID: "run-1", IndividualID: "i1", Positions: []int{1, 0}, Fitness: 0.5, State: model.Evaluated}}
	require.NoError(t, store.SaveGenerationResults(ctx, "run-1", results))
	loadedResults, ok, err := store.GetGenerationResults(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, results, loadedResults)

	diagnostics := []model.GenerationDiagnostics{{Generation: 0, BestFitness: 0.5, Evaluated: 1}}
	require.NoError(t, store.SaveDiagnostics(ctx, "run-1", diagnostics))
	loadedDiagnostics, ok, err := store.GetDiagnostics(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, diagnostics, loadedDiagnostics)

	snapshot := model.TopologySnapshot{VersionedRecord: CurrentVersion(), RunID: "run-1", Nodes: []model.Node{{ID: 0}, {ID: 1}}, Edges: []model.Edge{{From: 1, To: 0}}}
	require.NoError(t, store.SaveTopology(ctx, snapshot))
	loadedTopology, ok, err := store.GetTopology(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot, loadedTopology)

	_, ok, err = store.GetGenerationResults(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStoreRequiresPathAndInit(t *testing.T) {
	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
	_, _, err := NewSQLiteStore("x.db").GetRun(context.Background(), "r")
	assert.Error(t, err)
}
