package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virusnet/internal/model"
)

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	diagnostics := []model.GenerationDiagnostics{
		{Generation: 0, BestFitness: 0.5, Evaluated: 4},
		{Generation: 1, BestFitness: 0.7, Evaluated: 3, Failures: 1},
	}
	run := model.RunRecord{RunID: runID, Status: model.StatusExhausted, StopGeneration: 1, BestFitness: 0.7, BestPositions: []int{0, 1}}
	runDir, err := WriteRunArtifacts(baseDir, RunArtifacts{
		RunID:       runID,
		Config:      map[string]any{"nodeCount": 2},
		Summary:     Summarize(run, diagnostics),
		Diagnostics: diagnostics,
	})
	require.NoError(t, err)

	for _, file := range []string{"config.json", "summary.json", "diagnostics.json"} {
		_, err := os.Stat(filepath.Join(runDir, file))
		require.NoError(t, err, file)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	require.NoError(t, err)
	for _, file := range []string{"config.json", "summary.json", "diagnostics.json"} {
		_, err := os.Stat(filepath.Join(exportedDir, file))
		require.NoError(t, err, file)
	}
	_, err = os.Stat(filepath.Join(exportedDir, ResultFileName))
	assert.True(t, os.IsNotExist(err))

	exporter, err := NewCSVExporter(baseDir, runID)
	require.NoError(t, err)
	_, err = exporter.Flush()
	require.NoError(t, err)
	exportedDir, err = ExportRunArtifacts(baseDir, runID, outDir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(exportedDir, ResultFileName))
	assert.NoError(t, err)

	snapshot := model.TopologySnapshot{RunID: runID, Nodes: []model.Node{{ID: 0}, {ID: 1}}, Edges: []model.Edge{{From: 1, To: 0}}}
	require.NoError(t, WriteTopology(runDir, snapshot))
	_, err = ExportRunArtifacts(baseDir, runID, outDir)
	require.NoError(t, err)
	loadedTopology, ok, err := ReadTopology(outDir, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot, loadedTopology)

	summary, ok, err := ReadRunSummary(baseDir, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "01", summary.BestPositions)
	loaded, ok, err := ReadDiagnostics(baseDir, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, diagnostics, loaded)

	_, err = ExportRunArtifacts(baseDir, "missing", outDir)
	assert.Error(t, err)
	_, err = WriteRunArtifacts(baseDir, RunArtifacts{})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	summary := Summarize(model.RunRecord{RunID: "r", Status: model.StatusConverged}, []model.GenerationDiagnostics{
		{BestFitness: 0.2, Evaluated: 4},
		{BestFitness: 0.6, Evaluated: 2, Failures: 2},
	})
	assert.InDelta(t, 0.2, summary.InitialBest, 1e-12)
	assert.InDelta(t, 0.4, summary.Improvement, 1e-12)
	assert.InDelta(t, 0.4, summary.BestMean, 1e-12)
	assert.InDelta(t, 0.2, summary.BestStd, 1e-12)
	assert.Equal(t, 8, summary.Evaluations)
	assert.Equal(t, 2, summary.Failures)

	empty := Summarize(model.RunRecord{RunID: "r"}, nil)
	assert.Zero(t, empty.Evaluations)
}

func TestRunIndexOrdering(t *testing.T) {
	baseDir := t.TempDir()
	entries, err := ListRunIndex(baseDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z"}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z", BestFitness: 0.9}))

	entries, err = ListRunIndex(baseDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].RunID)
	assert.Equal(t, "b", entries[1].RunID)
	assert.Equal(t, "a", entries[2].RunID)
	assert.Equal(t, 0.9, entries[2].BestFitness)

	assert.Error(t, AppendRunIndex(baseDir, RunIndexEntry{}))
}

func TestRunIndexUpsertKeepsAppendOrderForTies(t *testing.T) {
	baseDir := t.TempDir()
	const ts = "2026-03-01T00:00:00Z"
	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: id, CreatedAtUTC: ts}))
	}
	// Rewriting the index twice must not flip equal-timestamp entries.
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "y", CreatedAtUTC: ts, BestFitness: 0.5}))
	require.NoError(t, AppendRunIndex(baseDir, RunIndexEntry{RunID: "x", CreatedAtUTC: ts, BestFitness: 0.7}))

	entries, err := ListRunIndex(baseDir)
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.RunID)
	}
	assert.Equal(t, []string{"z", "y", "x"}, ids)

	raw, err := readRunIndex(baseDir)
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, "x", raw[0].RunID)
	assert.Equal(t, 0.7, raw[0].BestFitness)
}
