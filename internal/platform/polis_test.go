package platform

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virusnet/internal/config"
	"virusnet/internal/evo"
	"virusnet/internal/logging"
	"virusnet/internal/model"
	"virusnet/internal/network"
	"virusnet/internal/scape"
	"virusnet/internal/stats"
	"virusnet/internal/storage"
)

type namedSimulation struct {
	name string
	run  scape.SimulationFunc
}

func (s namedSimulation) Name() string { return s.name }

func (s namedSimulation) Run(ctx context.Context, topo *network.Topology, positions []int, steps int, rng *rand.Rand) ([]model.NodeStatus, error) {
	return s.run(ctx, topo, positions, steps, rng)
}

func smallRun(t *testing.T) config.RunConfig {
	t.Helper()
	cfg := config.Default()
	cfg.NodeCount = 20
	cfg.PopulationSize = 6
	cfg.MaxGenerations = 3
	cfg.SimulationStepCount = 10
	cfg.DesiredFitness = 1.01
	cfg.Seed = 11
	cfg.Workers = 2
	cfg.OutputDir = t.TempDir()
	return cfg
}

func newTestPolis(t *testing.T, sims ...scape.Simulation) *Polis {
	t.Helper()
	p := NewPolis(Config{
		Store:       storage.NewMemoryStore(),
		Simulations: sims,
		Logger:      logging.Discard(),
		Now:         func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	require.NoError(t, p.Init(context.Background()))
	return p
}

func TestRunExplorationRequiresInit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	_, err := p.RunExploration(context.Background(), ExplorationConfig{Run: config.Default()})
	assert.ErrorIs(t, err, errNotStarted)

	assert.Error(t, NewPolis(Config{}).Init(context.Background()))
}

func TestRunExplorationPersistsEverything(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	run := smallRun(t)

	var seen []int
	result, err := p.RunExploration(ctx, ExplorationConfig{
		RunID:        "run-full",
		Run:          run,
		OnGeneration: func(d model.GenerationDiagnostics) { seen = append(seen, d.Generation) },
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExhausted, result.Record.Status)
	assert.Equal(t, 2, result.Record.StopGeneration)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, scape.VirusOnNetworkName, result.Record.Simulation)
	assert.Equal(t, "2026-01-02T03:04:05Z", result.Record.CreatedAtUTC)
	assert.Len(t, result.Record.BestPositions, 20)
	assert.Empty(t, p.ActiveRuns())

	store := p.Store()
	stored, ok, err := store.GetRun(ctx, "run-full")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Record, stored)

	history, ok, err := store.GetGenerationResults(ctx, "run-full")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, history, 18)

	diagnostics, ok, err := store.GetDiagnostics(ctx, "run-full")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, diagnostics, 3)

	topo, ok, err := store.GetTopology(ctx, "run-full")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, topo.Nodes, 20)
	assert.Len(t, topo.Edges, 19)

	assert.Equal(t, filepath.Join(run.OutputDir, "run-full", stats.ResultFileName), result.Record.CSVPath)
	exported, err := stats.ReadResultsFile(result.Record.CSVPath, "run-full")
	require.NoError(t, err)
	assert.Equal(t, history, exported)

	_, err = os.Stat(filepath.Join(result.ArtifactsDir, "summary.json"))
	assert.NoError(t, err)
	index, err := stats.ListRunIndex(run.OutputDir)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, model.StatusExhausted, index[0].Status)
}

func TestRunExplorationIsDeterministicForSeed(t *testing.T) {
	run := smallRun(t)
	run.OutputDir = ""
	first, err := newTestPolis(t).RunExploration(context.Background(), ExplorationConfig{RunID: "a", Run: run})
	require.NoError(t, err)
	second, err := newTestPolis(t).RunExploration(context.Background(), ExplorationConfig{RunID: "a", Run: run})
	require.NoError(t, err)

	assert.Equal(t, first.Monitor.Diagnostics, second.Monitor.Diagnostics)
	assert.Equal(t, first.Record.BestPositions, second.Record.BestPositions)
	assert.Empty(t, first.Record.CSVPath)
}

func TestRunExplorationTopologyFailureAborts(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	run := smallRun(t)
	run.NodeCount = 3
	run.InitialEdgesPerNode = 0
	run.AbortOnIsolated = true

	result, err := p.RunExploration(ctx, ExplorationConfig{RunID: "run-iso", Run: run})
	require.Error(t, err)
	assert.ErrorIs(t, err, evo.ErrTopologyGeneration)
	assert.Equal(t, model.StatusAborted, result.Record.Status)
	assert.Equal(t, evo.KindTopologyGeneration, result.Record.ErrorKind)

	stored, ok, err := p.Store().GetRun(ctx, "run-iso")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusAborted, stored.Status)
}

func TestRunExplorationUsesRegisteredSimulation(t *testing.T) {
	allResistant := namedSimulation{name: "all-susceptible", run: func(_ context.Context, topo *network.Topology, _ []int, _ int, _ *rand.Rand) ([]model.NodeStatus, error) {
		return make([]model.NodeStatus, topo.NodeCount()), nil
	}}
	p := newTestPolis(t, allResistant)
	assert.Contains(t, p.RegisteredSimulations(), "all-susceptible")
	assert.Contains(t, p.RegisteredSimulations(), scape.VirusOnNetworkName)
	assert.Error(t, p.RegisterSimulation(allResistant))

	run := smallRun(t)
	run.DesiredFitness = 0.95
	result, err := p.RunExploration(context.Background(), ExplorationConfig{Simulation: "all-susceptible", Run: run})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConverged, result.Record.Status)
	assert.Equal(t, 0, result.Record.StopGeneration)
	assert.Equal(t, 1.0, result.Record.BestFitness)
	assert.NotEmpty(t, result.Record.RunID)

	_, err = p.RunExploration(context.Background(), ExplorationConfig{Simulation: "missing", Run: run})
	assert.Error(t, err)
}

func TestStopRunCancelsActiveExploration(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	blocking := namedSimulation{name: "blocking", run: func(ctx context.Context, _ *network.Topology, _ []int, _ int, _ *rand.Rand) ([]model.NodeStatus, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := newTestPolis(t, blocking)
	run := smallRun(t)
	run.Workers = 1

	done := make(chan ExplorationResult, 1)
	errs := make(chan error, 1)
	go func() {
		result, err := p.RunExploration(context.Background(), ExplorationConfig{RunID: "run-stop", Simulation: "blocking", Run: run})
		done <- result
		errs <- err
	}()

	<-started
	assert.Equal(t, []string{"run-stop"}, p.ActiveRuns())
	require.NoError(t, p.StopRun("run-stop"))

	result := <-done
	require.NoError(t, <-errs)
	assert.Equal(t, model.StatusCancelled, result.Record.Status)
	assert.Equal(t, evo.KindCancelled, result.Record.ErrorKind)
	assert.Empty(t, result.Monitor.History)

	stored, ok, err := p.Store().GetRun(context.Background(), "run-stop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	assert.Error(t, p.StopRun("run-stop"))
}

func TestRunExplorationRejectsInvalidConfig(t *testing.T) {
	p := newTestPolis(t)
	run := smallRun(t)
	run.PopulationSize = 5
	_, err := p.RunExploration(context.Background(), ExplorationConfig{Run: run})
	assert.Error(t, err)
}
