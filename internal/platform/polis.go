package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"virusnet/internal/config"
	"virusnet/internal/evo"
	"virusnet/internal/model"
	"virusnet/internal/network"
	"virusnet/internal/scape"
	"virusnet/internal/stats"
	"virusnet/internal/storage"
)

var tracer = otel.Tracer("virusnet/internal/platform")

type Config struct {
	Store storage.Store
	// Simulations take precedence over the package-level scape registry.
	Simulations []scape.Simulation
	Logger      *slog.Logger
	Now         func() time.Time
}

type ExplorationConfig struct {
	RunID string
	// Simulation names the backend; empty means the virus-on-network model
	// built from Run.Virus.
	Simulation    string
	Run           config.RunConfig
	SeedPositions [][]int
	OnGeneration  func(model.GenerationDiagnostics)
}

type ExplorationResult struct {
	Record       model.RunRecord
	Monitor      evo.RunResult
	Topology     *network.Topology
	ArtifactsDir string
}

// Polis owns the store and the simulation backends and runs explorations
// against them.
type Polis struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	simulations map[string]scape.Simulation
	runs        map[string]context.CancelFunc
	started     bool
}

var errNotStarted = errors.New("polis is not initialized")

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	p := &Polis{
		store:       cfg.Store,
		logger:      logger,
		now:         now,
		simulations: make(map[string]scape.Simulation),
		runs:        make(map[string]context.CancelFunc),
	}
	for _, sim := range cfg.Simulations {
		if sim != nil {
			p.simulations[sim.Name()] = sim
		}
	}
	return p
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Stop cancels every active run. The store stays open.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for runID, cancel := range p.runs {
		cancel()
		delete(p.runs, runID)
	}
	p.started = false
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) RegisterSimulation(sim scape.Simulation) error {
	if sim == nil {
		return fmt.Errorf("simulation is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.simulations[sim.Name()]; exists {
		return fmt.Errorf("simulation already registered: %s", sim.Name())
	}
	p.simulations[sim.Name()] = sim
	return nil
}

// RegisteredSimulations lists local and package-level backends.
func (p *Polis) RegisteredSimulations() []string {
	p.mu.RLock()
	seen := make(map[string]struct{}, len(p.simulations))
	for name := range p.simulations {
		seen[name] = struct{}{}
	}
	p.mu.RUnlock()
	for _, name := range scape.Registered() {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopRun cancels an active run. The run stops with status cancelled after
// its current generation step.
func (p *Polis) StopRun(runID string) error {
	p.mu.RLock()
	cancel, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	cancel()
	return nil
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.runs))
	for runID := range p.runs {
		ids = append(ids, runID)
	}
	sort.Strings(ids)
	return ids
}

// RunExploration generates the network, seeds the population, drives the
// genetic search to a stop condition and persists everything it produced.
// A non-nil error accompanies aborted runs; cancelled runs are persisted and
// reported through the record status.
func (p *Polis) RunExploration(ctx context.Context, cfg ExplorationConfig) (ExplorationResult, error) {
	if !p.Started() {
		return ExplorationResult{}, errNotStarted
	}
	if err := cfg.Run.Validate(); err != nil {
		return ExplorationResult{}, err
	}
	policy, err := evo.ParseDegeneratePolicy(cfg.Run.DegenerateWeights)
	if err != nil {
		return ExplorationResult{}, err
	}
	simName := cfg.Simulation
	if simName == "" {
		simName = scape.VirusOnNetworkName
	}
	sim, err := p.simulation(simName, cfg.Run.Virus)
	if err != nil {
		return ExplorationResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.registerRun(runID, cancel); err != nil {
		return ExplorationResult{}, err
	}
	defer p.unregisterRun(runID)

	ctx, span := tracer.Start(ctx, "exploration")
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("simulation", simName))
	defer span.End()

	logger := p.logger.With("run", runID)
	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           runID,
		Simulation:      simName,
		Config:          cfg.Run.Map(),
		CreatedAtUTC:    p.now().UTC().Format(time.RFC3339Nano),
	}
	// Persistence must outlive a cancelled run.
	persistCtx := context.WithoutCancel(ctx)

	topo, err := network.Generate(rand.New(rand.NewSource(cfg.Run.Seed)), network.GeneratorConfig{
		NodeCount:           cfg.Run.NodeCount,
		InitialEdgesPerNode: cfg.Run.InitialEdgesPerNode,
		Width:               cfg.Run.Width,
		Height:              cfg.Run.Height,
		AbortOnIsolated:     cfg.Run.AbortOnIsolated,
		Logger:              logger,
	})
	if err != nil {
		return p.abort(persistCtx, span, record, fmt.Errorf("generate topology: %w", err))
	}
	if err := p.store.SaveTopology(persistCtx, snapshot(runID, topo)); err != nil {
		return ExplorationResult{}, err
	}

	population, err := evo.InitPopulation(rand.New(rand.NewSource(cfg.Run.Seed+1)), topo, evo.InitConfig{
		Size:                 cfg.Run.PopulationSize,
		ResistantProbability: cfg.Run.InitialResistantProbability,
		SeedPositions:        cfg.SeedPositions,
	})
	if err != nil {
		return p.abort(persistCtx, span, record, fmt.Errorf("init population: %w", err))
	}

	var exporter evo.Exporter
	if cfg.Run.OutputDir != "" {
		csvExporter, err := stats.NewCSVExporter(cfg.Run.OutputDir, runID)
		if err != nil {
			return ExplorationResult{}, err
		}
		exporter = csvExporter
	}

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		RunID: runID,
		Evaluator: &evo.Evaluator{
			Simulation: sim,
			Steps:      cfg.Run.SimulationStepCount,
			Timeout:    cfg.Run.EvaluationTimeout,
			Logger:     logger,
		},
		Selector:       evo.WeightedPairwiseElimination{Policy: policy, Logger: logger},
		Recombiner:     evo.MidpointCrossover{TargetSize: cfg.Run.PopulationSize},
		Mutator:        evo.BitFlip{Rate: cfg.Run.MutationRate},
		PopulationSize: cfg.Run.PopulationSize,
		NodeCount:      cfg.Run.NodeCount,
		DesiredFitness: cfg.Run.DesiredFitness,
		MaxGenerations: cfg.Run.MaxGenerations,
		Workers:        cfg.Run.Workers,
		Seed:           cfg.Run.Seed + 2,
		Exporter:       exporter,
		Logger:         logger,
		OnGeneration:   cfg.OnGeneration,
	})
	if err != nil {
		return ExplorationResult{}, err
	}

	result, runErr := monitor.Run(ctx, population)
	record.Status = result.Status
	if record.Status == "" {
		record.Status = model.StatusAborted
	}
	record.StopGeneration = result.StopGeneration
	record.ErrorKind = result.ErrorKind
	record.CSVPath = result.ExportPath
	if result.Best != nil {
		record.BestFitness = result.Best.Fitness
		record.BestPositions = append([]int(nil), result.Best.Positions...)
	}
	switch {
	case runErr != nil:
		record.Error = runErr.Error()
		if record.ErrorKind == "" {
			record.ErrorKind = evo.ErrorKind(runErr)
		}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	case result.Err != nil:
		record.Error = result.Err.Error()
	}

	out := ExplorationResult{Record: record, Monitor: result, Topology: topo}
	if err := p.persist(persistCtx, record, result); err != nil {
		return out, errors.Join(runErr, err)
	}
	if cfg.Run.OutputDir != "" {
		dir, err := p.writeArtifacts(cfg.Run, record, result.Diagnostics, topo)
		if err != nil {
			return out, errors.Join(runErr, err)
		}
		out.ArtifactsDir = dir
	}
	return out, runErr
}

func (p *Polis) simulation(name string, virus config.VirusConfig) (scape.Simulation, error) {
	p.mu.RLock()
	sim, ok := p.simulations[name]
	p.mu.RUnlock()
	if ok {
		return sim, nil
	}
	if name == scape.VirusOnNetworkName {
		return scape.NewVirusOnNetwork(scape.VirusParams{
			SpreadChance:         virus.SpreadChance,
			CheckFrequency:       virus.CheckFrequency,
			RecoveryChance:       virus.RecoveryChance,
			GainResistanceChance: virus.GainResistanceChance,
			InitialOutbreakSize:  virus.InitialOutbreakSize,
		}), nil
	}
	return scape.Resolve(name)
}

func (p *Polis) abort(ctx context.Context, span trace.Span, record model.RunRecord, err error) (ExplorationResult, error) {
	record.Status = model.StatusAborted
	record.ErrorKind = evo.ErrorKind(err)
	record.Error = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if saveErr := p.store.SaveRun(ctx, record); saveErr != nil {
		return ExplorationResult{Record: record}, errors.Join(err, saveErr)
	}
	return ExplorationResult{Record: record}, err
}

func (p *Polis) persist(ctx context.Context, record model.RunRecord, result evo.RunResult) error {
	if err := p.store.SaveGenerationResults(ctx, record.RunID, result.History); err != nil {
		return err
	}
	if err := p.store.SaveDiagnostics(ctx, record.RunID, result.Diagnostics); err != nil {
		return err
	}
	return p.store.SaveRun(ctx, record)
}

func (p *Polis) writeArtifacts(run config.RunConfig, record model.RunRecord, diagnostics []model.GenerationDiagnostics, topo *network.Topology) (string, error) {
	dir, err := stats.WriteRunArtifacts(run.OutputDir, stats.RunArtifacts{
		RunID:       record.RunID,
		Config:      record.Config,
		Summary:     stats.Summarize(record, diagnostics),
		Diagnostics: diagnostics,
	})
	if err != nil {
		return "", err
	}
	if err := stats.WriteTopology(dir, snapshot(record.RunID, topo)); err != nil {
		return "", err
	}
	err = stats.AppendRunIndex(run.OutputDir, stats.RunIndexEntry{
		RunID:          record.RunID,
		Simulation:     record.Simulation,
		Status:         record.Status,
		PopulationSize: run.PopulationSize,
		NodeCount:      run.NodeCount,
		Seed:           run.Seed,
		BestFitness:    record.BestFitness,
		CreatedAtUTC:   record.CreatedAtUTC,
	})
	return dir, err
}

func (p *Polis) registerRun(runID string, cancel context.CancelFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = cancel
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.runs, runID)
}

func snapshot(runID string, topo *network.Topology) model.TopologySnapshot {
	return model.TopologySnapshot{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           runID,
		Nodes:           topo.Nodes(),
		Edges:           topo.Edges(),
		Isolated:        topo.Isolated(),
	}
}
