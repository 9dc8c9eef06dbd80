package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"virusnet/internal/model"
)

// Exporter receives every recorded generation result once a run stops.
type Exporter interface {
	Record(entry model.GenerationResult) error
	Flush() (string, error)
}

type MonitorConfig struct {
	RunID          string
	Evaluator      *Evaluator
	Selector       Selector
	Recombiner     Recombiner
	Mutator        Mutator
	PopulationSize int
	NodeCount      int
	DesiredFitness float64
	MaxGenerations int
	Workers        int
	Seed           int64
	Exporter       Exporter
	NewID          func() string
	Logger         *slog.Logger
	OnGeneration   func(model.GenerationDiagnostics)
}

type RunResult struct {
	RunID          string
	Status         model.RunStatus
	StopGeneration int
	Err            error
	ErrorKind      string
	History        []model.GenerationResult
	Diagnostics    []model.GenerationDiagnostics
	Best           *Individual
	BestGeneration int
	// FinalPopulation is the last fully evaluated generation.
	FinalPopulation []*Individual
	ExportPath      string
}

// PopulationMonitor drives the generation loop:
// evaluate, check convergence, select, recombine, mutate, repeat.
type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.NodeCount <= 0 {
		return nil, fmt.Errorf("node count must be > 0")
	}
	if cfg.MaxGenerations <= 0 {
		return nil, fmt.Errorf("max generations must be > 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Selector == nil {
		cfg.Selector = WeightedPairwiseElimination{Logger: cfg.Logger}
	}
	if cfg.Recombiner == nil {
		cfg.Recombiner = MidpointCrossover{TargetSize: cfg.PopulationSize}
	}
	if cfg.Mutator == nil {
		cfg.Mutator = BitFlip{}
	}
	if cfg.NewID == nil {
		cfg.NewID = NewIndividualID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run evolves initial until convergence, exhaustion, cancellation or an
// aborting error. The returned error is non-nil only for aborted runs and
// export failures; the stop reason is always in RunResult.Status.
func (m *PopulationMonitor) Run(ctx context.Context, initial []*Individual) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}
	if err := m.checkAlleles(initial, "init"); err != nil {
		return RunResult{}, err
	}

	population := make([]*Individual, len(initial))
	copy(population, initial)

	result := RunResult{
		RunID:          m.cfg.RunID,
		History:        make([]model.GenerationResult, 0, m.cfg.PopulationSize*m.cfg.MaxGenerations),
		Diagnostics:    make([]model.GenerationDiagnostics, 0, m.cfg.MaxGenerations),
		BestGeneration: -1,
	}
	mutations := 0

	for gen := 0; ; gen++ {
		if err := ctx.Err(); err != nil {
			m.stop(&result, model.StatusCancelled, gen, err)
			break
		}

		failures, err := m.evaluateGeneration(ctx, population, gen)
		if err != nil {
			if ctx.Err() != nil {
				m.stop(&result, model.StatusCancelled, gen, ctx.Err())
			} else {
				m.stop(&result, model.StatusAborted, gen, err)
			}
			break
		}

		diag := m.recordGeneration(&result, population, gen, failures, mutations)
		result.FinalPopulation = population
		m.cfg.Logger.Info("generation evaluated",
			"run", m.cfg.RunID,
			"generation", gen,
			"best", diag.BestFitness,
			"mean", diag.MeanFitness,
			"failures", failures,
		)
		if m.cfg.OnGeneration != nil {
			m.cfg.OnGeneration(diag)
		}

		if diag.BestFitness >= m.cfg.DesiredFitness && diag.Evaluated > 0 {
			m.stop(&result, model.StatusConverged, gen, nil)
			break
		}
		if gen+1 >= m.cfg.MaxGenerations {
			m.stop(&result, model.StatusExhausted, gen, nil)
			break
		}

		next, applied, err := m.breed(population)
		if err != nil {
			m.stop(&result, model.StatusAborted, gen, err)
			break
		}
		population = next
		mutations = applied
	}

	runsTotal.WithLabelValues(string(result.Status)).Inc()
	m.cfg.Logger.Info("run stopped",
		"run", m.cfg.RunID,
		"status", result.Status,
		"generation", result.StopGeneration,
		"error_kind", result.ErrorKind,
	)

	if m.cfg.Exporter != nil {
		path, err := m.export(result.History)
		if err != nil {
			return result, fmt.Errorf("export results: %w", err)
		}
		result.ExportPath = path
	}
	if result.Status == model.StatusAborted {
		return result, result.Err
	}
	return result, nil
}

func (m *PopulationMonitor) stop(result *RunResult, status model.RunStatus, generation int, err error) {
	result.Status = status
	result.StopGeneration = generation
	result.Err = err
	result.ErrorKind = ErrorKind(err)
}

// evaluateGeneration scores every individual concurrently. Each individual
// draws from its own source derived from (seed, generation, index), so the
// outcome does not depend on scheduling order.
func (m *PopulationMonitor) evaluateGeneration(ctx context.Context, population []*Individual, generation int) (int, error) {
	ctx, span := tracer.Start(ctx, "generation")
	span.SetAttributes(attribute.Int("generation", generation), attribute.Int("population", len(population)))
	defer span.End()

	for _, ind := range population {
		ind.State = model.Unevaluated
	}

	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i, ind := range population {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(evaluationSeed(m.cfg.Seed, generation, i)))
			_, err := m.cfg.Evaluator.Evaluate(gctx, ind, rng)
			if errors.Is(err, ErrEvaluationFailure) {
				failures.Add(1)
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return int(failures.Load()), err
	}
	generationsTotal.Inc()
	return int(failures.Load()), nil
}

func (m *PopulationMonitor) recordGeneration(result *RunResult, population []*Individual, generation, failures, mutations int) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation: generation,
		Failures:   failures,
		Mutations:  mutations,
	}
	total := 0.0
	for i, ind := range population {
		result.History = append(result.History, ind.Result(m.cfg.RunID, generation))
		total += ind.Fitness
		if i == 0 || ind.Fitness > diag.BestFitness {
			diag.BestFitness = ind.Fitness
		}
		if i == 0 || ind.Fitness < diag.MinFitness {
			diag.MinFitness = ind.Fitness
		}
		if ind.State == model.Evaluated {
			diag.Evaluated++
			if result.Best == nil || ind.Fitness > result.Best.Fitness {
				result.Best = ind.Clone()
				result.BestGeneration = generation
			}
		}
	}
	if len(population) > 0 {
		diag.MeanFitness = total / float64(len(population))
	}
	bestFitness.Set(diag.BestFitness)
	result.Diagnostics = append(result.Diagnostics, diag)
	return diag
}

// breed runs select, crossover and mutate, checking population invariants
// after each structural step.
func (m *PopulationMonitor) breed(population []*Individual) ([]*Individual, int, error) {
	selection, err := m.cfg.Selector.Select(m.rng, population)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", m.cfg.Selector.Name(), err)
	}
	wantSurvivors := m.cfg.PopulationSize - m.cfg.PopulationSize/2
	if len(selection.Survivors) != wantSurvivors {
		return nil, 0, &InvariantError{
			Stage:  "selection",
			Detail: fmt.Sprintf("population size %d, want %d", len(selection.Survivors), wantSurvivors),
		}
	}

	next, err := m.cfg.Recombiner.Crossover(m.rng, selection.Survivors, m.cfg.NewID)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", m.cfg.Recombiner.Name(), err)
	}
	if len(next) != m.cfg.PopulationSize {
		return nil, 0, &InvariantError{
			Stage:  "crossover",
			Detail: fmt.Sprintf("population size %d, want %d", len(next), m.cfg.PopulationSize),
		}
	}

	// Survivors are cloned so the evaluated generation stays a stable
	// snapshot while the next one is mutated.
	carried := make(map[*Individual]struct{}, len(selection.Survivors))
	for _, ind := range selection.Survivors {
		carried[ind] = struct{}{}
	}
	for i, ind := range next {
		if _, ok := carried[ind]; ok {
			next[i] = ind.Clone()
		}
	}

	applied := 0
	for _, ind := range next {
		if _, ok := m.cfg.Mutator.Mutate(m.rng, ind); ok {
			applied++
		}
	}
	if err := m.checkAlleles(next, "mutation"); err != nil {
		return nil, 0, err
	}
	return next, applied, nil
}

func (m *PopulationMonitor) checkAlleles(population []*Individual, stage string) error {
	for _, ind := range population {
		if len(ind.Positions) != m.cfg.NodeCount {
			return &InvariantError{
				Stage:  stage,
				Detail: fmt.Sprintf("individual %s has %d alleles, want %d", ind.ID, len(ind.Positions), m.cfg.NodeCount),
			}
		}
	}
	return nil
}

func (m *PopulationMonitor) export(history []model.GenerationResult) (string, error) {
	for _, entry := range history {
		if err := m.cfg.Exporter.Record(entry); err != nil {
			return "", err
		}
	}
	return m.cfg.Exporter.Flush()
}

// evaluationSeed mixes the run seed with the evaluation coordinates
// (splitmix64 finaliser).
func evaluationSeed(seed int64, generation, index int) int64 {
	z := uint64(seed) + uint64(generation)*0x9E3779B97F4A7C15 + uint64(index)*0xBF58476D1CE4E5B9
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
