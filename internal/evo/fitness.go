package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"virusnet/internal/model"
	"virusnet/internal/scape"
)

// FailedFitness is assigned to individuals whose evaluation failed. Its
// selection weight is zero.
const FailedFitness = 0.0

type StatusCounts struct {
	Susceptible int `json:"susceptible"`
	Infected    int `json:"infected"`
	Resistant   int `json:"resistant"`
}

func Tally(statuses []model.NodeStatus) StatusCounts {
	var c StatusCounts
	for _, s := range statuses {
		switch s {
		case model.Susceptible:
			c.Susceptible++
		case model.Infected:
			c.Infected++
		case model.Resistant:
			c.Resistant++
		}
	}
	return c
}

func (c StatusCounts) Total() int {
	return c.Susceptible + c.Infected + c.Resistant
}

// Fitness is 1 - resistant/nodeCount, clamped to [0, 1].
func (c StatusCounts) Fitness(nodeCount int) float64 {
	if nodeCount <= 0 {
		return FailedFitness
	}
	f := 1 - float64(c.Resistant)/float64(nodeCount)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Evaluator scores individuals by running the simulation for a fixed number
// of steps. Repeat calls on the same genome may return different values.
type Evaluator struct {
	Simulation scape.Simulation
	Steps      int
	// Timeout bounds one simulation run; zero disables it. On expiry the
	// individual is marked Failed right away, but a backend that ignores ctx
	// keeps running on its own goroutine until it returns, so backends should
	// check ctx between steps.
	Timeout time.Duration
	Logger  *slog.Logger
}

type runOutput struct {
	statuses []model.NodeStatus
	err      error
}

// Evaluate sets ind.Fitness and ind.State. A simulation failure marks the
// individual Failed and returns an *EvaluationError; cancellation of ctx
// leaves it Unevaluated and returns the context error.
func (e *Evaluator) Evaluate(ctx context.Context, ind *Individual, rng *rand.Rand) (float64, error) {
	if e.Simulation == nil {
		return 0, fmt.Errorf("simulation is required")
	}
	if ind == nil || ind.Topology == nil {
		return 0, fmt.Errorf("individual with topology is required")
	}
	if err := ctx.Err(); err != nil {
		ind.State = model.Unevaluated
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "evaluate")
	span.SetAttributes(attribute.String("individual.id", ind.ID))
	defer span.End()

	start := time.Now()
	counts, err := e.run(ctx, ind, rng)
	evaluationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			ind.State = model.Unevaluated
			evaluationsTotal.WithLabelValues("cancelled").Inc()
			return 0, ctxErr
		}
		ind.Fitness = FailedFitness
		ind.State = model.Failed
		evaluationsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger().Warn("evaluation failed", "individual", ind.ID, "error", err)
		return FailedFitness, &EvaluationError{IndividualID: ind.ID, Err: err}
	}

	fitness := counts.Fitness(ind.Topology.NodeCount())
	ind.Fitness = fitness
	ind.State = model.Evaluated
	evaluationsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Float64("fitness", fitness))
	e.logger().Debug("evaluated",
		"individual", ind.ID,
		"susceptible", counts.Susceptible,
		"infected", counts.Infected,
		"resistant", counts.Resistant,
		"fitness", fitness,
	)
	return fitness, nil
}

// run executes the simulation on its own goroutine so a backend that ignores
// ctx still cannot hold the caller past the timeout.
func (e *Evaluator) run(ctx context.Context, ind *Individual, rng *rand.Rand) (StatusCounts, error) {
	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	positions := append([]int(nil), ind.Positions...)
	done := make(chan runOutput, 1)
	go func() {
		statuses, err := e.Simulation.Run(runCtx, ind.Topology, positions, e.Steps, rng)
		done <- runOutput{statuses: statuses, err: err}
	}()

	var out runOutput
	select {
	case out = <-done:
	case <-runCtx.Done():
		return StatusCounts{}, fmt.Errorf("simulation %s: %w", e.Simulation.Name(), runCtx.Err())
	}
	if out.err != nil {
		return StatusCounts{}, fmt.Errorf("simulation %s: %w", e.Simulation.Name(), out.err)
	}

	nodeCount := ind.Topology.NodeCount()
	if len(out.statuses) != nodeCount {
		return StatusCounts{}, fmt.Errorf("simulation returned %d statuses for %d nodes", len(out.statuses), nodeCount)
	}
	counts := Tally(out.statuses)
	if counts.Total() != nodeCount {
		return StatusCounts{}, fmt.Errorf("status tally %d does not cover %d nodes", counts.Total(), nodeCount)
	}
	return counts, nil
}

func (e *Evaluator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
