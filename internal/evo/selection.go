package evo

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
)

type DegeneratePolicy string

const (
	// DegenerateUniform samples uniformly over the remaining individuals
	// when every weight is zero.
	DegenerateUniform DegeneratePolicy = "uniform"
	// DegenerateAbort fails selection with ErrDegenerateWeights.
	DegenerateAbort DegeneratePolicy = "abort"
)

func ParseDegeneratePolicy(name string) (DegeneratePolicy, error) {
	switch DegeneratePolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", DegenerateUniform:
		return DegenerateUniform, nil
	case DegenerateAbort:
		return DegenerateAbort, nil
	default:
		return "", fmt.Errorf("unsupported degenerate weights policy: %s", name)
	}
}

// Duel is one adjacent-pair elimination. Drawn is the weighted pick; the
// other member of the pair is its neighbour.
type Duel struct {
	Drawn   *Individual
	Kept    *Individual
	Removed *Individual
}

type Selection struct {
	Survivors        []*Individual
	Duels            []Duel
	UniformFallbacks int
}

// WeightedPairwiseElimination removes floor(n/2) individuals. Each round
// draws one index with probability proportional to floor(fitness*100),
// pairs it with its left neighbour (right neighbour for index 0) and drops
// the weaker of the two. On equal fitness the neighbour is dropped.
type WeightedPairwiseElimination struct {
	Policy DegeneratePolicy
	Logger *slog.Logger
}

func (WeightedPairwiseElimination) Name() string {
	return "weighted_pairwise_elimination"
}

func (s WeightedPairwiseElimination) Select(rng *rand.Rand, population []*Individual) (Selection, error) {
	if rng == nil {
		return Selection{}, fmt.Errorf("random source is required")
	}
	policy := s.Policy
	if policy == "" {
		policy = DegenerateUniform
	}

	pool := newEliminationPool(population)
	rounds := len(population) / 2
	duels := make([]Duel, 0, rounds)
	fallbacks := 0
	for round := 0; round < rounds; round++ {
		one, ok := pool.drawWeighted(rng)
		if !ok {
			if policy == DegenerateAbort {
				return Selection{}, fmt.Errorf("round %d of %d with %d candidates: %w", round+1, rounds, pool.len(), ErrDegenerateWeights)
			}
			one = rng.Intn(pool.len())
			fallbacks++
		}
		two := one - 1
		if one == 0 {
			two = one + 1
		}

		loser, winner := two, one
		if population[pool.order[one]].Fitness < population[pool.order[two]].Fitness {
			loser, winner = one, two
		}
		duels = append(duels, Duel{
			Drawn:   population[pool.order[one]],
			Kept:    population[pool.order[winner]],
			Removed: population[pool.order[loser]],
		})
		pool.remove(loser)
	}

	if fallbacks > 0 {
		degenerateFallbacksTotal.Add(float64(fallbacks))
		s.logger().Warn("selection weights degenerate, sampled uniformly", "draws", fallbacks, "population", len(population))
	}

	survivors := make([]*Individual, 0, pool.len())
	for _, idx := range pool.order {
		survivors = append(survivors, population[idx])
	}
	return Selection{Survivors: survivors, Duels: duels, UniformFallbacks: fallbacks}, nil
}

func (s WeightedPairwiseElimination) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// eliminationPool keeps arena indices and their weights aligned. remove is
// the only mutator, so both slices always shrink together.
type eliminationPool struct {
	order   []int
	weights []int
}

func newEliminationPool(population []*Individual) *eliminationPool {
	p := &eliminationPool{
		order:   make([]int, len(population)),
		weights: make([]int, len(population)),
	}
	for i, ind := range population {
		p.order[i] = i
		p.weights[i] = selectionWeight(ind.Fitness)
	}
	return p
}

func (p *eliminationPool) len() int {
	return len(p.order)
}

// drawWeighted returns a position in the pool, or false when the weights sum
// to zero.
func (p *eliminationPool) drawWeighted(rng *rand.Rand) (int, bool) {
	total := 0
	for _, w := range p.weights {
		total += w
	}
	if total <= 0 {
		return 0, false
	}
	r := rng.Intn(total)
	for pos, w := range p.weights {
		if r < w {
			return pos, true
		}
		r -= w
	}
	return len(p.weights) - 1, true
}

func (p *eliminationPool) remove(pos int) {
	p.order = append(p.order[:pos], p.order[pos+1:]...)
	p.weights = append(p.weights[:pos], p.weights[pos+1:]...)
}

func selectionWeight(fitness float64) int {
	if math.IsNaN(fitness) || fitness <= 0 {
		return 0
	}
	return int(math.Floor(fitness * 100))
}
