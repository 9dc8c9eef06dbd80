package evo

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"virusnet/internal/model"
	"virusnet/internal/network"
)

// Individual is one genome together with the network it is evaluated on.
// The topology is shared read-only between individuals.
type Individual struct {
	ID        string
	ParentIDs []string
	Positions []int
	Topology  *network.Topology
	Fitness   float64
	State     model.EvalState
}

// Initialized reports whether the individual has been through evaluation.
func (ind *Individual) Initialized() bool {
	return ind.State != model.Unevaluated
}

// Clone copies the genome; the topology pointer is shared.
func (ind *Individual) Clone() *Individual {
	out := *ind
	out.Positions = append([]int(nil), ind.Positions...)
	out.ParentIDs = append([]string(nil), ind.ParentIDs...)
	return &out
}

func (ind *Individual) Result(runID string, generation int) model.GenerationResult {
	return model.GenerationResult{
		RunID:        runID,
		Generation:   generation,
		IndividualID: ind.ID,
		ParentIDs:    append([]string(nil), ind.ParentIDs...),
		Positions:    append([]int(nil), ind.Positions...),
		Fitness:      ind.Fitness,
		State:        ind.State,
	}
}

func NewIndividualID() string {
	return uuid.NewString()
}

type InitConfig struct {
	Size int
	// ResistantProbability is the chance that an allele starts at 1.
	ResistantProbability float64
	// SeedPositions replace the first len(SeedPositions) random genomes.
	SeedPositions [][]int
	NewID         func() string
}

// InitPopulation builds generation zero. Every individual shares topo.
func InitPopulation(rng *rand.Rand, topo *network.Topology, cfg InitConfig) ([]*Individual, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if topo == nil {
		return nil, fmt.Errorf("topology is required")
	}
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.ResistantProbability < 0 || cfg.ResistantProbability > 1 {
		return nil, fmt.Errorf("resistant probability must be in [0, 1]")
	}
	if len(cfg.SeedPositions) > cfg.Size {
		return nil, fmt.Errorf("seed positions exceed population size: %d > %d", len(cfg.SeedPositions), cfg.Size)
	}
	newID := cfg.NewID
	if newID == nil {
		newID = NewIndividualID
	}

	nodeCount := topo.NodeCount()
	population := make([]*Individual, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		positions := make([]int, nodeCount)
		if i < len(cfg.SeedPositions) {
			seed := cfg.SeedPositions[i]
			if len(seed) != nodeCount {
				return nil, fmt.Errorf("seed positions %d have length %d, want %d", i, len(seed), nodeCount)
			}
			for j, allele := range seed {
				if allele != 0 && allele != 1 {
					return nil, fmt.Errorf("seed positions %d: allele %d at %d is not binary", i, allele, j)
				}
			}
			copy(positions, seed)
		} else {
			for j := range positions {
				if rng.Float64() < cfg.ResistantProbability {
					positions[j] = 1
				}
			}
		}
		population = append(population, &Individual{
			ID:        newID(),
			Positions: positions,
			Topology:  topo,
		})
	}
	return population, nil
}
