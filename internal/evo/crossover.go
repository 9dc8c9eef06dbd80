package evo

import (
	"fmt"
	"math/rand"
)

const defaultCrossoverRetries = 32

// MidpointCrossover appends children until the population is TargetSize
// again. A child takes the first half of one parent's genome and the second
// half of another's, and inherits the first parent's topology.
type MidpointCrossover struct {
	TargetSize int
	// MaxRetries bounds the resampling of the first parent when it collides
	// with the second.
	MaxRetries int
}

func (MidpointCrossover) Name() string {
	return "midpoint_crossover"
}

func (c MidpointCrossover) Crossover(rng *rand.Rand, survivors []*Individual, newID func() string) ([]*Individual, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(survivors) == 0 {
		return nil, fmt.Errorf("crossover requires at least one survivor")
	}
	if c.TargetSize < len(survivors) {
		return nil, fmt.Errorf("target size %d is smaller than survivor count %d", c.TargetSize, len(survivors))
	}
	if newID == nil {
		newID = NewIndividualID
	}
	retries := c.MaxRetries
	if retries <= 0 {
		retries = defaultCrossoverRetries
	}

	out := make([]*Individual, len(survivors), c.TargetSize)
	copy(out, survivors)
	for len(out) < c.TargetSize {
		idxOne := rng.Intn(len(survivors))
		idxTwo := rng.Intn(len(survivors))
		for attempt := 0; idxOne == idxTwo && len(survivors) > 1 && attempt < retries; attempt++ {
			idxOne = rng.Intn(len(survivors))
		}

		parentOne, parentTwo := survivors[idxOne], survivors[idxTwo]
		if len(parentOne.Positions) != len(parentTwo.Positions) {
			return nil, fmt.Errorf("parents %s and %s have allele lengths %d and %d",
				parentOne.ID, parentTwo.ID, len(parentOne.Positions), len(parentTwo.Positions))
		}

		mid := len(parentOne.Positions) / 2
		positions := make([]int, 0, len(parentOne.Positions))
		positions = append(positions, parentOne.Positions[:mid]...)
		positions = append(positions, parentTwo.Positions[mid:]...)

		out = append(out, &Individual{
			ID:        newID(),
			ParentIDs: []string{parentOne.ID, parentTwo.ID},
			Positions: positions,
			Topology:  parentOne.Topology,
		})
	}
	return out, nil
}
