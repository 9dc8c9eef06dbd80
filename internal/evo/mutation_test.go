package evo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitFlipAlwaysFlipsExactlyOneAllele(t *testing.T) {
	topo := ringTopology(t, 16)
	rng := rand.New(rand.NewSource(1))
	population, err := InitPopulation(rng, topo, InitConfig{Size: 1, ResistantProbability: 0.5})
	require.NoError(t, err)
	ind := population[0]

	mutator := BitFlip{Rate: 1.0}
	for trial := 0; trial < 10000; trial++ {
		before := append([]int(nil), ind.Positions...)
		idx, ok := mutator.Mutate(rng, ind)
		require.True(t, ok)

		changed := 0
		for i := range before {
			if before[i] != ind.Positions[i] {
				changed++
				require.Equal(t, idx, i)
				require.Equal(t, 1-before[i], ind.Positions[i])
			}
		}
		require.Equal(t, 1, changed, "trial %d", trial)
	}
}

func TestBitFlipZeroRateNeverChanges(t *testing.T) {
	topo := ringTopology(t, 16)
	rng := rand.New(rand.NewSource(2))
	population, err := InitPopulation(rng, topo, InitConfig{Size: 50, ResistantProbability: 0.5})
	require.NoError(t, err)

	mutator := BitFlip{Rate: 0}
	for trial := 0; trial < 200; trial++ {
		for _, ind := range population {
			before := append([]int(nil), ind.Positions...)
			_, ok := mutator.Mutate(rng, ind)
			require.False(t, ok)
			require.Equal(t, before, ind.Positions)
		}
	}
}

func TestBitFlipRateIsRoughlyHonoured(t *testing.T) {
	topo := ringTopology(t, 8)
	rng := rand.New(rand.NewSource(3))
	ind := withFitness(topo, 0)[0]

	hits := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if _, ok := (BitFlip{Rate: 0.05}).Mutate(rng, ind); ok {
			hits++
		}
	}
	assert.InDelta(t, 0.05, float64(hits)/trials, 0.01)
}

func TestBitFlipEmptyGenome(t *testing.T) {
	idx, ok := BitFlip{Rate: 1}.Mutate(rand.New(rand.NewSource(1)), &Individual{})
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}
