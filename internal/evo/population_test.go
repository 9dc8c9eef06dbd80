package evo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virusnet/internal/model"
)

func TestInitPopulationSharesTopology(t *testing.T) {
	topo := ringTopology(t, 12)
	population, err := InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 8, ResistantProbability: 0.3})
	require.NoError(t, err)
	require.Len(t, population, 8)

	ids := map[string]struct{}{}
	for _, ind := range population {
		assert.Same(t, topo, ind.Topology)
		assert.Len(t, ind.Positions, 12)
		assert.Equal(t, model.Unevaluated, ind.State)
		for _, allele := range ind.Positions {
			assert.Contains(t, []int{0, 1}, allele)
		}
		ids[ind.ID] = struct{}{}
	}
	assert.Len(t, ids, 8)
}

func TestInitPopulationResistantProbabilityExtremes(t *testing.T) {
	topo := ringTopology(t, 10)
	none, err := InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 3})
	require.NoError(t, err)
	all, err := InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 3, ResistantProbability: 1})
	require.NoError(t, err)
	for i := range none {
		assert.Equal(t, make([]int, 10), none[i].Positions)
		for _, allele := range all[i].Positions {
			assert.Equal(t, 1, allele)
		}
	}
}

func TestInitPopulationSeedPositions(t *testing.T) {
	topo := ringTopology(t, 4)
	seed := []int{1, 0, 1, 0}
	population, err := InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 2, SeedPositions: [][]int{seed}})
	require.NoError(t, err)
	assert.Equal(t, seed, population[0].Positions)

	seed[0] = 0
	assert.Equal(t, 1, population[0].Positions[0], "seed slice must be copied")

	_, err = InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 2, SeedPositions: [][]int{{1, 0}}})
	assert.Error(t, err)
	_, err = InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 2, SeedPositions: [][]int{{1, 0, 2, 0}}})
	assert.Error(t, err)
	_, err = InitPopulation(rand.New(rand.NewSource(1)), topo, InitConfig{Size: 1, SeedPositions: [][]int{seed, seed}})
	assert.Error(t, err)
}

func TestIndividualCloneIsIndependent(t *testing.T) {
	topo := ringTopology(t, 3)
	ind := &Individual{ID: "a", ParentIDs: []string{"p"}, Positions: []int{0, 1, 0}, Topology: topo}
	clone := ind.Clone()
	clone.Positions[0] = 1
	clone.ParentIDs[0] = "q"
	assert.Equal(t, []int{0, 1, 0}, ind.Positions)
	assert.Equal(t, []string{"p"}, ind.ParentIDs)
	assert.Same(t, topo, clone.Topology)
}
