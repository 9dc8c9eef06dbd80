package evo

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"virusnet/internal/model"
	"virusnet/internal/network"
)

func ringTopology(t *testing.T, n int) *network.Topology {
	t.Helper()
	nodes := make([]model.Node, n)
	edges := make([]model.Edge, 0, n)
	for i := range nodes {
		nodes[i] = model.Node{ID: i}
		if n > 2 || i > 0 {
			edges = append(edges, model.Edge{From: i, To: (i + 1) % n})
		}
	}
	topo, err := network.NewTopology(nodes, edges)
	require.NoError(t, err)
	return topo
}

func withFitness(topo *network.Topology, fitness ...float64) []*Individual {
	out := make([]*Individual, len(fitness))
	for i, f := range fitness {
		out[i] = &Individual{
			ID:        fmt.Sprintf("ind-%d", i),
			Positions: make([]int, topo.NodeCount()),
			Topology:  topo,
			Fitness:   f,
			State:     model.Evaluated,
		}
	}
	return out
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// resistantSimulation reports every node seeded with allele 1 as resistant
// and every other node as susceptible.
type resistantSimulation struct{}

func (resistantSimulation) Name() string { return "resistant-echo" }

func (resistantSimulation) Run(_ context.Context, topo *network.Topology, positions []int, _ int, _ *rand.Rand) ([]model.NodeStatus, error) {
	out := make([]model.NodeStatus, topo.NodeCount())
	for i, allele := range positions {
		if allele == 1 {
			out[i] = model.Resistant
		}
	}
	return out, nil
}
