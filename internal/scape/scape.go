package scape

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"virusnet/internal/model"
	"virusnet/internal/network"
)

// Simulation runs an agent-based model over a network snapshot and reports
// the terminal status of every node, indexed by node id.
type Simulation interface {
	Name() string
	Run(ctx context.Context, topo *network.Topology, positions []int, steps int, rng *rand.Rand) ([]model.NodeStatus, error)
}

// SimulationFunc adapts a plain function to Simulation.
type SimulationFunc func(ctx context.Context, topo *network.Topology, positions []int, steps int, rng *rand.Rand) ([]model.NodeStatus, error)

func (SimulationFunc) Name() string {
	return "func"
}

func (f SimulationFunc) Run(ctx context.Context, topo *network.Topology, positions []int, steps int, rng *rand.Rand) ([]model.NodeStatus, error) {
	return f(ctx, topo, positions, steps, rng)
}

type Factory func() Simulation

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		VirusOnNetworkName: func() Simulation { return NewVirusOnNetwork(DefaultVirusParams()) },
	}
)

// Register makes a simulation backend resolvable by name.
func Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("simulation name is required")
	}
	if factory == nil {
		return fmt.Errorf("simulation factory is required")
	}
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("simulation already registered: %s", name)
	}
	registry[name] = factory
	return nil
}

func Resolve(name string) (Simulation, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown simulation: %s", name)
	}
	return factory(), nil
}

func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
