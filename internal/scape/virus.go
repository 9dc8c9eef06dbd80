package scape

import (
	"context"
	"fmt"
	"math/rand"

	"virusnet/internal/model"
	"virusnet/internal/network"
)

const VirusOnNetworkName = "virus-on-network"

type VirusParams struct {
	SpreadChance         float64
	CheckFrequency       float64
	RecoveryChance       float64
	GainResistanceChance float64
	InitialOutbreakSize  int
}

func DefaultVirusParams() VirusParams {
	return VirusParams{
		SpreadChance:         0.3,
		CheckFrequency:       0.2,
		RecoveryChance:       0.3,
		GainResistanceChance: 0.2,
		InitialOutbreakSize:  1,
	}
}

// VirusOnNetwork is an SIR-style spread model. Allele 1 seeds a node as
// resistant before the outbreak starts.
type VirusOnNetwork struct {
	params VirusParams
}

func NewVirusOnNetwork(params VirusParams) *VirusOnNetwork {
	return &VirusOnNetwork{params: params}
}

func (*VirusOnNetwork) Name() string {
	return VirusOnNetworkName
}

func (v *VirusOnNetwork) Params() VirusParams {
	return v.params
}

func (v *VirusOnNetwork) Run(ctx context.Context, topo *network.Topology, positions []int, steps int, rng *rand.Rand) ([]model.NodeStatus, error) {
	if topo == nil {
		return nil, fmt.Errorf("topology is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	n := topo.NodeCount()
	if len(positions) != n {
		return nil, fmt.Errorf("positions length %d does not match node count %d", len(positions), n)
	}
	if steps < 0 {
		return nil, fmt.Errorf("steps must be >= 0")
	}

	status := make([]model.NodeStatus, n)
	susceptible := make([]int, 0, n)
	for id, allele := range positions {
		if allele == 1 {
			status[id] = model.Resistant
			continue
		}
		susceptible = append(susceptible, id)
	}
	outbreak := v.params.InitialOutbreakSize
	if outbreak > len(susceptible) {
		outbreak = len(susceptible)
	}
	rng.Shuffle(len(susceptible), func(i, j int) {
		susceptible[i], susceptible[j] = susceptible[j], susceptible[i]
	})
	for _, id := range susceptible[:outbreak] {
		status[id] = model.Infected
	}

	next := make([]model.NodeStatus, n)
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(next, status)
		for id, s := range status {
			if s != model.Infected {
				continue
			}
			for _, neighbor := range topo.Neighbors(id) {
				if status[neighbor] == model.Susceptible && rng.Float64() < v.params.SpreadChance {
					next[neighbor] = model.Infected
				}
			}
			if rng.Float64() < v.params.CheckFrequency && rng.Float64() < v.params.RecoveryChance {
				if rng.Float64() < v.params.GainResistanceChance {
					next[id] = model.Resistant
				} else {
					next[id] = model.Susceptible
				}
			}
		}
		status, next = next, status
	}
	return status, nil
}
