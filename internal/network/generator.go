package network

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"virusnet/internal/model"
)

const (
	DefaultWidth  = 150.0
	DefaultHeight = 150.0
)

// ErrTopologyGeneration marks a generated graph that the caller refused to
// accept, such as one with isolated nodes.
var ErrTopologyGeneration = errors.New("topology generation failure")

type IsolatedNodesError struct {
	IDs []int
}

func (e *IsolatedNodesError) Error() string {
	return fmt.Sprintf("%d isolated node(s): %v", len(e.IDs), e.IDs)
}

func (e *IsolatedNodesError) Unwrap() error {
	return ErrTopologyGeneration
}

type InvalidEdgeError struct {
	Edge      model.Edge
	NodeCount int
}

func (e *InvalidEdgeError) Error() string {
	return fmt.Sprintf("edge %d-%d out of range for %d nodes", e.Edge.From, e.Edge.To, e.NodeCount)
}

type GeneratorConfig struct {
	NodeCount           int
	InitialEdgesPerNode int
	Width               float64
	Height              float64
	// AbortOnIsolated turns isolated nodes into an error instead of a warning.
	AbortOnIsolated bool
	Logger          *slog.Logger
}

// Generate grows a Barabási–Albert graph. Node i links to min(m, i) distinct
// earlier nodes picked with probability proportional to their current degree.
func Generate(rng *rand.Rand, cfg GeneratorConfig) (*Topology, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if cfg.NodeCount <= 0 {
		return nil, fmt.Errorf("node count must be > 0")
	}
	if cfg.InitialEdgesPerNode < 0 {
		return nil, fmt.Errorf("initial edges per node must be >= 0")
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	nodes := make([]model.Node, cfg.NodeCount)
	for id := range nodes {
		nodes[id] = model.Node{
			ID:     id,
			X:      width * rng.Float64(),
			Y:      height * rng.Float64(),
			Status: model.Susceptible,
		}
	}

	degree := make([]int, cfg.NodeCount)
	edges := make([]model.Edge, 0, cfg.NodeCount*cfg.InitialEdgesPerNode)
	for id := 1; id < cfg.NodeCount; id++ {
		targets := pickAttachments(rng, degree[:id], cfg.InitialEdgesPerNode)
		for _, target := range targets {
			edges = append(edges, model.Edge{From: id, To: target})
			degree[id]++
			degree[target]++
		}
	}

	topo, err := NewTopology(nodes, edges)
	if err != nil {
		return nil, err
	}
	if isolated := topo.Isolated(); len(isolated) > 0 {
		if cfg.AbortOnIsolated {
			return nil, &IsolatedNodesError{IDs: isolated}
		}
		for _, id := range isolated {
			logger.Warn("node has no edges", "node", id)
		}
	}
	return topo, nil
}

// pickAttachments draws up to m distinct indices of degree, weighted by
// degree. Candidates are scanned in ascending id order; when every remaining
// candidate has zero degree the draw is uniform.
func pickAttachments(rng *rand.Rand, degree []int, m int) []int {
	if m > len(degree) {
		m = len(degree)
	}
	chosen := make([]int, 0, m)
	taken := make([]bool, len(degree))
	for len(chosen) < m {
		total := 0
		remaining := 0
		for id, d := range degree {
			if taken[id] {
				continue
			}
			total += d
			remaining++
		}
		pick := -1
		if total == 0 {
			n := rng.Intn(remaining)
			for id := range degree {
				if taken[id] {
					continue
				}
				if n == 0 {
					pick = id
					break
				}
				n--
			}
		} else {
			r := rng.Intn(total)
			for id, d := range degree {
				if taken[id] {
					continue
				}
				if r < d {
					pick = id
					break
				}
				r -= d
			}
		}
		taken[pick] = true
		chosen = append(chosen, pick)
	}
	return chosen
}
