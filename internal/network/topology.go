package network

import (
	"virusnet/internal/model"
)

// Topology is an undirected graph snapshot. It is never mutated after
// Generate returns, so a single instance is shared by every individual
// derived from it.
type Topology struct {
	nodes     []model.Node
	edges     []model.Edge
	adjacency [][]int
	isolated  []int
}

func (t *Topology) NodeCount() int {
	return len(t.nodes)
}

// Nodes returns a copy of the node set.
func (t *Topology) Nodes() []model.Node {
	return append([]model.Node(nil), t.nodes...)
}

// Edges returns a copy of the edge set.
func (t *Topology) Edges() []model.Edge {
	return append([]model.Edge(nil), t.edges...)
}

func (t *Topology) EdgeCount() int {
	return len(t.edges)
}

// Neighbors returns the ids adjacent to id. The returned slice must not be
// modified.
func (t *Topology) Neighbors(id int) []int {
	if id < 0 || id >= len(t.adjacency) {
		return nil
	}
	return t.adjacency[id]
}

func (t *Topology) Degree(id int) int {
	return len(t.Neighbors(id))
}

// Isolated lists nodes without incident edges.
func (t *Topology) Isolated() []int {
	return append([]int(nil), t.isolated...)
}

// NewTopology builds a topology from explicit node and edge sets. Edge
// endpoints must reference nodes by their index in nodes.
func NewTopology(nodes []model.Node, edges []model.Edge) (*Topology, error) {
	t := &Topology{
		nodes:     append([]model.Node(nil), nodes...),
		edges:     append([]model.Edge(nil), edges...),
		adjacency: make([][]int, len(nodes)),
	}
	for i, node := range t.nodes {
		if node.ID != i {
			return nil, &InvalidEdgeError{Edge: model.Edge{From: node.ID, To: i}, NodeCount: len(nodes)}
		}
	}
	for _, edge := range t.edges {
		if edge.From < 0 || edge.From >= len(nodes) || edge.To < 0 || edge.To >= len(nodes) || edge.From == edge.To {
			return nil, &InvalidEdgeError{Edge: edge, NodeCount: len(nodes)}
		}
		t.adjacency[edge.From] = append(t.adjacency[edge.From], edge.To)
		t.adjacency[edge.To] = append(t.adjacency[edge.To], edge.From)
	}
	for id, neighbors := range t.adjacency {
		if len(neighbors) == 0 {
			t.isolated = append(t.isolated, id)
		}
	}
	return t, nil
}
