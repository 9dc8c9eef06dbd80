package model

import (
	"fmt"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NodeStatus is the health state of one network node.
type NodeStatus int

const (
	Susceptible NodeStatus = iota
	Infected
	Resistant
)

func (s NodeStatus) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Infected:
		return "infected"
	case Resistant:
		return "resistant"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s NodeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *NodeStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "susceptible":
		*s = Susceptible
	case "infected":
		*s = Infected
	case "resistant":
		*s = Resistant
	default:
		return fmt.Errorf("unknown node status: %q", string(text))
	}
	return nil
}

type Node struct {
	ID     int        `json:"id"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Status NodeStatus `json:"status"`
}

// Edge is an unordered pair of node ids.
type Edge struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label,omitempty"`
}

// Other returns the endpoint opposite to id.
func (e Edge) Other(id int) int {
	if e.From == id {
		return e.To
	}
	return e.From
}

// EvalState tracks whether an individual's fitness is current.
type EvalState int

const (
	Unevaluated EvalState = iota
	Evaluated
	Failed
)

func (s EvalState) String() string {
	switch s {
	case Unevaluated:
		return "unevaluated"
	case Evaluated:
		return "evaluated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s EvalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EvalState) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "unevaluated":
		*s = Unevaluated
	case "evaluated":
		*s = Evaluated
	case "failed":
		*s = Failed
	default:
		return fmt.Errorf("unknown evaluation state: %q", string(text))
	}
	return nil
}

// GenerationResult is one evaluated individual of one generation.
type GenerationResult struct {
	RunID        string    `json:"run_id"`
	Generation   int       `json:"generation"`
	IndividualID string    `json:"individual_id"`
	ParentIDs    []string  `json:"parent_ids,omitempty"`
	Positions    []int     `json:"positions"`
	Fitness      float64   `json:"fitness"`
	State        EvalState `json:"state"`
}

type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	Evaluated   int     `json:"evaluated"`
	Failures    int     `json:"failures"`
	Mutations   int     `json:"mutations"`
}

// RunStatus is why an exploration run stopped.
type RunStatus string

const (
	StatusConverged RunStatus = "converged"
	StatusExhausted RunStatus = "exhausted"
	StatusCancelled RunStatus = "cancelled"
	StatusAborted   RunStatus = "aborted"
)

type RunRecord struct {
	VersionedRecord
	RunID          string         `json:"run_id"`
	Status         RunStatus      `json:"status"`
	StopGeneration int            `json:"stop_generation"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	Error          string         `json:"error,omitempty"`
	BestFitness    float64        `json:"best_fitness"`
	BestPositions  []int          `json:"best_positions,omitempty"`
	Simulation     string         `json:"simulation"`
	Config         map[string]any `json:"config,omitempty"`
	CSVPath        string         `json:"csv_path,omitempty"`
	CreatedAtUTC   string         `json:"created_at_utc"`
}

// PositionsString renders an allele vector as a compact digit string.
func PositionsString(positions []int) string {
	var b strings.Builder
	b.Grow(len(positions))
	for _, p := range positions {
		b.WriteString(fmt.Sprint(p))
	}
	return b.String()
}

// ParsePositions reverses PositionsString for single-digit alleles.
func ParsePositions(s string) ([]int, error) {
	out := make([]int, 0, len(s))
	for i, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid allele %q at %d", r, i)
		}
		out = append(out, int(r-'0'))
	}
	return out, nil
}

// TopologySnapshot is the persisted form of the network a run explored.
type TopologySnapshot struct {
	VersionedRecord
	RunID    string `json:"run_id"`
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
	Isolated []int  `json:"isolated,omitempty"`
}
