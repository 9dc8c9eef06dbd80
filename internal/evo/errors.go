package evo

import (
	"context"
	"errors"
	"fmt"

	"virusnet/internal/network"
)

var (
	// ErrDegenerateWeights is returned by selection when every remaining
	// weight is zero and the abort policy is active.
	ErrDegenerateWeights = errors.New("degenerate selection weights")
	// ErrEvaluationFailure marks a single individual whose simulation failed
	// or timed out. It never aborts a generation.
	ErrEvaluationFailure = errors.New("evaluation failure")
	// ErrTopologyGeneration is raised when isolated nodes are not tolerated.
	ErrTopologyGeneration = network.ErrTopologyGeneration
	// ErrInvariantViolation means an operator broke a structural invariant.
	ErrInvariantViolation = errors.New("invariant violation")
)

const (
	KindDegenerateWeights  = "degenerate_weights"
	KindEvaluationFailure  = "evaluation_failure"
	KindTopologyGeneration = "topology_generation_failure"
	KindInvariantViolation = "invariant_violation"
	KindCancelled          = "cancelled"
	KindUnknown            = "unknown"
)

type EvaluationError struct {
	IndividualID string
	Err          error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate individual %s: %v", e.IndividualID, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluationFailure, e.Err}
}

type InvariantError struct {
	Stage  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation after %s: %s", e.Stage, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// ErrorKind classifies err into one of the Kind* constants, or "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	case errors.Is(err, ErrDegenerateWeights):
		return KindDegenerateWeights
	case errors.Is(err, ErrTopologyGeneration):
		return KindTopologyGeneration
	case errors.Is(err, ErrEvaluationFailure):
		return KindEvaluationFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}
