package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"virusnet/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	results     map[string][]model.GenerationResult
	diagnostics map[string][]model.GenerationDiagnostics
	topologies  map[string]model.TopologySnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.results = make(map[string][]model.GenerationResult)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.topologies = make(map[string]model.TopologySnapshot)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.BestPositions = append([]int(nil), run.BestPositions...)
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.BestPositions = append([]int(nil), run.BestPositions...)
	return run, true, nil
}

// ListRuns returns runs ordered by creation time, then id.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.BestPositions = append([]int(nil), run.BestPositions...)
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveGenerationResults(_ context.Context, runID string, results []model.GenerationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.results[runID] = copyResults(results)
	return nil
}

func (s *MemoryStore) GetGenerationResults(_ context.Context, runID string) ([]model.GenerationResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, ok := s.results[runID]
	if !ok {
		return nil, false, nil
	}
	return copyResults(results), true, nil
}

func (s *MemoryStore) SaveDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveTopology(_ context.Context, snapshot model.TopologySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.topologies[snapshot.RunID] = copySnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetTopology(_ context.Context, runID string) (model.TopologySnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.topologies[runID]
	if !ok {
		return model.TopologySnapshot{}, false, nil
	}
	return copySnapshot(snapshot), true, nil
}

func copyResults(results []model.GenerationResult) []model.GenerationResult {
	copied := make([]model.GenerationResult, len(results))
	for i, result := range results {
		result.ParentIDs = append([]string(nil), result.ParentIDs...)
		result.Positions = append([]int(nil), result.Positions...)
		copied[i] = result
	}
	return copied
}

func copySnapshot(snapshot model.TopologySnapshot) model.TopologySnapshot {
	snapshot.Nodes = append([]model.Node(nil), snapshot.Nodes...)
	snapshot.Edges = append([]model.Edge(nil), snapshot.Edges...)
	snapshot.Isolated = append([]int(nil), snapshot.Isolated...)
	return snapshot
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
}
