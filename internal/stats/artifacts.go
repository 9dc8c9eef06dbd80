package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"virusnet/internal/model"
)

const (
	runIndexFile = "run_index.json"
	topologyFile = "topology.json"
)

// RunSummary condenses the per-generation diagnostics of one run.
type RunSummary struct {
	RunID          string          `json:"run_id"`
	Simulation     string          `json:"simulation"`
	Status         model.RunStatus `json:"status"`
	StopGeneration int             `json:"stop_generation"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	BestFitness    float64         `json:"best_fitness"`
	BestPositions  string          `json:"best_positions,omitempty"`
	InitialBest    float64         `json:"initial_best"`
	BestMean       float64         `json:"best_mean"`
	BestStd        float64         `json:"best_std"`
	Improvement    float64         `json:"improvement"`
	Evaluations    int             `json:"evaluations"`
	Failures       int             `json:"failures"`
	CSVPath        string          `json:"csv_path,omitempty"`
}

type RunArtifacts struct {
	RunID       string                        `json:"run_id"`
	Config      map[string]any                `json:"config"`
	Summary     RunSummary                    `json:"summary"`
	Diagnostics []model.GenerationDiagnostics `json:"diagnostics"`
}

type RunIndexEntry struct {
	RunID          string          `json:"run_id"`
	Simulation     string          `json:"simulation"`
	Status         model.RunStatus `json:"status"`
	PopulationSize int             `json:"population_size"`
	NodeCount      int             `json:"node_count"`
	Seed           int64           `json:"seed"`
	BestFitness    float64         `json:"best_fitness"`
	CreatedAtUTC   string          `json:"created_at_utc"`
}

// Summarize derives a RunSummary from a run record and its diagnostics.
func Summarize(run model.RunRecord, diagnostics []model.GenerationDiagnostics) RunSummary {
	summary := RunSummary{
		RunID:          run.RunID,
		Simulation:     run.Simulation,
		Status:         run.Status,
		StopGeneration: run.StopGeneration,
		ErrorKind:      run.ErrorKind,
		BestFitness:    run.BestFitness,
		BestPositions:  model.PositionsString(run.BestPositions),
		CSVPath:        run.CSVPath,
	}
	if len(diagnostics) == 0 {
		return summary
	}

	best := make([]float64, len(diagnostics))
	for i, d := range diagnostics {
		best[i] = d.BestFitness
		summary.Evaluations += d.Evaluated + d.Failures
		summary.Failures += d.Failures
	}
	summary.InitialBest = best[0]
	summary.Improvement = best[len(best)-1] - best[0]
	summary.BestMean, summary.BestStd = meanStd(best)
	return summary
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "diagnostics.json"), artifacts.Diagnostics); err != nil {
		return "", err
	}
	return runDir, nil
}

func WriteTopology(runDir string, snapshot model.TopologySnapshot) error {
	return writeJSON(filepath.Join(runDir, topologyFile), snapshot)
}

func ReadTopology(baseDir, runID string) (model.TopologySnapshot, bool, error) {
	var snapshot model.TopologySnapshot
	ok, err := readJSON(filepath.Join(baseDir, runID, topologyFile), &snapshot)
	return snapshot, ok, err
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, "summary.json"), &summary)
	return summary, ok, err
}

func ReadDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, "diagnostics.json"), &diagnostics)
	return diagnostics, ok, err
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	// Upserts keep the entry's slot so append order still breaks timestamp ties.
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// readRunIndex returns the entries in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}
	return entries, nil
}

// ExportRunArtifacts copies a run directory's artifacts, including the
// result CSV and topology when present, into outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{"config.json", "summary.json", "diagnostics.json"} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{ResultFileName, topologyFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
