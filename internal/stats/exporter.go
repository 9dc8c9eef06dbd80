package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"virusnet/internal/model"
)

const ResultFileName = "explore_result.csv"

var resultHeader = []string{"generation", "individual_id", "parents", "fitness", "state", "positions"}

// CSVExporter buffers generation results and writes them as one CSV file
// under dir/runID on Flush.
type CSVExporter struct {
	dir   string
	runID string

	mu      sync.Mutex
	entries []model.GenerationResult
}

func NewCSVExporter(dir, runID string) (*CSVExporter, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	return &CSVExporter{dir: dir, runID: runID}, nil
}

func (e *CSVExporter) Record(entry model.GenerationResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry.ParentIDs = append([]string(nil), entry.ParentIDs...)
	entry.Positions = append([]int(nil), entry.Positions...)
	e.entries = append(e.entries, entry)
	return nil
}

// Path is where Flush writes the CSV.
func (e *CSVExporter) Path() string {
	return filepath.Join(e.dir, e.runID, ResultFileName)
}

func (e *CSVExporter) Flush() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteResults(file, e.entries); err != nil {
		return "", err
	}
	return path, file.Sync()
}

func WriteResults(w io.Writer, entries []model.GenerationResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(resultHeader); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := writer.Write([]string{
			strconv.Itoa(entry.Generation),
			entry.IndividualID,
			strings.Join(entry.ParentIDs, "|"),
			strconv.FormatFloat(entry.Fitness, 'f', -1, 64),
			entry.State.String(),
			model.PositionsString(entry.Positions),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadResults parses a file written by WriteResults. runID is stamped onto
// every entry since the CSV does not carry it.
func ReadResults(r io.Reader, runID string) ([]model.GenerationResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(resultHeader)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []model.GenerationResult{}, nil
		}
		return nil, err
	}
	if strings.Join(header, ",") != strings.Join(resultHeader, ",") {
		return nil, fmt.Errorf("unexpected result header: %v", header)
	}

	results := make([]model.GenerationResult, 0, 128)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		generation, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("parse generation: %w", err)
		}
		fitness, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parse fitness: %w", err)
		}
		var state model.EvalState
		if err := state.UnmarshalText([]byte(record[4])); err != nil {
			return nil, err
		}
		positions, err := model.ParsePositions(record[5])
		if err != nil {
			return nil, err
		}
		var parents []string
		if record[2] != "" {
			parents = strings.Split(record[2], "|")
		}
		results = append(results, model.GenerationResult{
			RunID:        runID,
			Generation:   generation,
			IndividualID: record[1],
			ParentIDs:    parents,
			Positions:    positions,
			Fitness:      fitness,
			State:        state,
		})
	}
	return results, nil
}

func ReadResultsFile(path, runID string) ([]model.GenerationResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadResults(file, runID)
}
