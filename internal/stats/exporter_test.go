package stats

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virusnet/internal/model"
)

func TestCSVExporterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewCSVExporter(dir, "run-7")
	require.NoError(t, err)

	entries := []model.GenerationResult{
		{RunID: "run-7", Generation: 0, IndividualID: "a", Positions: []int{0, 1, 1, 0}, Fitness: 0.5, State: model.Evaluated},
		{RunID: "run-7", Generation: 1, IndividualID: "b", ParentIDs: []string{"a", "c"}, Positions: []int{1, 1, 1, 0}, Fitness: 0.25, State: model.Evaluated},
		{RunID: "run-7", Generation: 1, IndividualID: "d", Positions: []int{0, 0, 0, 0}, Fitness: 0, State: model.Failed},
	}
	for _, entry := range entries {
		require.NoError(t, exporter.Record(entry))
	}
	entries[0].Positions[0] = 1

	path, err := exporter.Flush()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-7", ResultFileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "generation,individual_id,parents,fitness,state,positions", lines[0])
	assert.Equal(t, "0,a,,0.5,evaluated,0110", lines[1])
	assert.Equal(t, "1,b,a|c,0.25,evaluated,1110", lines[2])

	loaded, err := ReadResultsFile(path, "run-7")
	require.NoError(t, err)
	entries[0].Positions[0] = 0
	assert.Equal(t, entries, loaded)
}

func TestReadResultsRejectsBadInput(t *testing.T) {
	_, err := ReadResults(strings.NewReader("a,b\n1,2\n"), "r")
	assert.Error(t, err)

	_, err = ReadResults(strings.NewReader("generation,individual_id,parents,fitness,state,positions\nx,a,,0.5,evaluated,01\n"), "r")
	assert.Error(t, err)

	_, err = ReadResults(strings.NewReader("generation,individual_id,parents,fitness,state,positions\n0,a,,0.5,zombie,01\n"), "r")
	assert.Error(t, err)

	results, err := ReadResults(strings.NewReader(""), "r")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWriteResultsHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, nil))
	assert.Equal(t, "generation,individual_id,parents,fitness,state,positions\n", buf.String())
}

func TestNewCSVExporterValidates(t *testing.T) {
	_, err := NewCSVExporter("", "r")
	assert.Error(t, err)
	_, err = NewCSVExporter(t.TempDir(), " ")
	assert.Error(t, err)
}
