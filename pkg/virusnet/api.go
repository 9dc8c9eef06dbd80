package virusnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"virusnet/internal/config"
	"virusnet/internal/model"
	"virusnet/internal/platform"
	"virusnet/internal/scape"
	"virusnet/internal/stats"
	"virusnet/internal/storage"
)

const defaultExportsDir = "exports"

// RunConfig is the full option set of one exploration run.
type RunConfig = config.RunConfig

func DefaultRunConfig() RunConfig {
	return config.Default()
}

func LoadRunConfig(path string) (RunConfig, error) {
	return config.Load(path)
}

type Options struct {
	StoreKind string
	DBPath    string
	// OutputDir holds per-run artifacts, result CSVs and the run index.
	OutputDir   string
	ExportsDir  string
	Logger      *slog.Logger
	Simulations []scape.Simulation
}

type Client struct {
	store storage.Store
	polis *platform.Polis

	initOnce sync.Once
	initErr  error

	outputDir  string
	exportsDir string
}

type RunRequest struct {
	RunID string
	// Simulation selects a backend by name; empty runs virus-on-network.
	Simulation    string
	Config        RunConfig
	SeedPositions [][]int
	OnGeneration  func(model.GenerationDiagnostics)
}

type RunSummary struct {
	RunID          string
	Status         model.RunStatus
	StopGeneration int
	Generations    int
	BestFitness    float64
	BestPositions  []int
	ErrorKind      string
	Error          string
	CSVPath        string
	ArtifactsDir   string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Simulation   string
	Status       model.RunStatus
	Seed         int64
	Population   int
	NodeCount    int
	BestFitness  float64
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	// Generation filters to a single generation when set.
	Generation *int
	Limit      int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type TopologyRequest struct {
	RunID  string
	Latest bool
}

func New(opts Options) (*Client, error) {
	cfg := config.Default()
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = cfg.Store.Kind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store: store,
		polis: platform.NewPolis(platform.Config{
			Store:       store,
			Simulations: opts.Simulations,
			Logger:      opts.Logger,
		}),
		outputDir:  outputDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	c.polis.Stop()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.polis.Init(ctx)
	})
	return c.initErr
}

// Run executes one exploration to its stop condition. Artifacts always go
// under Options.OutputDir; req.Config.OutputDir is ignored. Cancelling ctx
// stops the run with status cancelled and a nil error; aborted runs return
// the summary together with the aborting error.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	// Reads resolve artifacts under the client's directory, so runs write there too.
	req.Config.OutputDir = c.outputDir

	result, err := c.polis.RunExploration(ctx, platform.ExplorationConfig{
		RunID:         req.RunID,
		Simulation:    req.Simulation,
		Run:           req.Config,
		SeedPositions: req.SeedPositions,
		OnGeneration:  req.OnGeneration,
	})
	if result.Record.RunID == "" {
		return RunSummary{}, err
	}

	record := result.Record
	summary := RunSummary{
		RunID:          record.RunID,
		Status:         record.Status,
		StopGeneration: record.StopGeneration,
		Generations:    len(result.Monitor.Diagnostics),
		BestFitness:    record.BestFitness,
		BestPositions:  append([]int(nil), record.BestPositions...),
		ErrorKind:      record.ErrorKind,
		Error:          record.Error,
		CSVPath:        record.CSVPath,
	}
	if result.ArtifactsDir != "" {
		summary.ArtifactsDir = filepath.Clean(result.ArtifactsDir)
	}
	return summary, err
}

// StopRun cancels an active run started by this client.
func (c *Client) StopRun(runID string) error {
	return c.polis.StopRun(runID)
}

func (c *Client) Simulations() []string {
	return c.polis.RegisteredSimulations()
}

// Runs lists runs newest first, from the run index when present and from
// the store otherwise.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Simulation:   e.Simulation,
			Status:       e.Status,
			Seed:         e.Seed,
			Population:   e.PopulationSize,
			NodeCount:    e.NodeCount,
			BestFitness:  e.BestFitness,
		})
	}
	if len(out) == 0 {
		if err := c.Init(ctx); err != nil {
			return nil, err
		}
		records, err := c.store.ListRuns(ctx)
		if err != nil {
			return nil, err
		}
		for i := len(records) - 1; i >= 0; i-- {
			out = append(out, runItemFromRecord(records[i]))
		}
	}
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.GenerationResult, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, "history")
	if err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetGenerationResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, err = stats.ReadResultsFile(filepath.Join(c.outputDir, runID, stats.ResultFileName), runID)
		if err != nil {
			return nil, fmt.Errorf("history not found for run id %s: %w", runID, err)
		}
	}

	out := make([]model.GenerationResult, 0, len(history))
	for _, entry := range history {
		if req.Generation != nil && entry.Generation != *req.Generation {
			continue
		}
		out = append(out, entry)
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadDiagnostics(c.outputDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
		}
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return diagnostics, nil
}

func (c *Client) Topology(ctx context.Context, req TopologyRequest) (model.TopologySnapshot, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, "topology")
	if err != nil {
		return model.TopologySnapshot{}, err
	}

	snapshot, ok, err := c.store.GetTopology(ctx, runID)
	if err != nil {
		return model.TopologySnapshot{}, err
	}
	if ok {
		return snapshot, nil
	}
	snapshot, ok, err = stats.ReadTopology(c.outputDir, runID)
	if err != nil {
		return model.TopologySnapshot{}, err
	}
	if !ok {
		return model.TopologySnapshot{}, fmt.Errorf("topology not found for run id: %s", runID)
	}
	return snapshot, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.outputDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool, op string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", fmt.Errorf("%s requires run id or latest", op)
	}
	runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].RunID, nil
}

func runItemFromRecord(record model.RunRecord) RunItem {
	item := RunItem{
		RunID:        record.RunID,
		CreatedAtUTC: record.CreatedAtUTC,
		Simulation:   record.Simulation,
		Status:       record.Status,
		BestFitness:  record.BestFitness,
	}
	if v, ok := asInt64(record.Config["seed"]); ok {
		item.Seed = v
	}
	if v, ok := asInt64(record.Config["populationSize"]); ok {
		item.Population = int(v)
	}
	if v, ok := asInt64(record.Config["nodeCount"]); ok {
		item.NodeCount = int(v)
	}
	return item
}

// asInt64 accepts the numeric shapes a config map takes before and after a
// JSON round trip.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
