package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"virusnet/internal/config"
	"virusnet/internal/logging"
	"virusnet/internal/model"
	"virusnet/pkg/virusnet"
)

const exportsDir = "exports"

type globalOptions struct {
	storeKind   string
	dbPath      string
	outputDir   string
	exportsDir  string
	logLevel    string
	logFormat   string
	metricsAddr string
	trace       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// run executes one command line. Telemetry started by the command is
// flushed even when the command fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &globalOptions{}
	var shutdown func(context.Context) error

	root := newRootCmd(opts, stdout, stderr)
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		shutdown, err = startTelemetry(cmd.Context(), opts, stderr)
		return err
	}
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if shutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = errors.Join(err, shutdown(flushCtx))
	}
	return err
}

func newRootCmd(opts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "virusnetctl",
		Short:         "Search resistant-node placements for a virus spreading over a scale-free network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	defaults := config.Default()
	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeKind, "store", defaults.Store.Kind, "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", defaults.Store.Path, "sqlite database path")
	flags.StringVar(&opts.outputDir, "output-dir", defaults.OutputDir, "directory for run artifacts and result CSVs")
	flags.StringVar(&opts.exportsDir, "exports-dir", exportsDir, "default export destination")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", logging.FormatAuto, "log format: auto|text|json")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while the command runs")
	flags.BoolVar(&opts.trace, "trace", false, "print trace spans to stderr")

	root.AddCommand(
		newRunCmd(opts),
		newRunsCmd(opts),
		newHistoryCmd(opts),
		newDiagnosticsCmd(opts),
		newTopologyCmd(opts),
		newExportCmd(opts),
	)
	return root
}

func (o *globalOptions) client(cmd *cobra.Command) (*virusnet.Client, *slog.Logger, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
	if err != nil {
		return nil, nil, err
	}
	client, err := virusnet.New(virusnet.Options{
		StoreKind:  o.storeKind,
		DBPath:     o.dbPath,
		OutputDir:  o.outputDir,
		ExportsDir: o.exportsDir,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

type runOptions struct {
	configPath string
	runID      string
	simulation string
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one exploration to its stop condition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCfg, err := resolveRunConfig(cmd, ro.configPath, cfg)
			if err != nil {
				return err
			}
			runCfg.OutputDir = opts.outputDir
			runCfg.Store = config.StoreConfig{Kind: opts.storeKind, Path: opts.dbPath}

			client, logger, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			summary, runErr := client.Run(cmd.Context(), virusnet.RunRequest{
				RunID:      ro.runID,
				Simulation: ro.simulation,
				Config:     runCfg,
			})
			if summary.RunID == "" {
				return runErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusLine(summary))
			if summary.Status == model.StatusCancelled {
				logger.Warn("run interrupted", "run", summary.RunID, "generation", summary.StopGeneration)
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVar(&ro.configPath, "config", "", "run config file (yaml or json); flags override its values")
	f.StringVar(&ro.runID, "run-id", "", "explicit run id (optional)")
	f.StringVar(&ro.simulation, "simulation", "", "simulation backend (default virus-on-network)")
	f.IntVar(&cfg.NodeCount, "nodes", cfg.NodeCount, "network node count")
	f.IntVar(&cfg.InitialEdgesPerNode, "edges", cfg.InitialEdgesPerNode, "edges attached per new node")
	f.IntVar(&cfg.PopulationSize, "pop", cfg.PopulationSize, "population size (even)")
	f.IntVar(&cfg.MaxGenerations, "gens", cfg.MaxGenerations, "maximum generation count")
	f.IntVar(&cfg.SimulationStepCount, "steps", cfg.SimulationStepCount, "simulation steps per evaluation")
	f.Float64Var(&cfg.MutationRate, "mutation-rate", cfg.MutationRate, "probability an individual gets one allele flipped")
	f.Float64Var(&cfg.DesiredFitness, "desired-fitness", cfg.DesiredFitness, "stop once the best fitness reaches this value")
	f.Float64Var(&cfg.InitialResistantProbability, "resistant-prob", cfg.InitialResistantProbability, "probability an initial allele is resistant")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "rng seed")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel evaluations (0 uses GOMAXPROCS)")
	f.DurationVar(&cfg.EvaluationTimeout, "eval-timeout", cfg.EvaluationTimeout, "per-evaluation timeout (0 disables)")
	f.StringVar(&cfg.DegenerateWeights, "degenerate-weights", cfg.DegenerateWeights, "all-zero selection weights policy: uniform|abort")
	f.BoolVar(&cfg.AbortOnIsolated, "abort-on-isolated", cfg.AbortOnIsolated, "abort when the generated network has isolated nodes")
	return cmd
}

// resolveRunConfig loads the config file when given and reapplies only the
// flags that were set explicitly.
func resolveRunConfig(cmd *cobra.Command, path string, flagged config.RunConfig) (config.RunConfig, error) {
	if path == "" {
		return flagged, nil
	}
	loaded, err := config.Load(path)
	if err != nil {
		return config.RunConfig{}, err
	}
	f := cmd.Flags()
	overrides := map[string]func(){
		"nodes":              func() { loaded.NodeCount = flagged.NodeCount },
		"edges":              func() { loaded.InitialEdgesPerNode = flagged.InitialEdgesPerNode },
		"pop":                func() { loaded.PopulationSize = flagged.PopulationSize },
		"gens":               func() { loaded.MaxGenerations = flagged.MaxGenerations },
		"steps":              func() { loaded.SimulationStepCount = flagged.SimulationStepCount },
		"mutation-rate":      func() { loaded.MutationRate = flagged.MutationRate },
		"desired-fitness":    func() { loaded.DesiredFitness = flagged.DesiredFitness },
		"resistant-prob":     func() { loaded.InitialResistantProbability = flagged.InitialResistantProbability },
		"seed":               func() { loaded.Seed = flagged.Seed },
		"workers":            func() { loaded.Workers = flagged.Workers },
		"eval-timeout":       func() { loaded.EvaluationTimeout = flagged.EvaluationTimeout },
		"degenerate-weights": func() { loaded.DegenerateWeights = flagged.DegenerateWeights },
		"abort-on-isolated":  func() { loaded.AbortOnIsolated = flagged.AbortOnIsolated },
	}
	for name, apply := range overrides {
		if f.Changed(name) {
			apply()
		}
	}
	return loaded, nil
}

func statusLine(s virusnet.RunSummary) string {
	line := fmt.Sprintf("run=%s status=%s generation=%d best=%.6f", s.RunID, s.Status, s.StopGeneration, s.BestFitness)
	if s.ErrorKind != "" {
		line += " error=" + s.ErrorKind
	}
	csv := s.CSVPath
	if csv == "" {
		csv = "none"
	}
	return line + " csv=" + csv
}

func requireRunSelector(runID string, latest bool, op string) error {
	if runID != "" && latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return fmt.Errorf("%s requires --run-id or --latest", op)
	}
	return nil
}
