package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"virusnet/internal/model"
	"virusnet/pkg/virusnet"
)

type selector struct {
	runID   string
	latest  bool
	jsonOut bool
}

func (s *selector) bind(cmd *cobra.Command, what string) {
	cmd.Flags().StringVar(&s.runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&s.latest, "latest", false, "use the most recent run from the run index")
	cmd.Flags().BoolVar(&s.jsonOut, "json", false, "emit "+what+" as JSON")
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, _, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			items, err := client.Runs(cmd.Context(), virusnet.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "run_id=%s created_at=%s simulation=%s status=%s seed=%d pop=%d nodes=%d best_fitness=%.6f\n",
					item.RunID,
					item.CreatedAtUTC,
					item.Simulation,
					item.Status,
					item.Seed,
					item.Population,
					item.NodeCount,
					item.BestFitness,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	sel := &selector{}
	var limit int
	var generation int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the per-individual results of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRunSelector(sel.runID, sel.latest, "history"); err != nil {
				return err
			}
			if limit < 0 {
				return errors.New("limit must be >= 0")
			}
			client, _, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			req := virusnet.HistoryRequest{RunID: sel.runID, Latest: sel.latest, Limit: limit}
			if cmd.Flags().Changed("generation") {
				req.Generation = &generation
			}
			rows, err := client.History(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sel.jsonOut {
				return writeJSON(out, rows)
			}
			for _, row := range rows {
				parents := strings.Join(row.ParentIDs, "|")
				if parents == "" {
					parents = "-"
				}
				fmt.Fprintf(out, "generation=%d individual=%s parents=%s fitness=%.6f state=%s positions=%s\n",
					row.Generation,
					row.IndividualID,
					parents,
					row.Fitness,
					row.State,
					model.PositionsString(row.Positions),
				)
			}
			return nil
		},
	}
	sel.bind(cmd, "history rows")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows to print (0 for all)")
	cmd.Flags().IntVar(&generation, "generation", 0, "only rows from this generation")
	return cmd
}

func newDiagnosticsCmd(opts *globalOptions) *cobra.Command {
	sel := &selector{}
	var limit int
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Print per-generation fitness diagnostics of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRunSelector(sel.runID, sel.latest, "diagnostics"); err != nil {
				return err
			}
			client, _, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			diagnostics, err := client.Diagnostics(cmd.Context(), virusnet.DiagnosticsRequest{
				RunID:  sel.runID,
				Latest: sel.latest,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sel.jsonOut {
				return writeJSON(out, diagnostics)
			}
			for _, d := range diagnostics {
				fmt.Fprintf(out, "generation=%d best=%.6f mean=%.6f min=%.6f evaluated=%d failures=%d mutations=%d\n",
					d.Generation,
					d.BestFitness,
					d.MeanFitness,
					d.MinFitness,
					d.Evaluated,
					d.Failures,
					d.Mutations,
				)
			}
			return nil
		},
	}
	sel.bind(cmd, "diagnostics")
	cmd.Flags().IntVar(&limit, "limit", 0, "max generations to print (0 for all)")
	return cmd
}

func newTopologyCmd(opts *globalOptions) *cobra.Command {
	sel := &selector{}
	var showEdges bool
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Describe the network a run explored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRunSelector(sel.runID, sel.latest, "topology"); err != nil {
				return err
			}
			client, _, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			snapshot, err := client.Topology(cmd.Context(), virusnet.TopologyRequest{RunID: sel.runID, Latest: sel.latest})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sel.jsonOut {
				return writeJSON(out, snapshot)
			}
			fmt.Fprintf(out, "run_id=%s nodes=%d edges=%d isolated=%d max_degree=%d\n",
				snapshot.RunID,
				len(snapshot.Nodes),
				len(snapshot.Edges),
				len(snapshot.Isolated),
				maxDegree(snapshot),
			)
			if showEdges {
				for _, e := range snapshot.Edges {
					fmt.Fprintf(out, "edge=%d-%d\n", e.From, e.To)
				}
			}
			return nil
		},
	}
	sel.bind(cmd, "the topology snapshot")
	cmd.Flags().BoolVar(&showEdges, "edges", false, "print every edge")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var runID, outDir string
	var latest bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts into an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireRunSelector(runID, latest, "export"); err != nil {
				return err
			}
			client, _, err := opts.client(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			exported, err := client.Export(cmd.Context(), virusnet.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run from the run index")
	cmd.Flags().StringVar(&outDir, "out", "", "export directory (defaults to --exports-dir)")
	return cmd
}

func maxDegree(snapshot model.TopologySnapshot) int {
	degree := make(map[int]int, len(snapshot.Nodes))
	best := 0
	for _, e := range snapshot.Edges {
		degree[e.From]++
		degree[e.To]++
		best = max(best, degree[e.From], degree[e.To])
	}
	return best
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
