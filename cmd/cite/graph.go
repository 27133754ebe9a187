package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/graph"
	"github.com/matsen/citegraph/internal/job"
	"github.com/matsen/citegraph/internal/queue"
	"github.com/matsen/citegraph/internal/storage"
	"github.com/matsen/citegraph/internal/viz"
)

var (
	graphMode   string
	graphDepth  int
	graphAsync  bool
	graphHTML   string
	graphLayout string
)

func init() {
	graphBuildCmd.Flags().StringVar(&graphMode, "mode", string(graph.BreadthFirst), "Traversal order: bfs or dfs")
	graphBuildCmd.Flags().IntVar(&graphDepth, "depth", -1, "Depth ceiling (default and cap: max_graph_depth)")
	graphBuildCmd.Flags().BoolVar(&graphAsync, "async", false, "Enqueue the run for 'cite worker' instead of running it here")

	graphShowCmd.Flags().StringVar(&graphHTML, "html", "", "Write an interactive HTML view to this file")
	graphShowCmd.Flags().StringVar(&graphLayout, "layout", "force", "HTML layout: force, circle, grid or breadthfirst")

	graphCmd.AddCommand(graphBuildCmd, graphShowCmd)
	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and inspect citation graphs",
}

var graphBuildCmd = &cobra.Command{
	Use:   "build <collection>",
	Short: "Expand the citation graph of a collection",
	Long: `Resolve the citations of every paper in the collection, adding newly
discovered papers with provenance "graph-discovery", and keep expanding
breadth-first (or depth-first with --mode dfs) until the depth ceiling.

All changes of a run are committed together. With --async the run is
queued in Redis and its ID printed; follow it with 'cite status <run-id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphBuild,
}

var graphShowCmd = &cobra.Command{
	Use:   "show <collection>",
	Short: "Print the nodes and edges of a collection's graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphShow,
}

// BuildResponse is the response for a synchronous graph build.
type BuildResponse struct {
	RunID    string      `json:"run_id"`
	Status   job.Status  `json:"status"`
	Stats    graph.Stats `json:"stats"`
	Duration string      `json:"duration"`
}

func runGraphBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if _, err := graph.ParseMode(graphMode); err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	depth := graphDepth
	if depth < 0 || depth > cfg.MaxGraphDepth {
		depth = cfg.MaxGraphDepth
	}
	req := job.Request{RunID: uuid.NewString(), CollectionID: args[0], Mode: graphMode, Depth: depth}

	if graphAsync {
		rdb, err := queue.Connect(ctx, cfg.RedisURL)
		if err != nil {
			exitWithError(ExitUnavailable, "%v", err)
		}
		defer rdb.Close()

		runID, err := queue.New(rdb).Enqueue(ctx, req)
		if err != nil {
			exitWithError(exitCodeFor(err), "enqueueing run: %v", err)
		}
		output(StatusResponse{Status: string(job.StatusQueued), ID: runID}, func() {
			outputHuman("Queued run %s\nFollow it with: cite status %s\n", runID, runID)
		})
		return nil
	}

	db := mustOpenDatabase()
	defer db.Close()

	embedder := mustNewEmbedder()
	warnIfEmbedderDown(ctx, embedder)
	runner := job.NewRunner(db, newRegistry(), embedder,
		job.WithMaxDepth(cfg.MaxGraphDepth),
		job.WithLogger(slog.Default()))

	start := time.Now()
	stats, err := runner.Run(ctx, req)
	if err != nil {
		exitWithError(exitCodeFor(err), "graph build: %v", err)
	}

	output(BuildResponse{RunID: req.RunID, Status: job.StatusSucceeded, Stats: stats, Duration: time.Since(start).String()}, func() {
		outputHuman("Run %s finished in %s\n", req.RunID, formatDuration(time.Since(start)))
		outputHuman("  nodes processed: %d\n  edges created:   %d\n  papers added:    %d\n  depth reached:   %d\n",
			stats.NodesProcessed, stats.EdgesCreated, stats.PapersAdded, stats.DepthReached)
	})
	return nil
}

func runGraphShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	var g *viz.GraphData
	err := db.View(ctx, func(tx *storage.Tx) error {
		var err error
		g, err = viz.BuildGraph(ctx, tx, args[0])
		return err
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "building graph data: %v", err)
	}

	if graphHTML != "" {
		html, err := viz.GenerateHTML(g, viz.HTMLOptions{Layout: graphLayout, Title: "Citation graph " + args[0]})
		if err != nil {
			exitWithError(ExitDataError, "generating HTML: %v", err)
		}
		if err := os.WriteFile(graphHTML, []byte(html), 0o644); err != nil {
			exitWithError(ExitError, "writing output file: %v", err)
		}
		output(map[string]any{"output": graphHTML, "totals": g.Totals}, func() {
			outputHuman("Visualization written to %s\n", graphHTML)
		})
		return nil
	}

	output(g, func() {
		t := g.Totals
		outputHuman("%d papers, %d citations (%d resolved, %d unresolved)\n\n", t.Papers, t.Citations, t.Resolved, t.Unresolved)
		for _, n := range g.Nodes {
			if n.Type != viz.NodeTypePaper {
				continue
			}
			outputHuman("%s  %s  [%s, cited by %d]\n", formatYear(n.Year),
				truncateString(n.Title, DetailTitleMaxLen), n.Provenance, n.CitedBy)
		}
	})
	return nil
}

