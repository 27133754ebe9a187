package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/analysis"
	"github.com/matsen/citegraph/internal/storage"
)

var gapsStored bool

func init() {
	gapsCmd.Flags().BoolVar(&gapsStored, "stored", false, "Show the insights of the last analysis without recomputing")
	rootCmd.AddCommand(gapsCmd)
}

var gapsCmd = &cobra.Command{
	Use:   "gaps <collection>",
	Short: "Find research gaps in a collection",
	Long: `Cluster the papers of a collection by their stored embeddings, derive
coverage, novelty, recent-activity and venue-diversity metrics, and report
up to five scored research-gap insights. The insights replace those of the
previous analysis.

Needs at least three papers with an embedding.`,
	Args: cobra.ExactArgs(1),
	RunE: runGaps,
}

func runGaps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	collectionID := args[0]
	mustGetCollection(ctx, db, collectionID)

	if gapsStored {
		var stored []storage.GapInsight
		err := db.View(ctx, func(tx *storage.Tx) error {
			var err error
			stored, err = tx.ListGapInsights(ctx, collectionID)
			return err
		})
		if err != nil {
			exitWithError(exitCodeFor(err), "reading gap insights: %v", err)
		}
		if stored == nil {
			stored = []storage.GapInsight{}
		}
		output(stored, func() {
			if len(stored) == 0 {
				outputHuman("No stored gap insights\n")
				return
			}
			for _, g := range stored {
				outputHuman("%.1f  %s\n", g.Score, g.Insight)
			}
		})
		return nil
	}

	var report *analysis.Report
	err := db.Update(ctx, func(tx *storage.Tx) error {
		var err error
		report, err = analysis.New(tx, cfg.VectorDimension, analysis.WithLogger(slog.Default())).Run(ctx, collectionID)
		return err
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "analyzing gaps: %v", err)
	}

	output(report, func() {
		if report.PapersAnalyzed < analysis.MinPapers {
			outputHuman("Only %d papers have embeddings; at least %d are needed\n", report.PapersAnalyzed, analysis.MinPapers)
			return
		}
		m := report.Metrics
		outputHuman("%d papers, %d embedded, %d clusters\n", m.TotalPapers, report.PapersAnalyzed, m.Clusters)
		outputHuman("coverage %.2f  novelty %.2f  recent %.0f%%  venue diversity %.0f%%\n\n",
			m.Coverage, m.Novelty, m.TrajectoryGrowth*100, m.MethodDiversity*100)
		if len(report.Insights) == 0 {
			outputHuman("No gaps detected\n")
			return
		}
		for _, in := range report.Insights {
			outputHuman("%.1f  %s\n", in.Score, in.Text)
		}
	})
	return nil
}
