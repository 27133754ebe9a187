package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/semantic"
	"github.com/matsen/citegraph/internal/storage"
)

var (
	searchLimit     int
	searchThreshold float32
)

func init() {
	for _, c := range []*cobra.Command{searchCmd, similarCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum results")
		c.Flags().Float32Var(&searchThreshold, "threshold", 0.5, "Minimum cosine similarity")
	}
	rootCmd.AddCommand(searchCmd, similarCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <collection> <query>",
	Short: "Find papers by semantic similarity to a query",
	Long: `Embed the query with the configured provider and rank the papers of a
collection by the best similarity of any of their stored chunks.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar <paper-id>",
	Short: "Find papers similar to a paper in its collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

// searchHit is a ranked paper with its display fields.
type searchHit struct {
	semantic.SearchResult
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	DOI   string `json:"doi,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	collectionID, query := args[0], args[1]
	mustGetCollection(ctx, db, collectionID)
	embedder := mustNewEmbedder()

	var hits []searchHit
	err := db.View(ctx, func(tx *storage.Tx) error {
		idx, err := semantic.Load(ctx, tx, collectionID, embedder.Dimensions())
		if err != nil {
			return err
		}
		results, err := idx.SearchText(ctx, embedder, query, searchLimit, searchThreshold)
		if err != nil {
			return err
		}
		hits, err = describeHits(ctx, tx, results)
		return err
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "searching: %v", err)
	}
	printHits(hits)
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	paperID := args[0]
	var hits []searchHit
	err := db.View(ctx, func(tx *storage.Tx) error {
		p, err := tx.GetPaper(ctx, paperID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %s", semantic.ErrPaperNotIndexed, paperID)
		}
		idx, err := semantic.Load(ctx, tx, p.CollectionID, cfg.VectorDimension)
		if err != nil {
			return err
		}
		results, err := idx.FindSimilar(paperID, searchLimit)
		if err != nil {
			return err
		}
		var kept []semantic.SearchResult
		for _, r := range results {
			if r.Similarity >= searchThreshold {
				kept = append(kept, r)
			}
		}
		hits, err = describeHits(ctx, tx, kept)
		return err
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "finding similar papers: %v", err)
	}
	printHits(hits)
	return nil
}

func describeHits(ctx context.Context, tx *storage.Tx, results []semantic.SearchResult) ([]searchHit, error) {
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		p, err := tx.GetPaper(ctx, r.PaperID)
		if err != nil {
			return nil, err
		}
		h := searchHit{SearchResult: r}
		if p != nil {
			h.Title, h.Year, h.DOI = p.Title, p.Year, p.DOI
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func printHits(hits []searchHit) {
	output(hits, func() {
		if len(hits) == 0 {
			outputHuman("No matching papers\n")
			return
		}
		for _, h := range hits {
			outputHuman("%.3f  %s  %s (%s)\n", h.Similarity, h.PaperID, truncateString(h.Title, ListTitleMaxLen), formatYear(h.Year))
		}
	})
}
