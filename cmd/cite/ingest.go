package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/ingest"
)

var ingestLimit int

func init() {
	ingestTopicCmd.Flags().IntVar(&ingestLimit, "limit", 0, "Maximum papers to add (default and cap: max_topic_papers)")

	ingestCmd.AddCommand(ingestTopicCmd, ingestPDFCmd)
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add papers from Crossref searches or PDFs",
}

var ingestTopicCmd = &cobra.Command{
	Use:   "topic <collection> <query>",
	Short: "Add the top Crossref results for a query",
	Long: `Search Crossref for a topic and add the results to a collection with
provenance "topic-search". Papers already in the collection (same DOI, or
same title and year) are not added again.`,
	Args: cobra.ExactArgs(2),
	RunE: runIngestTopic,
}

var ingestPDFCmd = &cobra.Command{
	Use:   "pdf <collection> <file.pdf>",
	Short: "Add the paper described by a PDF",
	Long: `Read the first pages of a PDF for a DOI, title and abstract. When the DOI
is known to Crossref the Crossref record and its references are stored;
otherwise a minimal paper is built from the PDF text.`,
	Args: cobra.ExactArgs(2),
	RunE: runIngestPDF,
}

func runIngestTopic(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	result, err := newImporter(ctx, db).IngestTopic(ctx, args[0], args[1], ingestLimit)
	if err != nil {
		exitWithError(exitCodeFor(err), "ingesting topic: %v", err)
	}
	printIngestResult(result)
	return nil
}

func runIngestPDF(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	result, err := newImporter(ctx, db).IngestPDF(ctx, args[0], args[1])
	if err != nil {
		exitWithError(exitCodeFor(err), "ingesting PDF: %v", err)
	}
	printIngestResult(result)
	return nil
}

func printIngestResult(result ingest.Result) {
	output(result, func() {
		outputHuman("created: %d, existing: %d, citations: %d\n", result.Created, result.Existing, result.Citations)
		if result.Skipped > 0 {
			outputHuman("skipped: %d\n", result.Skipped)
		}
		for _, id := range result.PaperIDs {
			outputHuman("  %s\n", id)
		}
	})
}
