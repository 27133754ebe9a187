package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/importer"
	"github.com/matsen/citegraph/internal/storage"
)

var importFormat string

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "jsonl", "Input format: jsonl or paperpile")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <collection> <file>",
	Short: "Import seed papers from a JSONL file or a Paperpile export",
	Long: `Import seed papers into a collection. Each line is a paper object with
an optional "citations" array of {doi, title, year} stubs.

Papers are matched on DOI, else on title and year, so importing the same
file twice adds nothing. Imported papers get provenance "upload".

Example line:
  {"title":"Phylogenetic placement","doi":"10.1186/1471-2105-11-538","year":2010,
   "citations":[{"doi":"10.1093/bioinformatics/btl446"}]}

With --format paperpile the file is a Paperpile JSON export. Entries that
cannot be converted are reported and skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	collectionID, path := args[0], args[1]

	var seeds []storage.SeedRecord
	switch importFormat {
	case "jsonl":
		var err error
		seeds, err = storage.ReadSeedFile(path)
		if err != nil {
			exitWithError(ExitDataError, "%v", err)
		}
	case "paperpile":
		var errs []error
		seeds, errs = importer.ReadPaperpileFile(path)
		if len(errs) > 0 && len(seeds) == 0 {
			exitWithError(ExitDataError, "%v", errs[0])
		}
		for _, e := range errs {
			slog.WarnContext(ctx, "skipping Paperpile entry", "error", e)
		}
	default:
		exitWithError(ExitConfigError, "unknown import format %q (want jsonl or paperpile)", importFormat)
	}

	db := mustOpenDatabase()
	defer db.Close()

	result, err := newImporter(ctx, db).ImportSeeds(ctx, collectionID, seeds)
	if err != nil {
		exitWithError(exitCodeFor(err), "importing seeds: %v", err)
	}

	output(result, func() {
		outputHuman("Imported %d records into %s\n", len(seeds), collectionID)
		outputHuman("  created:   %d\n  existing:  %d\n  citations: %d\n", result.Created, result.Existing, result.Citations)
		if result.Skipped > 0 {
			outputHuman("  skipped:   %d (no title)\n", result.Skipped)
		}
	})
	return nil
}
