package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/export"
	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

var (
	exportOutput string
	exportFormat string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Export format: jsonl or bibtex")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export <collection>",
	Short: "Export a collection as seed JSONL or BibTeX",
	Long: `Export every paper of a collection.

The default jsonl format carries outgoing citations and is read by 'cite import'.
The bibtex format appends to --output when it already exists, skipping papers
whose DOI or citation key is already present in the file.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if exportFormat != "jsonl" && exportFormat != "bibtex" {
		exitWithError(ExitConfigError, "unknown export format %q (want jsonl or bibtex)", exportFormat)
	}

	db := mustOpenDatabase()
	defer db.Close()

	collectionID := args[0]
	mustGetCollection(ctx, db, collectionID)

	var records []storage.SeedRecord
	err := db.View(ctx, func(tx *storage.Tx) error {
		var err error
		records, err = tx.ExportCollection(ctx, collectionID)
		return err
	})
	if err != nil {
		exitWithError(ExitError, "exporting: %v", err)
	}

	if exportFormat == "bibtex" {
		return exportBibTeX(records)
	}

	if exportOutput == "" {
		if err := storage.WriteSeeds(os.Stdout, records); err != nil {
			exitWithError(ExitError, "%v", err)
		}
		return nil
	}

	if err := storage.WriteSeedFile(exportOutput, records); err != nil {
		exitWithError(ExitError, "%v", err)
	}
	output(map[string]any{"output": exportOutput, "papers": len(records)}, func() {
		outputHuman("Exported %d papers to %s\n", len(records), exportOutput)
	})
	return nil
}

func exportBibTeX(records []storage.SeedRecord) error {
	papers := make([]paper.Paper, 0, len(records))
	for _, r := range records {
		papers = append(papers, r.Paper)
	}

	if exportOutput == "" {
		fmt.Print(export.ToBibTeXList(papers))
		return nil
	}

	idx, err := export.ParseBibTeXFile(exportOutput)
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", exportOutput, err)
	}
	fresh := idx.NewEntries(papers)
	if len(fresh) > 0 {
		if err := export.AppendToBibFile(exportOutput, export.ToBibTeXList(fresh)); err != nil {
			exitWithError(ExitError, "writing %s: %v", exportOutput, err)
		}
	}

	output(map[string]any{"output": exportOutput, "added": len(fresh), "skipped": len(papers) - len(fresh)}, func() {
		outputHuman("Appended %d entries to %s (%d already present)\n", len(fresh), exportOutput, len(papers)-len(fresh))
	})
	return nil
}
