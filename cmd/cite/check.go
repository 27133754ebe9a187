package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/storage"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <collection>",
	Short: "Verify collection integrity",
	Long: `Check a collection for duplicate papers, citations that reach the same
paper twice, citations resolved outside the collection, and abstract
chunks with missing or wrongly sized embeddings.

Exits with status 6 when issues are found.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

// CheckResult is the response for the check command.
type CheckResult struct {
	Status string          `json:"status"`
	Papers int             `json:"papers"`
	Issues []storage.Issue `json:"issues"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	collectionID := args[0]
	mustGetCollection(ctx, db, collectionID)

	result := CheckResult{Status: "ok", Issues: []storage.Issue{}}
	err := db.View(ctx, func(tx *storage.Tx) error {
		n, err := tx.CountPapers(ctx, collectionID)
		if err != nil {
			return err
		}
		result.Papers = n

		issues, err := tx.CheckCollection(ctx, collectionID, cfg.VectorDimension)
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			result.Status = "issues"
			result.Issues = issues
		}
		return nil
	})
	if err != nil {
		exitWithError(ExitError, "checking collection: %v", err)
	}

	output(result, func() {
		if len(result.Issues) == 0 {
			outputHuman("Collection check: OK\n\n%d papers checked\n", result.Papers)
			return
		}
		outputHuman("Collection check: %d issues found\n\n", len(result.Issues))
		for _, issue := range result.Issues {
			outputHuman("  [WARN] %s: %s\n", issue.Type, issue.Detail)
			outputHuman("         IDs: %s\n\n", strings.Join(issue.IDs, ", "))
		}
		outputHuman("%d papers checked\n", result.Papers)
	})

	if result.Status != "ok" {
		os.Exit(ExitCheckFailures)
	}
	return nil
}
