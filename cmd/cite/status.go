package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/job"
	"github.com/matsen/citegraph/internal/queue"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the status of a queued graph run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rdb, err := queue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		exitWithError(ExitUnavailable, "%v", err)
	}
	defer rdb.Close()

	st, err := queue.New(rdb).Status(ctx, args[0])
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}

	output(st, func() {
		outputHuman("Run %s: %s\n", st.RunID, st.Status)
		if st.Message != "" {
			outputHuman("  %s\n", st.Message)
		}
		if st.Papers > 0 {
			outputHuman("  papers in collection: %d\n", st.Papers)
		}
		if s := st.Stats; s != nil && st.Status != job.StatusQueued {
			outputHuman("  nodes processed: %d, edges created: %d, papers added: %d, depth reached: %d\n",
				s.NodesProcessed, s.EdgesCreated, s.PapersAdded, s.DepthReached)
		}
		outputHuman("  updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
	})
	return nil
}
