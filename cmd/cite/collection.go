package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/paper"
	"github.com/matsen/citegraph/internal/storage"
)

var (
	collectionNewID string
	collectionOwner string
	collectionForce bool
)

func init() {
	collectionCreateCmd.Flags().StringVar(&collectionNewID, "id", "", "Collection ID (default: generated UUID)")
	collectionCreateCmd.Flags().StringVar(&collectionOwner, "owner", "", "Owner ID")
	collectionDeleteCmd.Flags().BoolVar(&collectionForce, "force", false, "Delete even if the collection has papers")

	collectionCmd.AddCommand(collectionCreateCmd, collectionListCmd, collectionDeleteCmd)
	rootCmd.AddCommand(collectionCmd)
}

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage paper collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionCreate,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with paper counts",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete <collection>",
	Short: "Delete a collection and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionDelete,
}

// CollectionSummary is a collection with its size.
type CollectionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Papers    int       `json:"papers"`
	CreatedAt time.Time `json:"created_at"`
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	c := &paper.Collection{ID: collectionNewID, Title: args[0], OwnerID: collectionOwner}
	err := db.Update(ctx, func(tx *storage.Tx) error {
		return tx.CreateCollection(ctx, c)
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "creating collection: %v", err)
	}

	output(c, func() {
		outputHuman("Created collection %s: %s\n", c.ID, c.Title)
	})
	return nil
}

func runCollectionList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	summaries, err := listCollections(ctx, db)
	if err != nil {
		exitWithError(ExitError, "listing collections: %v", err)
	}

	output(summaries, func() {
		if len(summaries) == 0 {
			outputHuman("No collections\n")
			return
		}
		for _, s := range summaries {
			outputHuman("%s  %-*s  %d papers\n", s.ID, ListTitleMaxLen, truncateString(s.Title, ListTitleMaxLen), s.Papers)
		}
	})
	return nil
}

func listCollections(ctx context.Context, db *storage.DB) ([]CollectionSummary, error) {
	summaries := []CollectionSummary{}
	err := db.View(ctx, func(tx *storage.Tx) error {
		colls, err := tx.ListCollections(ctx)
		if err != nil {
			return err
		}
		for _, c := range colls {
			n, err := tx.CountPapers(ctx, c.ID)
			if err != nil {
				return err
			}
			summaries = append(summaries, CollectionSummary{
				ID: c.ID, Title: c.Title, OwnerID: c.OwnerID, Papers: n, CreatedAt: c.CreatedAt,
			})
		}
		return nil
	})
	return summaries, err
}

func runCollectionDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db := mustOpenDatabase()
	defer db.Close()

	id := args[0]
	err := db.Update(ctx, func(tx *storage.Tx) error {
		if !collectionForce {
			n, err := tx.CountPapers(ctx, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("collection %s has %d papers (use --force)", id, n)
			}
		}
		deleted, err := tx.DeleteCollection(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %s", storage.ErrCollectionNotFound, id)
		}
		return nil
	})
	if err != nil {
		exitWithError(exitCodeFor(err), "deleting collection: %v", err)
	}

	output(StatusResponse{Status: "deleted", ID: id}, func() {
		outputHuman("Deleted collection %s\n", id)
	})
	return nil
}
