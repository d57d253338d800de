package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/kilupskalvis/contentsync/internal/core"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from all published content",
	Long: `Fetch every content item, flatten each item that has a slug into a
searchable record and write all records to the index.

Records of items that no longer exist are left in place unless --prune
is given. --dry-run builds the records without touching the index.`,
	Run: runReindex,
}

var (
	reindexPrune  bool
	reindexDryRun bool
)

func init() {
	reindexCmd.Flags().BoolVar(&reindexPrune, "prune", false, "Delete records whose item is no longer addressable")
	reindexCmd.Flags().BoolVar(&reindexDryRun, "dry-run", false, "Build the records without writing them")
}

func runReindex(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	var opts app.Options
	if reindexDryRun {
		opts.Index = index.NewMemoryIndex()
	}
	c := initAppContext(ctx, opts)
	defer c.Close()

	if reindexDryRun {
		items, err := c.App.Delivery.FetchAll(ctx)
		if err != nil {
			exitError("failed to fetch content: %v", err)
		}
		structure := c.App.Syncer.BuildAll(items)
		for _, item := range structure {
			fmt.Printf("%-40s %3d blocks  %s\n", item.ObjectID, len(item.Content), item.Slug)
		}
		fmt.Printf("\n%d items, %d records (dry run, index untouched)\n", len(items), len(structure))
		return
	}

	fmt.Printf("Reindexing into %s index...\n", c.Config.Index.Backend)
	result, err := c.App.Syncer.FullReindex(ctx, core.ReindexOptions{Prune: reindexPrune})
	if err != nil {
		exitError("reindex failed: %v", err)
	}
	printResult(result)
}

// printResult summarises a finished run
func printResult(result *core.SyncResult) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, id := range result.ObjectIDs {
		green.Printf("  indexed: %s\n", id)
	}
	for _, id := range result.Deleted {
		red.Printf("  deleted: %s\n", id)
	}

	fmt.Printf("\n[%s] %d indexed, %d deleted in %s\n",
		result.Run.ShortID(), len(result.ObjectIDs), len(result.Deleted), result.Run.Duration().Round(1e6))
}
