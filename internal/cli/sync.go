package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync <codename>...",
	Short: "Reconcile the index for specific content items",
	Long: `Reconcile the index for the given item codenames exactly as a webhook
would: items that gained a slug are added, items that lost it or were
removed are deleted, and every record embedding a changed item is rebuilt.

Examples:
  contentsync sync home_page
  contentsync sync hero_banner footer`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSync,
}

var syncFresh bool

func init() {
	syncCmd.Flags().BoolVar(&syncFresh, "fresh", true, "Bypass the Delivery API cache")
}

func runSync(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initAppContext(ctx, app.Options{WaitForNewContent: syncFresh})
	defer c.Close()

	fmt.Printf("Reconciling %d item(s)...\n", len(args))
	result, err := c.App.Syncer.ProcessCodenames(ctx, models.RunManual, args)
	if err != nil {
		exitError("sync failed: %v", err)
	}
	printResult(result)
}
