package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and ledger status",
	Long:  `Show the configured index, how many records it holds and when it was last fully rebuilt.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initAppContext(ctx, app.Options{})
	defer c.Close()

	cfg := c.Config
	fmt.Printf("Config:  %s\n", cfg.Path())
	fmt.Printf("Project: %s", cfg.Delivery.ProjectID)
	if cfg.Delivery.Preview {
		color.New(color.FgCyan).Print(" (preview)")
	}
	fmt.Println()
	fmt.Printf("Index:   %s", cfg.Index.Backend)
	if cfg.Index.ServerVersion != "" {
		fmt.Printf(" %s", cfg.Index.ServerVersion)
	}
	fmt.Println()

	ids, err := c.App.Index.ListObjectIDs(ctx)
	if err != nil {
		exitError("failed to list records: %v", err)
	}
	anchors, err := c.App.Ledger.Anchors()
	if err != nil {
		exitError("failed to read ledger: %v", err)
	}
	fmt.Printf("\n%s records in index, %s anchors in ledger\n",
		humanize.Comma(int64(len(ids))), humanize.Comma(int64(len(anchors))))

	if len(ids) != len(anchors) {
		color.New(color.FgYellow).Println("  (index and ledger differ, run 'contentsync reindex --prune' to realign)")
	}

	last, err := c.App.Ledger.LastReindex()
	if err != nil {
		exitError("%v", err)
	}
	if last.IsZero() {
		fmt.Println("Never fully reindexed")
	} else {
		fmt.Printf("Last full reindex %s\n", humanize.Time(last))
	}

	runs, err := c.App.Journal.Recent(1)
	if err != nil {
		exitError("failed to read journal: %v", err)
	}
	if len(runs) > 0 {
		fmt.Printf("Last run: ")
		printRunOneline(runs[0])
	}
}
