package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <codename>",
	Short: "Show which records contain a content item",
	Long: `List the index records holding a content block for the given codename,
i.e. the records a change to that item rebuilds. The anchors the local
ledger knows for the codename are listed as well.`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initAppContext(ctx, app.Options{})
	defer c.Close()

	codename := args[0]
	hits, err := c.App.Index.FindByBlockCodename(ctx, codename)
	if err != nil {
		exitError("search failed: %v", err)
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if len(hits) == 0 {
		fmt.Printf("No records contain %s\n", codename)
	}
	for _, hit := range hits {
		yellow.Printf("%s", hit.ObjectID)
		fmt.Printf("  %s", hit.Name)
		if hit.Slug != "" {
			cyan.Printf("  %s", hit.Slug)
		}
		fmt.Println()
		for _, block := range hit.Content {
			if block.Codename == codename {
				fmt.Printf("    via %s\n", strings.Join(append(block.Parents, block.Codename), " > "))
			}
		}
	}

	anchors, err := c.App.Ledger.AnchorsOf(codename)
	if err != nil {
		exitError("failed to read ledger: %v", err)
	}
	if len(anchors) > 0 {
		fmt.Printf("\nLedger anchors: %s\n", strings.Join(anchors, ", "))
	}
}
