package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/kilupskalvis/contentsync/internal/core"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/spf13/cobra"
)

var flattenCmd = &cobra.Command{
	Use:   "flatten <codename>",
	Short: "Print the records an item would produce",
	Long: `Fetch one item with its linked items and print, as JSON, the searchable
records built from it. Nothing is written to the index.`,
	Args: cobra.ExactArgs(1),
	Run:  runFlatten,
}

func runFlatten(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()

	dc, err := app.NewDelivery(c.Config, false)
	if err != nil {
		exitError("%v", err)
	}

	resp, err := dc.FetchItem(ctx, args[0])
	if err != nil {
		exitError("%v", err)
	}

	f := core.NewFlattener(c.Config.Content.SlugElement)
	items := resp.Items()
	structure := f.BuildSearchableStructure(f.FilterAddressable(items), models.NewUniverse(items))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(structure); err != nil {
		exitError("%v", err)
	}
}
