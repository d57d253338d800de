// Package cli implements the command-line interface for contentsync.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilupskalvis/contentsync/internal/app"
	"github.com/kilupskalvis/contentsync/internal/config"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	App    *app.App
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.App != nil {
		if err := c.App.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
}

var configPath string

// initContext loads the configuration only
func initContext() *cmdContext {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		exitError("%v", err)
	}
	return &cmdContext{Config: cfg}
}

// initAppContext loads the configuration and wires every collaborator
func initAppContext(ctx context.Context, opts app.Options) *cmdContext {
	c := initContext()
	if opts.Logger == nil {
		opts.Logger = app.NewLogger(c.Config.Log, os.Stderr)
	}

	a, err := app.Build(ctx, c.Config, opts)
	if err != nil {
		exitError("%v", err)
	}
	c.App = a
	return c
}

var rootCmd = &cobra.Command{
	Use:   "contentsync",
	Short: "Keep a search index in sync with headless CMS content",
	Long: `contentsync flattens published CMS content into searchable records and
keeps a search index up to date. Run a full reindex once, then let the
webhook server apply each publish, unpublish or edit as it happens.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to "+config.ConfigFile+" (default: nearest in a parent directory)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(flattenCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
