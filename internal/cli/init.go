package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/kilupskalvis/contentsync/internal/config"
	"github.com/kilupskalvis/contentsync/internal/journal"
	"github.com/kilupskalvis/contentsync/internal/store"
	"github.com/kilupskalvis/contentsync/internal/weaviate"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a contentsync.toml in the current directory",
	Long: `Create a contentsync.toml in the current directory and the local state
directory holding the anchor ledger and the sync journal.

With the weaviate backend the server is contacted to detect its version.`,
	Run: runInit,
}

var (
	initProjectID string
	initBackend   string
	initURL       string
)

func init() {
	initCmd.Flags().StringVar(&initProjectID, "project-id", os.Getenv("KONTENT_PROJECT_ID"), "CMS project (environment) ID")
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendWeaviate, "Index backend (weaviate|bleve|memory)")
	initCmd.Flags().StringVar(&initURL, "weaviate-url", "http://localhost:8080", "Weaviate server URL")
}

func runInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if initProjectID == "" {
		exitError("--project-id is required")
	}

	dir, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Initializing contentsync...\n")
	cfg, err := config.Initialize(dir, initProjectID)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}
	cfg.Index.Backend = initBackend
	cfg.Index.WeaviateURL = initURL

	if initBackend == config.BackendWeaviate {
		detectWeaviate(ctx, cfg)
	}

	if err := cfg.Validate(); err != nil {
		exitError("%v", err)
	}
	if err := cfg.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}

	st, err := store.New(cfg.LedgerPath())
	if err != nil {
		exitError("failed to create ledger: %v", err)
	}
	defer st.Close()
	if err := st.Initialize(); err != nil {
		exitError("failed to initialize ledger: %v", err)
	}

	j, err := journal.New(cfg.JournalPath())
	if err != nil {
		exitError("failed to create journal: %v", err)
	}
	defer j.Close()
	if err := j.Initialize(); err != nil {
		exitError("failed to initialize journal: %v", err)
	}

	fmt.Printf("\nWrote %s\n", cfg.Path())
	fmt.Printf("Index backend: %s\n", cfg.Index.Backend)
	fmt.Printf("\nRun 'contentsync reindex' to build the index.\n")
}

// detectWeaviate records the server version so listing can pick cursor
// or offset pagination. An unreachable server is not fatal.
func detectWeaviate(ctx context.Context, cfg *config.Config) {
	fmt.Printf("Weaviate URL: %s\n", cfg.Index.WeaviateURL)

	client, err := weaviate.NewClient(cfg.Index.WeaviateURL, weaviate.Options{APIKey: cfg.Index.WeaviateAPIKey})
	if err != nil {
		exitError("failed to create Weaviate client: %v", err)
	}

	fmt.Printf("Connecting to Weaviate...\n")
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("Warning: %v\n", err)
		return
	}

	version, err := client.GetServerVersion(ctx)
	if err != nil {
		fmt.Printf("Warning: Could not detect Weaviate version\n")
		return
	}
	cfg.Index.ServerVersion = version.Version
	fmt.Printf("Weaviate version: %s\n", version.Version)

	if !version.SupportsFeature("cursor_pagination") {
		fmt.Printf("Warning: Server < 1.18, using offset pagination (slower for large indexes)\n")
	}
	if !version.SupportsFeature("contains_any") {
		fmt.Printf("Warning: Server < 1.21 does not support ContainsAny filters; deletes and lookups will fail\n")
	}
}
