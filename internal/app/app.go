// Package app builds the contentsync collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kilupskalvis/contentsync/internal/bleveindex"
	"github.com/kilupskalvis/contentsync/internal/config"
	"github.com/kilupskalvis/contentsync/internal/core"
	"github.com/kilupskalvis/contentsync/internal/delivery"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/journal"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/kilupskalvis/contentsync/internal/server"
	"github.com/kilupskalvis/contentsync/internal/store"
	"github.com/kilupskalvis/contentsync/internal/weaviate"
)

var (
	_ core.AnchorLedger = (*store.Store)(nil)
	_ core.Journal      = (*journal.Journal)(nil)
	_ core.Notifier     = (*server.WebhookNotifier)(nil)
	_ server.Syncer     = (*core.Syncer)(nil)
)

// App holds the collaborators of one process
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Delivery delivery.ClientInterface
	Index    index.Index
	Ledger   *store.Store
	Journal  *journal.Journal
	Notifier *server.WebhookNotifier
	Syncer   *core.Syncer
}

// Options adjusts how Build wires the collaborators
type Options struct {
	// WaitForNewContent asks the Delivery API to bypass its cache
	WaitForNewContent bool
	// Index replaces the configured backend, e.g. a MemoryIndex for dry runs
	Index  index.Index
	Logger *slog.Logger
}

// ParseLevel maps a config level name to a slog level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates the process logger from the log section
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// NewDelivery creates the Delivery API client with retries
func NewDelivery(cfg *config.Config, waitForNew bool) (delivery.ClientInterface, error) {
	client, err := delivery.NewHTTPClient(delivery.Config{
		ProjectID:         cfg.Delivery.ProjectID,
		PreviewAPIKey:     cfg.Delivery.PreviewAPIKey,
		Preview:           cfg.Delivery.Preview,
		BaseURL:           cfg.Delivery.BaseURL,
		PreviewBaseURL:    cfg.Delivery.PreviewBaseURL,
		Depth:             cfg.Delivery.Depth,
		WaitForNewContent: waitForNew,
		RequestsPerSecond: cfg.Delivery.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Delivery.MaxRetries <= 0 {
		return client, nil
	}
	retry := delivery.DefaultRetryConfig()
	retry.MaxRetries = cfg.Delivery.MaxRetries
	return delivery.NewRetryClient(client, retry), nil
}

// NewIndex opens the configured search index backend
func NewIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (index.Index, error) {
	switch cfg.Index.Backend {
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(cfg.Index.WeaviateURL, weaviate.Options{
			APIKey:        cfg.Index.WeaviateAPIKey,
			ClassName:     cfg.Index.ClassName,
			UseCursor:     cfg.Index.SupportsCursorPagination(),
			SnippetLength: cfg.Index.SnippetLength,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case config.BackendBleve:
		return bleveindex.Open(cfg.BlevePath(), logger)
	case config.BackendMemory:
		return index.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// IndexSettings returns the settings applied before a full reindex
func IndexSettings(cfg *config.Config) *models.IndexSettings {
	settings := models.DefaultIndexSettings()
	if cfg.Index.SnippetLength > 0 {
		settings.SnippetLength = cfg.Index.SnippetLength
	}
	return settings
}

// Build validates cfg and wires every collaborator. Close releases them.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	dc, err := NewDelivery(cfg, opts.WaitForNewContent)
	if err != nil {
		return nil, err
	}
	a.Delivery = dc

	ledger, err := store.New(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	a.Ledger = ledger
	if err := ledger.Initialize(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}

	j, err := journal.New(cfg.JournalPath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	a.Journal = j
	if err := j.Initialize(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	a.Index = opts.Index
	if a.Index == nil {
		idx, err := NewIndex(ctx, cfg, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open search index: %w", err)
		}
		a.Index = idx
	}

	a.Syncer = &core.Syncer{
		Delivery:    a.Delivery,
		Index:       a.Index,
		Flattener:   core.NewFlattener(cfg.Content.SlugElement),
		Settings:    IndexSettings(cfg),
		Concurrency: cfg.Sync.Concurrency,
		Ledger:      a.Ledger,
		Journal:     a.Journal,
		Logger:      logger,
	}

	a.Notifier = server.NewWebhookNotifier(&server.NotifierConfig{URLs: cfg.Sync.NotifyURLs}, logger)
	if a.Notifier != nil {
		a.Syncer.Notifier = a.Notifier
		logger.Info("notifications configured", "count", len(cfg.Sync.NotifyURLs))
	}

	return a, nil
}

// Ready reports whether the search index is reachable
func (a *App) Ready(ctx context.Context) error {
	if p, ok := a.Index.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ServerConfig derives the HTTP server settings
func (a *App) ServerConfig() *server.Config {
	cfg := server.DefaultConfig()
	cfg.WebhookSecret = a.Config.Server.WebhookSecret
	cfg.ReindexSecret = a.Config.Server.ReindexSecret
	if a.Config.Server.MaxRequestBody > 0 {
		cfg.MaxRequestBody = a.Config.Server.MaxRequestBody
	}
	cfg.RequestsPerMinute = a.Config.Server.RequestsPerMinute
	cfg.Ready = a.Ready
	return cfg
}

// Close waits for pending notifications and releases every collaborator
func (a *App) Close() error {
	a.Notifier.Wait()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Index != nil {
		keep(a.Index.Close())
	}
	if a.Journal != nil {
		keep(a.Journal.Close())
	}
	if a.Ledger != nil {
		keep(a.Ledger.Close())
	}
	return firstErr
}
