// Package weaviate stores searchable items in a Weaviate class.
// Each record becomes one object with a deterministic UUID derived from its
// object ID, so upserts overwrite in place.
package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
)

// DefaultClassName is the Weaviate class holding searchable items
const DefaultClassName = "SearchableItem"

// Verify that *Client implements index.Index at compile time
var _ index.Index = (*Client)(nil)

// ServerVersion holds parsed Weaviate version info
type ServerVersion struct {
	Version string // e.g., "1.25.0"
	Major   int
	Minor   int
	Patch   int
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)`)

// parseVersion parses a version string like "1.25.0" into ServerVersion
func parseVersion(version string) (*ServerVersion, error) {
	matches := versionPattern.FindStringSubmatch(version)
	if len(matches) < 4 {
		return nil, fmt.Errorf("invalid version format: %s", version)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &ServerVersion{
		Version: version,
		Major:   major,
		Minor:   minor,
		Patch:   patch,
	}, nil
}

// SupportsFeature checks if the server supports a specific feature
func (v *ServerVersion) SupportsFeature(feature string) bool {
	switch feature {
	case "cursor_pagination":
		return v.Major > 1 || (v.Major == 1 && v.Minor >= 18)
	case "contains_any":
		return v.Major > 1 || (v.Major == 1 && v.Minor >= 21)
	default:
		return true
	}
}

// Options configures a Client
type Options struct {
	APIKey    string
	ClassName string
	// UseCursor selects cursor pagination (Weaviate 1.18+) when listing objects
	UseCursor bool
	// SnippetLength bounds stored snippets, in words. ApplySettings overrides it.
	SnippetLength int
	Logger        *slog.Logger
}

// Client is an index.Index backed by a Weaviate class
type Client struct {
	client    *weaviate.Client
	url       string
	className string
	useCursor bool
	snippets  int
	logger    *slog.Logger
}

// parseURL splits a Weaviate URL into scheme and host
func parseURL(url string) (scheme, host string) {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "https", strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "http", strings.TrimPrefix(url, "http://")
	default:
		return "http", url
	}
}

// NewClient creates a new Weaviate index client
func NewClient(url string, opts Options) (*Client, error) {
	scheme, host := parseURL(url)
	cfg := weaviate.Config{
		Host:   strings.TrimRight(host, "/"),
		Scheme: scheme,
	}
	if opts.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: opts.APIKey}
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	className := opts.ClassName
	if className == "" {
		className = DefaultClassName
	}
	snippets := opts.SnippetLength
	if snippets <= 0 {
		snippets = models.DefaultSnippetLength
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		client:    client,
		url:       url,
		className: className,
		useCursor: opts.UseCursor,
		snippets:  snippets,
		logger:    logger,
	}, nil
}

// ClassName returns the class holding the records
func (c *Client) ClassName() string {
	return c.className
}

// Ping checks if Weaviate is reachable
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Weaviate: %w", err)
	}
	if !live {
		return fmt.Errorf("weaviate is not live")
	}
	return nil
}

// GetServerVersion fetches and parses the Weaviate server version
func (c *Client) GetServerVersion(ctx context.Context) (*ServerVersion, error) {
	meta, err := c.client.Misc().MetaGetter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get server metadata: %w", err)
	}
	return parseVersion(meta.Version)
}

// Close is a no-op; the underlying HTTP client holds no resources.
func (c *Client) Close() error {
	return nil
}

// errorMessages flattens per-object batch errors
func errorMessages(msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > 3 {
		msgs = append(msgs[:3], fmt.Sprintf("and %d more", len(msgs)-3))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
