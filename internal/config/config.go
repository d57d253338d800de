// Package config manages contentsync configuration.
// It handles loading, saving, and initializing the TOML configuration file
// and applies environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	ConfigFile  = "contentsync.toml"
	StateDir    = ".contentsync"
	LedgerFile  = "ledger.db"
	JournalFile = "journal.db"
	EnvPrefix   = "CONTENTSYNC_"
)

// Index backends
const (
	BackendWeaviate = "weaviate"
	BackendBleve    = "bleve"
	BackendMemory   = "memory"
)

// ErrNoConfig is returned when no configuration file can be found
var ErrNoConfig = errors.New("no " + ConfigFile + " found (or any parent up to root)")

// Config represents the contentsync configuration
type Config struct {
	Delivery DeliveryConfig `toml:"delivery"`
	Content  ContentConfig  `toml:"content"`
	Index    IndexConfig    `toml:"index"`
	Server   ServerConfig   `toml:"server"`
	Sync     SyncConfig     `toml:"sync"`
	State    StateConfig    `toml:"state"`
	Log      LogConfig      `toml:"log"`

	path string // path to the loaded file
}

// DeliveryConfig configures the Delivery API client
type DeliveryConfig struct {
	ProjectID         string  `toml:"project_id"`
	PreviewAPIKey     string  `toml:"preview_api_key,omitempty"`
	Preview           bool    `toml:"preview"`
	BaseURL           string  `toml:"base_url,omitempty"`
	PreviewBaseURL    string  `toml:"preview_base_url,omitempty"`
	Depth             int     `toml:"depth"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxRetries        int     `toml:"max_retries"`
}

// ContentConfig configures how content items are flattened
type ContentConfig struct {
	SlugElement string `toml:"slug_element"`
}

// IndexConfig selects and configures the search index backend
type IndexConfig struct {
	Backend        string `toml:"backend"`
	WeaviateURL    string `toml:"weaviate_url,omitempty"`
	WeaviateAPIKey string `toml:"weaviate_api_key,omitempty"`
	ClassName      string `toml:"class_name"`
	ServerVersion  string `toml:"server_version,omitempty"` // Detected Weaviate server version
	BlevePath      string `toml:"bleve_path,omitempty"`
	SnippetLength  int    `toml:"snippet_length"`
}

// ServerConfig configures the HTTP entrypoints
type ServerConfig struct {
	Listen            string `toml:"listen"`
	ReindexSecret     string `toml:"reindex_secret,omitempty"`
	WebhookSecret     string `toml:"webhook_secret,omitempty"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MaxRequestBody    int64  `toml:"max_request_body"`
}

// SyncConfig configures webhook batch processing
type SyncConfig struct {
	Concurrency int      `toml:"concurrency"`
	NotifyURLs  []string `toml:"notify_urls,omitempty"`
}

// StateConfig locates local state files. Relative paths are resolved
// against the directory of the config file.
type StateConfig struct {
	LedgerPath  string `toml:"ledger_path"`
	JournalPath string `toml:"journal_path"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a configuration with every default filled in
func Default() *Config {
	return &Config{
		Delivery: DeliveryConfig{
			Depth:             20,
			RequestsPerSecond: 10,
			MaxRetries:        3,
		},
		Content: ContentConfig{SlugElement: "slug"},
		Index: IndexConfig{
			Backend:       BackendWeaviate,
			WeaviateURL:   "localhost:8080",
			ClassName:     "SearchableItem",
			BlevePath:     filepath.Join(StateDir, "index.bleve"),
			SnippetLength: 80,
		},
		Server: ServerConfig{
			Listen:            ":8720",
			RequestsPerMinute: 120,
			MaxRequestBody:    1 << 20,
		},
		Sync: SyncConfig{Concurrency: 4},
		State: StateConfig{
			LedgerPath:  filepath.Join(StateDir, LedgerFile),
			JournalPath: filepath.Join(StateDir, JournalFile),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// FindConfig finds the configuration file by walking up from the current directory
func FindConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, ConfigFile)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoConfig
		}
		dir = parent
	}
}

// Load loads the configuration from path, or from the nearest
// contentsync.toml when path is empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := FindConfig()
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = path
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults plus
// environment overrides when no file exists. Used by the server binary,
// which is usually configured through the environment alone.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNoConfig) {
		cfg = Default()
		if wd, err := os.Getwd(); err == nil {
			cfg.path = filepath.Join(wd, ConfigFile)
		}
		return cfg, cfg.ApplyEnv(os.LookupEnv)
	}
	return cfg, err
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(c.path, data, 0600)
}

// Path returns the path of the configuration file
func (c *Config) Path() string {
	return c.path
}

// Dir returns the directory holding the configuration file
func (c *Config) Dir() string {
	if c.path == "" {
		return "."
	}
	return filepath.Dir(c.path)
}

// Resolve returns p relative to the config directory unless it is absolute
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// LedgerPath returns the resolved path to the bbolt ledger
func (c *Config) LedgerPath() string {
	return c.Resolve(c.State.LedgerPath)
}

// JournalPath returns the resolved path to the sqlite journal
func (c *Config) JournalPath() string {
	return c.Resolve(c.State.JournalPath)
}

// BlevePath returns the resolved path to the bleve index
func (c *Config) BlevePath() string {
	return c.Resolve(c.Index.BlevePath)
}

// Initialize writes a starter configuration file into dir
func Initialize(dir, projectID string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)

	// Check if already initialized
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}

	if err := os.MkdirAll(filepath.Join(dir, StateDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", StateDir, err)
	}

	cfg := Default()
	cfg.Delivery.ProjectID = projectID
	cfg.path = path

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or unsupported values
func (c *Config) Validate() error {
	var problems []string
	if c.Delivery.ProjectID == "" {
		problems = append(problems, "delivery.project_id is required")
	}
	if c.Delivery.Preview && c.Delivery.PreviewAPIKey == "" {
		problems = append(problems, "delivery.preview_api_key is required in preview mode")
	}
	switch c.Index.Backend {
	case BackendWeaviate:
		if c.Index.WeaviateURL == "" {
			problems = append(problems, "index.weaviate_url is required for the weaviate backend")
		}
	case BackendBleve, BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("index.backend %q is not one of weaviate, bleve, memory", c.Index.Backend))
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SupportsCursorPagination returns true if the Weaviate server version supports cursor pagination
func (c *IndexConfig) SupportsCursorPagination() bool {
	if c.ServerVersion == "" {
		// Default to cursor pagination if version unknown
		return true
	}

	var major, minor int
	_, err := fmt.Sscanf(c.ServerVersion, "%d.%d", &major, &minor)
	if err != nil {
		return true
	}

	// Cursor pagination (WithAfter) requires Weaviate 1.18+
	return major > 1 || (major == 1 && minor >= 18)
}

type envBinding struct {
	names []string
	set   func(string) error
}

// ApplyEnv overrides configuration values from the environment. lookup is
// usually os.LookupEnv. The KONTENT_* names are accepted as aliases.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	float := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = f
			return nil
		}
	}
	list := func(dst *[]string) func(string) error {
		return func(v string) error {
			*dst = nil
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					*dst = append(*dst, part)
				}
			}
			return nil
		}
	}

	bindings := []envBinding{
		{[]string{EnvPrefix + "PROJECT_ID", "KONTENT_PROJECT_ID"}, str(&c.Delivery.ProjectID)},
		{[]string{EnvPrefix + "PREVIEW_API_KEY", "KONTENT_PREVIEW_API_KEY"}, str(&c.Delivery.PreviewAPIKey)},
		{[]string{EnvPrefix + "PREVIEW"}, boolean(&c.Delivery.Preview)},
		{[]string{EnvPrefix + "DELIVERY_BASE_URL"}, str(&c.Delivery.BaseURL)},
		{[]string{EnvPrefix + "DELIVERY_DEPTH"}, integer(&c.Delivery.Depth)},
		{[]string{EnvPrefix + "REQUESTS_PER_SECOND"}, float(&c.Delivery.RequestsPerSecond)},
		{[]string{EnvPrefix + "SLUG_ELEMENT", "KONTENT_SLUG_ELEMENT_NAME"}, str(&c.Content.SlugElement)},
		{[]string{EnvPrefix + "INDEX_BACKEND"}, str(&c.Index.Backend)},
		{[]string{EnvPrefix + "WEAVIATE_URL"}, str(&c.Index.WeaviateURL)},
		{[]string{EnvPrefix + "WEAVIATE_API_KEY"}, str(&c.Index.WeaviateAPIKey)},
		{[]string{EnvPrefix + "CLASS_NAME"}, str(&c.Index.ClassName)},
		{[]string{EnvPrefix + "BLEVE_PATH"}, str(&c.Index.BlevePath)},
		{[]string{EnvPrefix + "LISTEN"}, str(&c.Server.Listen)},
		{[]string{EnvPrefix + "REINDEX_SECRET"}, str(&c.Server.ReindexSecret)},
		{[]string{EnvPrefix + "WEBHOOK_SECRET"}, str(&c.Server.WebhookSecret)},
		{[]string{EnvPrefix + "CONCURRENCY"}, integer(&c.Sync.Concurrency)},
		{[]string{EnvPrefix + "NOTIFY_URLS"}, list(&c.Sync.NotifyURLs)},
		{[]string{EnvPrefix + "LEDGER_PATH"}, str(&c.State.LedgerPath)},
		{[]string{EnvPrefix + "JOURNAL_PATH"}, str(&c.State.JournalPath)},
		{[]string{EnvPrefix + "LOG_LEVEL"}, str(&c.Log.Level)},
		{[]string{EnvPrefix + "LOG_FORMAT"}, str(&c.Log.Format)},
	}

	for _, b := range bindings {
		for _, name := range b.names {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := b.set(v); err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			break
		}
	}
	return nil
}
