package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 20, cfg.Delivery.Depth)
	assert.Equal(t, "slug", cfg.Content.SlugElement)
	assert.Equal(t, BackendWeaviate, cfg.Index.Backend)
	assert.Equal(t, "SearchableItem", cfg.Index.ClassName)
	assert.Equal(t, 80, cfg.Index.SnippetLength)
	assert.Equal(t, 4, cfg.Sync.Concurrency)
}

func TestInitializeAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(dir, "proj-123")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ConfigFile), cfg.Path())
	assert.DirExists(t, filepath.Join(dir, StateDir))

	loaded, err := Load(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "proj-123", loaded.Delivery.ProjectID)
	assert.Equal(t, filepath.Join(dir, StateDir, LedgerFile), loaded.LedgerPath())
	assert.Equal(t, filepath.Join(dir, StateDir, JournalFile), loaded.JournalPath())

	_, err = Initialize(dir, "again")
	assert.Error(t, err)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
[delivery]
project_id = "abc"
preview = true
preview_api_key = "key"

[index]
backend = "bleve"

[sync]
notify_urls = ["https://hooks.example.com/build"]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Delivery.ProjectID)
	assert.True(t, cfg.Delivery.Preview)
	assert.Equal(t, BackendBleve, cfg.Index.Backend)
	assert.Equal(t, 20, cfg.Delivery.Depth)
	assert.Equal(t, "SearchableItem", cfg.Index.ClassName)
	assert.Equal(t, []string{"https://hooks.example.com/build"}, cfg.Sync.NotifyURLs)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("[delivery\nproject_id ="), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"KONTENT_PROJECT_ID":              "legacy",
		"CONTENTSYNC_PREVIEW":             "true",
		"CONTENTSYNC_PREVIEW_API_KEY":     "new-key",
		"KONTENT_PREVIEW_API_KEY":         "old-key",
		"KONTENT_SLUG_ELEMENT_NAME":       "url",
		"CONTENTSYNC_CONCURRENCY":         "8",
		"CONTENTSYNC_NOTIFY_URLS":         "https://a.example.com, ,https://b.example.com",
		"CONTENTSYNC_REQUESTS_PER_SECOND": "2.5",
	}))
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.Delivery.ProjectID)
	assert.True(t, cfg.Delivery.Preview)
	assert.Equal(t, "new-key", cfg.Delivery.PreviewAPIKey)
	assert.Equal(t, "url", cfg.Content.SlugElement)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, 2.5, cfg.Delivery.RequestsPerSecond)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Sync.NotifyURLs)
}

func TestApplyEnv_Invalid(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"CONTENTSYNC_CONCURRENCY": "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTENTSYNC_CONCURRENCY")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")

	cfg.Delivery.ProjectID = "p"
	assert.NoError(t, cfg.Validate())

	cfg.Delivery.Preview = true
	assert.Error(t, cfg.Validate())
	cfg.Delivery.Preview = false

	cfg.Index.Backend = "algolia"
	assert.Error(t, cfg.Validate())
	cfg.Index.Backend = BackendMemory

	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestResolve(t *testing.T) {
	cfg := Default()
	cfg.path = filepath.Join("/srv", "site", ConfigFile)

	assert.Equal(t, filepath.Join("/srv", "site", "x.db"), cfg.Resolve("x.db"))
	assert.Equal(t, "/abs/x.db", cfg.Resolve("/abs/x.db"))
	assert.Equal(t, "", cfg.Resolve(""))
}

func TestSupportsCursorPagination(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"", true},
		{"1.17.4", false},
		{"1.18.0", true},
		{"1.33.6", true},
		{"2.0.0", true},
		{"garbage", true},
	}
	for _, tt := range tests {
		c := IndexConfig{ServerVersion: tt.version}
		assert.Equal(t, tt.want, c.SupportsCursorPagination(), tt.version)
	}
}
