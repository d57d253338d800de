package bleveindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(codename string, blocks ...string) *models.SearchableItem {
	item := &models.SearchableItem{
		ObjectID: codename,
		ID:       codename + "-id",
		Codename: codename,
		Name:     codename,
		Type:     "page",
		Parents:  []string{},
		Children: []string{},
		Content:  []models.ContentBlock{{Codename: codename, Name: codename, Parents: []string{}, Contents: "text of " + codename}},
	}
	for _, b := range blocks {
		item.Content = append(item.Content, models.ContentBlock{Codename: b, Name: b, Parents: []string{codename}, Contents: "block " + b})
	}
	return item
}

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndex_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	ids, err := ix.Upsert(ctx, []*models.SearchableItem{record("home"), record("about")})
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "about"}, ids)

	listed, err := ix.ListObjectIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"about", "home"}, listed)

	got, err := ix.Get("home")
	require.NoError(t, err)
	assert.Equal(t, record("home"), got)
}

func TestIndex_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	_, err := ix.Upsert(ctx, []*models.SearchableItem{record("home", "hero")})
	require.NoError(t, err)
	_, err = ix.Upsert(ctx, []*models.SearchableItem{record("home", "footer")})
	require.NoError(t, err)

	hits, err := ix.FindByBlockCodename(ctx, "hero")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.FindByBlockCodename(ctx, "footer")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "home", hits[0].ObjectID)
}

func TestIndex_FindByBlockCodename(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	_, err := ix.Upsert(ctx, []*models.SearchableItem{
		record("home", "shared-cta", "hero"),
		record("about", "shared-cta"),
		record("contact"),
	})
	require.NoError(t, err)

	hits, err := ix.FindByBlockCodename(ctx, "shared-cta")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "about", hits[0].ObjectID)
	assert.Equal(t, "home", hits[1].ObjectID)

	// the record's own codename is one of its blocks
	hits, err = ix.FindByBlockCodename(ctx, "contact")
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// keyword matching is exact
	hits, err = ix.FindByBlockCodename(ctx, "shared")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Delete(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	_, err := ix.Upsert(ctx, []*models.SearchableItem{record("home", "hero"), record("about")})
	require.NoError(t, err)

	deleted, err := ix.Delete(ctx, []string{"home", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "unknown"}, deleted)

	listed, err := ix.ListObjectIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"about"}, listed)

	got, err := ix.Get("home")
	require.NoError(t, err)
	assert.Nil(t, got)

	hits, err := ix.FindByBlockCodename(ctx, "hero")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_ListEmpty(t *testing.T) {
	ix := newMemIndex(t)
	ids, err := ix.ListObjectIDs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestIndex_ApplySettingsRebuilds(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	_, err := ix.Upsert(ctx, []*models.SearchableItem{record("home", "hero"), record("about")})
	require.NoError(t, err)

	settings := models.DefaultIndexSettings()
	settings.SearchableAttributes = []string{models.AttrBlockContents}
	require.NoError(t, ix.ApplySettings(ctx, settings))
	assert.Equal(t, settings, ix.Settings())

	listed, err := ix.ListObjectIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"about", "home"}, listed)

	hits, err := ix.FindByBlockCodename(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestIndex_ApplySettingsSameMapping(t *testing.T) {
	ctx := context.Background()
	ix := newMemIndex(t)

	settings := models.DefaultIndexSettings()
	settings.SnippetLength = 20
	require.NoError(t, ix.ApplySettings(ctx, settings))
	assert.Equal(t, 20, ix.Settings().SnippetLength)
}

func TestIndex_Persistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.bleve")

	ix, err := Open(path, nil)
	require.NoError(t, err)

	settings := models.DefaultIndexSettings()
	settings.SearchableAttributes = []string{models.AttrName}
	require.NoError(t, ix.ApplySettings(ctx, settings))
	_, err = ix.Upsert(ctx, []*models.SearchableItem{record("home", "hero")})
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	ix, err = Open(path, nil)
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, []string{models.AttrName}, ix.Settings().SearchableAttributes)
	hits, err := ix.FindByBlockCodename(ctx, "hero")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "home", hits[0].ObjectID)
}

func TestIndex_Closed(t *testing.T) {
	ix, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, ix.Close())
	require.NoError(t, ix.Close())

	_, err = ix.Upsert(context.Background(), []*models.SearchableItem{record("home")})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ix.ListObjectIDs(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
