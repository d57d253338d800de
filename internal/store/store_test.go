package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a new bbolt store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

func item(codename string, children []string, blocks ...string) *models.SearchableItem {
	it := &models.SearchableItem{ObjectID: codename, Codename: codename, Children: children}
	it.Content = append(it.Content, models.ContentBlock{Codename: codename})
	for _, b := range blocks {
		it.Content = append(it.Content, models.ContentBlock{Codename: b})
	}
	return it
}

// ==================== Store Tests ====================

func TestStore_Initialize(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Initialize())
	// idempotent
	require.NoError(t, st.Initialize())

	anchors, err := st.Anchors()
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestStore_GetSetValue(t *testing.T) {
	st := newTestStore(t)

	v, err := st.GetValue("missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, st.SetValue("k", "v"))
	v, err = st.GetValue("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	require.NoError(t, st.Record([]*models.SearchableItem{item("home", []string{"intro"})}))
	require.NoError(t, st.Close())

	st, err = New(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Initialize())

	anchors, err := st.AnchorsOf("intro")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, anchors)
}

// ==================== Anchor Tests ====================

func TestStore_RecordAndAnchorsOf(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Record([]*models.SearchableItem{
		item("home", []string{"about", "intro"}, "intro"),
		item("about", []string{"intro", "about"}),
		item("blog", nil, "teaser"),
	}))

	anchors, err := st.AnchorsOf("intro")
	require.NoError(t, err)
	assert.Equal(t, []string{"about", "home"}, anchors)

	anchors, err = st.AnchorsOf("teaser")
	require.NoError(t, err)
	assert.Equal(t, []string{"blog"}, anchors)

	// self links are not recorded
	anchors, err = st.AnchorsOf("about")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, anchors)

	anchors, err = st.AnchorsOf("nothing")
	require.NoError(t, err)
	assert.Equal(t, []string{}, anchors)
}

func TestStore_AnchorsOf_PrefixIsolation(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Record([]*models.SearchableItem{
		item("home", []string{"intro-block"}),
		item("about", []string{"intro"}),
	}))

	anchors, err := st.AnchorsOf("intro")
	require.NoError(t, err)
	assert.Equal(t, []string{"about"}, anchors)
}

func TestStore_RecordReplacesEntry(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Record([]*models.SearchableItem{item("home", []string{"old"})}))
	require.NoError(t, st.Record([]*models.SearchableItem{item("home", []string{"new"})}))

	anchors, err := st.AnchorsOf("old")
	require.NoError(t, err)
	assert.Empty(t, anchors)

	anchors, err = st.AnchorsOf("new")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, anchors)

	a, err := st.GetAnchor("home")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, []string{"new"}, a.Children)
	assert.Equal(t, []string{"home"}, a.Blocks)
}

func TestStore_Forget(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Record([]*models.SearchableItem{
		item("home", []string{"intro"}),
		item("about", []string{"intro"}),
	}))
	require.NoError(t, st.Forget([]string{"home", "unknown"}))

	anchors, err := st.AnchorsOf("intro")
	require.NoError(t, err)
	assert.Equal(t, []string{"about"}, anchors)

	a, err := st.GetAnchor("home")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestStore_Replace(t *testing.T) {
	st := newTestStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	require.NoError(t, st.Record([]*models.SearchableItem{item("stale", []string{"intro"})}))
	require.NoError(t, st.Replace([]*models.SearchableItem{item("home", []string{"intro"})}))

	anchors, err := st.AnchorsOf("intro")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, anchors)

	all, err := st.Anchors()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "home", all[0].ObjectID)
	assert.True(t, fixed.Equal(all[0].UpdatedAt))

	last, err := st.LastReindex()
	require.NoError(t, err)
	assert.True(t, fixed.Equal(last))
}

func TestStore_LastReindex_Never(t *testing.T) {
	st := newTestStore(t)
	last, err := st.LastReindex()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}
