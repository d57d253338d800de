package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/kilupskalvis/contentsync/internal/delivery"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger is an in-memory AnchorLedger keyed by anchor object ID.
type memLedger struct {
	mu       sync.Mutex
	children map[string][]string
}

func newMemLedger() *memLedger {
	return &memLedger{children: make(map[string][]string)}
}

func (l *memLedger) Record(items []*models.SearchableItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range items {
		l.children[item.ObjectID] = item.Children
	}
	return nil
}

func (l *memLedger) Forget(objectIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range objectIDs {
		delete(l.children, id)
	}
	return nil
}

func (l *memLedger) Replace(items []*models.SearchableItem) error {
	l.mu.Lock()
	l.children = make(map[string][]string)
	l.mu.Unlock()
	return l.Record(items)
}

func (l *memLedger) AnchorsOf(codename string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var anchors []string
	for anchor, children := range l.children {
		if anchor != codename && contains(children, codename) {
			anchors = append(anchors, anchor)
		}
	}
	sort.Strings(anchors)
	return anchors, nil
}

type reconcileFixture struct {
	cms    *delivery.MockClient
	idx    *index.MemoryIndex
	ledger *memLedger
	rec    *Reconciler
}

func newReconcileFixture(t *testing.T, items ...*models.ContentItem) *reconcileFixture {
	t.Helper()
	fx := &reconcileFixture{
		cms:    delivery.NewMockClient(items...),
		idx:    index.NewMemoryIndex(),
		ledger: newMemLedger(),
	}
	fx.rec = &Reconciler{
		Delivery:  fx.cms,
		Index:     fx.idx,
		Flattener: NewFlattener(""),
		Ledger:    fx.ledger,
	}
	return fx
}

// seed builds every addressable item and writes it to the index and ledger.
func (fx *reconcileFixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	items, err := fx.cms.FetchAll(ctx)
	require.NoError(t, err)

	s := &Syncer{Flattener: fx.rec.Flattener}
	structure := s.BuildAll(items)
	_, err = fx.idx.Upsert(ctx, structure)
	require.NoError(t, err)
	require.NoError(t, fx.ledger.Replace(structure))
	fx.idx.UpsertCalls = nil
}

// ==================== Reconcile Tests ====================

func TestReconcile_NoHitsNotInCMS(t *testing.T) {
	fx := newReconcileFixture(t)

	delta, err := fx.rec.Reconcile(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, delta.Upserts)
	assert.Empty(t, delta.Deleted)
	assert.Empty(t, fx.idx.DeleteCalls)
	assert.Empty(t, fx.idx.UpsertCalls)
}

func TestReconcile_NewAddressableItem(t *testing.T) {
	fx := newReconcileFixture(t,
		page("home", "/", richText("body", "<p>Home body</p>", "intro-block")),
		block("intro-block", text("headline", "Welcome")),
	)

	delta, err := fx.rec.Reconcile(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, delta.Upserts, 1)
	assert.Empty(t, delta.Deleted)

	home := delta.Upserts[0]
	assert.Equal(t, "home", home.ObjectID)
	assert.Equal(t, []string{"home", "intro-block"}, blockCodenames(home.Content))
	assert.Equal(t, "Welcome", home.Content[1].Contents)
	assert.Equal(t, []string{"intro-block"}, home.Children)
	// reconcile never writes upserts itself
	assert.Equal(t, 0, fx.idx.Len())
}

func TestReconcile_NewEmbeddedItemWithoutAnchor(t *testing.T) {
	fx := newReconcileFixture(t, block("intro-block", text("headline", "Welcome")))

	delta, err := fx.rec.Reconcile(context.Background(), "intro-block")
	require.NoError(t, err)
	assert.Empty(t, delta.Upserts)
	assert.Empty(t, delta.Deleted)
}

func TestReconcile_EmbeddedItemWithoutLedger(t *testing.T) {
	fx := newReconcileFixture(t, block("intro-block", text("headline", "Welcome")))
	fx.rec.Ledger = nil

	delta, err := fx.rec.Reconcile(context.Background(), "intro-block")
	require.NoError(t, err)
	assert.Empty(t, delta.Upserts)
}

func TestReconcile_DeletedItemRemovesHits(t *testing.T) {
	fx := newReconcileFixture(t,
		page("home", "/", modular("sections", "intro-block")),
		page("about", "about", modular("sections", "intro-block")),
		block("intro-block", text("headline", "Welcome")),
		page("blog", "blog"),
	)
	fx.seed(t)
	fx.cms.RemoveItem("intro-block")

	delta, err := fx.rec.Reconcile(context.Background(), "intro-block")
	require.NoError(t, err)
	assert.Empty(t, delta.Upserts)
	assert.Equal(t, []string{"about", "home"}, delta.Deleted)

	ids, err := fx.idx.ListObjectIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"blog"}, ids)

	anchors, err := fx.ledger.AnchorsOf("intro-block")
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestReconcile_DeletedAddressableItem(t *testing.T) {
	fx := newReconcileFixture(t, page("home", "/"), page("about", "about"))
	fx.seed(t)
	fx.cms.RemoveItem("about")

	delta, err := fx.rec.Reconcile(context.Background(), "about")
	require.NoError(t, err)
	assert.Empty(t, delta.Upserts)
	assert.Equal(t, []string{"about"}, delta.Deleted)
	assert.Equal(t, 1, fx.idx.Len())
}

func TestReconcile_ChangedEmbeddedItemRebuildsAnchors(t *testing.T) {
	fx := newReconcileFixture(t,
		page("home", "/", richText("body", "<p>Home</p>", "intro-block")),
		block("intro-block", text("headline", "Welcome")),
	)
	fx.seed(t)
	fx.cms.AddItem(block("intro-block", text("headline", "Hello again")))

	delta, err := fx.rec.Reconcile(context.Background(), "intro-block")
	require.NoError(t, err)
	require.Len(t, delta.Upserts, 1)
	assert.Equal(t, "home", delta.Upserts[0].ObjectID)
	assert.Equal(t, "Hello again", delta.Upserts[0].Content[1].Contents)
	assert.Empty(t, delta.Deleted)
}

func TestReconcile_ChangedAddressableItemRebuilt(t *testing.T) {
	fx := newReconcileFixture(t, page("home", "/", text("title", "Old")))
	fx.seed(t)
	fx.cms.AddItem(page("home", "/", text("title", "New")))

	delta, err := fx.rec.Reconcile(context.Background(), "home")
	require.NoError(t, err)
	require.Len(t, delta.Upserts, 1)
	assert.Equal(t, "New", delta.Upserts[0].Content[0].Contents)
	// the item itself is fetched once and reused for the rebuild
	assert.Equal(t, 1, fx.cms.Calls["home"])
}

func TestReconcile_NewlyEmbeddedChangeFoundThroughLedger(t *testing.T) {
	// intro-block was added to home after home was indexed without any
	// block for it, so only the ledger knows the relationship.
	fx := newReconcileFixture(t,
		page("home", "/", richText("body", "<p>Home</p>", "intro-block")),
		block("intro-block", text("headline", "Welcome")),
	)
	require.NoError(t, fx.ledger.Record([]*models.SearchableItem{{ObjectID: "home", Codename: "home", Children: []string{"intro-block"}}}))

	delta, err := fx.rec.Reconcile(context.Background(), "intro-block")
	require.NoError(t, err)
	require.Len(t, delta.Upserts, 1)
	assert.Equal(t, "home", delta.Upserts[0].ObjectID)
}

func TestReconcile_AnchorGoneIsDeleted(t *testing.T) {
	fx := newReconcileFixture(t,
		page("home", "/", modular("sections", "intro-block")),
		page("about", "about", modular("sections", "intro-block")),
		block("intro-block", text("headline", "Welcome")),
	)
	fx.seed(t)
	fx.cms.RemoveItem("about")

	delta, err := fx.rec.Reconcile(context.Background(), "intro-block")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, models.ObjectIDs(delta.Upserts))
	assert.Equal(t, []string{"about"}, delta.Deleted)
}

func TestReconcile_AnchorNoLongerAddressableIsDeleted(t *testing.T) {
	fx := newReconcileFixture(t, page("landing", "landing", text("t", "Landing")))
	fx.seed(t)
	fx.cms.AddItem(block("landing", text("t", "Landing")))

	delta, err := fx.rec.Reconcile(context.Background(), "landing")
	require.NoError(t, err)
	assert.Empty(t, delta.Upserts)
	assert.Equal(t, []string{"landing"}, delta.Deleted)
}

func TestReconcile_ParentsFromLedger(t *testing.T) {
	fx := newReconcileFixture(t,
		page("home", "/", modular("featured", "about")),
		page("about", "about", text("t", "About")),
	)
	fx.seed(t)

	delta, err := fx.rec.Reconcile(context.Background(), "about")
	require.NoError(t, err)
	require.Len(t, delta.Upserts, 1)
	assert.Equal(t, []string{"home"}, delta.Upserts[0].Parents)
}

func TestReconcile_DeliveryErrorPropagates(t *testing.T) {
	fx := newReconcileFixture(t, page("home", "/"))
	fx.cms.Err = &delivery.DeliveryError{Status: 500, Message: "boom"}

	_, err := fx.rec.Reconcile(context.Background(), "home")
	require.Error(t, err)
	var de *delivery.DeliveryError
	assert.True(t, errors.As(err, &de))
}

func TestReconcile_IndexErrorPropagates(t *testing.T) {
	fx := newReconcileFixture(t, page("home", "/"))
	fx.idx.Err = errors.New("index down")

	_, err := fx.rec.Reconcile(context.Background(), "home")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index down")
}
