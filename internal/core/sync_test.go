package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kilupskalvis/contentsync/internal/delivery"
	"github.com/kilupskalvis/contentsync/internal/index"
	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	mu   sync.Mutex
	runs []*models.SyncRun
}

func (j *memJournal) Record(run *models.SyncRun) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, run)
	return nil
}

type memNotifier struct {
	runs []*models.SyncRun
}

func (n *memNotifier) NotifyRun(run *models.SyncRun) {
	n.runs = append(n.runs, run)
}

// failingClient fails FetchItem for selected codenames.
type failingClient struct {
	delivery.ClientInterface
	fail map[string]bool
}

func (f *failingClient) FetchItem(ctx context.Context, codename string) (*models.DeliveryItemResponse, error) {
	if f.fail[codename] {
		return nil, &delivery.DeliveryError{Status: 503, Message: "unavailable"}
	}
	return f.ClientInterface.FetchItem(ctx, codename)
}

type syncFixture struct {
	cms      *delivery.MockClient
	idx      *index.MemoryIndex
	ledger   *memLedger
	journal  *memJournal
	notifier *memNotifier
	syncer   *Syncer
}

func newSyncFixture(items ...*models.ContentItem) *syncFixture {
	fx := &syncFixture{
		cms:      delivery.NewMockClient(items...),
		idx:      index.NewMemoryIndex(),
		ledger:   newMemLedger(),
		journal:  &memJournal{},
		notifier: &memNotifier{},
	}
	fx.syncer = &Syncer{
		Delivery:    fx.cms,
		Index:       fx.idx,
		Flattener:   NewFlattener(""),
		Concurrency: 2,
		Ledger:      fx.ledger,
		Journal:     fx.journal,
		Notifier:    fx.notifier,
	}
	return fx
}

// ==================== ProcessCodenames Tests ====================

func TestProcessCodenames_DeduplicatesLastWins(t *testing.T) {
	fx := newSyncFixture(page("a", "a", text("t", "A")), page("b", "b", text("t", "B")))

	result, err := fx.syncer.ProcessCodenames(context.Background(), models.RunWebhook, []string{"a", "b", "a"})
	require.NoError(t, err)

	require.Len(t, fx.idx.UpsertCalls, 1)
	assert.Equal(t, []string{"a", "b"}, fx.idx.UpsertCalls[0])
	assert.Equal(t, []string{"a", "b"}, result.ObjectIDs)
	assert.Empty(t, result.Deleted)
	assert.Equal(t, 2, fx.cms.Calls["a"])
}

func TestProcessCodenames_HomeWithEmbeddedIntro(t *testing.T) {
	fx := newSyncFixture(
		page("home", "/", richText("body", "<p>Home text</p>", "intro-block")),
		block("intro-block", text("headline", "Welcome")),
	)

	result, err := fx.syncer.ProcessCodenames(context.Background(), models.RunWebhook, []string{"home", "intro-block"})
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, result.ObjectIDs)

	home, ok := fx.idx.Get("home")
	require.True(t, ok)
	assert.Equal(t, "Home text", home.Content[0].Contents)
	assert.Equal(t, "Welcome", home.Content[1].Contents)
	_, ok = fx.idx.Get("intro-block")
	assert.False(t, ok)

	anchors, err := fx.ledger.AnchorsOf("intro-block")
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, anchors)
}

func TestProcessCodenames_NoChangesSkipsUpsert(t *testing.T) {
	fx := newSyncFixture()

	result, err := fx.syncer.ProcessCodenames(context.Background(), models.RunWebhook, []string{"ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{}, result.ObjectIDs)
	assert.Empty(t, fx.idx.UpsertCalls)
	assert.Empty(t, fx.notifier.runs)
	require.Len(t, fx.journal.runs, 1)
	assert.False(t, fx.journal.runs[0].Failed())
}

func TestProcessCodenames_EmptyBatch(t *testing.T) {
	fx := newSyncFixture()

	result, err := fx.syncer.ProcessCodenames(context.Background(), models.RunWebhook, nil)
	require.NoError(t, err)
	assert.Empty(t, result.ObjectIDs)
}

func TestProcessCodenames_FailureFailsWholeBatch(t *testing.T) {
	fx := newSyncFixture(page("a", "a"), page("b", "b"))
	fx.syncer.Delivery = &failingClient{ClientInterface: fx.cms, fail: map[string]bool{"b": true}}

	_, err := fx.syncer.ProcessCodenames(context.Background(), models.RunWebhook, []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile b")
	assert.Empty(t, fx.idx.UpsertCalls)
	assert.Empty(t, fx.notifier.runs)

	require.Len(t, fx.journal.runs, 1)
	run := fx.journal.runs[0]
	assert.True(t, run.Failed())
	assert.Equal(t, models.RunWebhook, run.Kind)
	assert.Equal(t, []string{"a", "b"}, run.Codenames)
}

func TestProcessCodenames_ReportsDeletions(t *testing.T) {
	fx := newSyncFixture(page("home", "/"), page("about", "about"))
	_, err := fx.syncer.FullReindex(context.Background(), ReindexOptions{})
	require.NoError(t, err)
	fx.cms.RemoveItem("about")

	result, err := fx.syncer.ProcessCodenames(context.Background(), models.RunWebhook, []string{"about", "home"})
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, result.ObjectIDs)
	assert.Equal(t, []string{"about"}, result.Deleted)

	require.Len(t, fx.notifier.runs, 2)
	last := fx.notifier.runs[1]
	assert.Equal(t, []string{"home"}, last.Upserted)
	assert.Equal(t, []string{"about"}, last.Deleted)
}

func TestProcessCodenames_ManyCodenamesConcurrently(t *testing.T) {
	var items []*models.ContentItem
	var codenames []string
	for i := 0; i < 20; i++ {
		c := fmt.Sprintf("page-%02d", i)
		items = append(items, page(c, c, text("t", c)))
		codenames = append(codenames, c)
	}
	fx := newSyncFixture(items...)
	fx.syncer.Concurrency = 0

	result, err := fx.syncer.ProcessCodenames(context.Background(), models.RunManual, codenames)
	require.NoError(t, err)
	assert.Equal(t, codenames, result.ObjectIDs)
	require.Len(t, fx.idx.UpsertCalls, 1)
	assert.Equal(t, models.RunManual, result.Run.Kind)
}

// ==================== mergeDeltas Tests ====================

func TestMergeDeltas(t *testing.T) {
	first := &models.SearchableItem{ObjectID: "a", Codename: "a", Name: "first"}
	second := &models.SearchableItem{ObjectID: "a", Codename: "a", Name: "second"}
	b := &models.SearchableItem{ObjectID: "b", Codename: "b"}

	upserts, deleted := mergeDeltas([]*Delta{
		{Upserts: []*models.SearchableItem{first}, Deleted: []string{"x"}},
		nil,
		{Upserts: []*models.SearchableItem{b}, Deleted: []string{"a", "x"}},
		{Upserts: []*models.SearchableItem{second}},
	})

	require.Len(t, upserts, 2)
	assert.Same(t, second, upserts[0])
	assert.Same(t, b, upserts[1])
	assert.Equal(t, []string{"x"}, deleted)
}
