package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/contentsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, j.Initialize())
	t.Cleanup(func() { j.Close() })
	return j
}

func testRun(id string, kind models.RunKind, started time.Time) *models.SyncRun {
	return &models.SyncRun{
		ID:         id,
		Kind:       kind,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Codenames:  []string{"home", "intro"},
		Upserted:   []string{"home"},
		Deleted:    []string{"about"},
	}
}

// ==================== Journal Tests ====================

func TestJournal_RecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(testRun("aaaa1111", models.RunReindex, base)))
	require.NoError(t, j.Record(testRun("bbbb2222", models.RunWebhook, base.Add(time.Minute))))
	require.NoError(t, j.Record(testRun("cccc3333", models.RunManual, base.Add(2*time.Minute))))

	runs, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "cccc3333", runs[0].ID)
	assert.Equal(t, "bbbb2222", runs[1].ID)

	run := runs[1]
	assert.Equal(t, models.RunWebhook, run.Kind)
	assert.True(t, base.Add(time.Minute).Equal(run.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, run.Duration())
	assert.Equal(t, []string{"home", "intro"}, run.Codenames)
	assert.Equal(t, []string{"home"}, run.Upserted)
	assert.Equal(t, []string{"about"}, run.Deleted)
	assert.False(t, run.Failed())

	all, err := j.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJournal_RecordFailure(t *testing.T) {
	j := newTestJournal(t)
	run := testRun("dddd4444", models.RunWebhook, time.Now().UTC())
	run.Upserted = nil
	run.Deleted = nil
	run.Codenames = nil
	run.Error = "reconcile home: upstream down"

	require.NoError(t, j.Record(run))

	got, err := j.GetByShortID("dddd")
	require.NoError(t, err)
	assert.True(t, got.Failed())
	assert.Equal(t, "reconcile home: upstream down", got.Error)
	assert.Equal(t, []string{}, got.Upserted)
	assert.Equal(t, []string{}, got.Codenames)
}

func TestJournal_GetByShortID_NotFound(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.GetByShortID("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestJournal_RecordSameIDReplaces(t *testing.T) {
	j := newTestJournal(t)
	run := testRun("eeee5555", models.RunReindex, time.Now().UTC())
	require.NoError(t, j.Record(run))

	run.Upserted = []string{"home", "blog"}
	require.NoError(t, j.Record(run))

	runs, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"home", "blog"}, runs[0].Upserted)
}

func TestJournal_InitializeIdempotent(t *testing.T) {
	j := newTestJournal(t)
	require.NoError(t, j.Initialize())
}

func TestParseTimestamp(t *testing.T) {
	assert.False(t, parseTimestamp("2026-05-01T10:00:00Z").IsZero())
	assert.False(t, parseTimestamp("2026-05-01 10:00:00").IsZero())
	assert.True(t, parseTimestamp("garbage").IsZero())
}
