package syncqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAssignsIDAndPendingStatus(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	item, err := q.Enqueue(Item{Type: ItemTypeSummary, SessionID: "s1", Data: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 0, item.Retries)
}

func TestEnqueueRequiresSessionID(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = q.Enqueue(Item{Type: ItemTypeSummary})
	assert.ErrorIs(t, err, ErrEmptySession)
}

func TestDequeueReturnsOldestPendingWithoutMutating(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	restore := freezeNow(t)
	defer restore()

	first, err := q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)
	advanceNow(time.Second)
	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s2"})
	require.NoError(t, err)

	got, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status) // unmutated
}

func TestMarkSyncingSyncedRoundTrip(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)
	item, err := q.Enqueue(Item{Type: ItemTypeFCLog, SessionID: "s1"})
	require.NoError(t, err)

	_, err = q.MarkSyncing(item.ID)
	require.NoError(t, err)
	got, err := q.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSyncing, got.Status)

	_, err = q.MarkSynced(item.ID)
	require.NoError(t, err)
	got, err = q.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, got.Status)
}

func TestMarkFailedSetsNextRetryAndIncrementsRetries(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)
	item, err := q.Enqueue(Item{Type: ItemTypeFCLog, SessionID: "s1"})
	require.NoError(t, err)

	_, err = q.MarkFailed(item.ID, assert.AnError, 2*time.Second)
	require.NoError(t, err)

	got, err := q.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.Equal(t, assert.AnError.Error(), got.LastError)
	require.NotNil(t, got.NextRetry)
}

func TestGetRetryableItemsOnlyReturnsElapsedFailures(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	restore := freezeNow(t)
	defer restore()

	past, err := q.Enqueue(Item{Type: ItemTypeFCLog, SessionID: "s1"})
	require.NoError(t, err)
	future, err := q.Enqueue(Item{Type: ItemTypeFCLog, SessionID: "s2"})
	require.NoError(t, err)

	_, err = q.MarkFailed(past.ID, assert.AnError, -time.Second) // already elapsed
	require.NoError(t, err)
	_, err = q.MarkFailed(future.ID, assert.AnError, time.Hour) // not yet
	require.NoError(t, err)

	retryable, err := q.GetRetryableItems()
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, past.ID, retryable[0].ID)
}

func TestListItemsFiltersBySessionTypeAndStatus(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)
	_, err = q.Enqueue(Item{Type: ItemTypeSummary, SessionID: "s1"})
	require.NoError(t, err)
	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s2"})
	require.NoError(t, err)

	items, err := q.ListItems(Filter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = q.ListItems(Filter{Type: ItemTypeSession})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCleanupSyncedRemovesOldSyncedOnly(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	restore := freezeNow(t)
	defer restore()

	old, err := q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)
	_, err = q.MarkSynced(old.ID)
	require.NoError(t, err)

	advanceNow(2 * time.Hour)
	recent, err := q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s2"})
	require.NoError(t, err)
	_, err = q.MarkSynced(recent.ID)
	require.NoError(t, err)

	removed, err := q.CleanupSynced(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = q.GetItem(old.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = q.GetItem(recent.ID)
	assert.NoError(t, err)
}

func TestGetStatsCountsByStatus(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)

	a, err := q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)
	b, err := q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)
	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)

	_, err = q.MarkSynced(a.ID)
	require.NoError(t, err)
	_, err = q.MarkFailed(b.ID, assert.AnError, time.Second)
	require.NoError(t, err)

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
}

func TestClearQueueRemovesAllItems(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)
	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	require.NoError(t, err)

	require.NoError(t, q.ClearQueue())
	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestClosedQueueRejectsOperations(t *testing.T) {
	q, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = q.Enqueue(Item{Type: ItemTypeSession, SessionID: "s1"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

// freezeNow and advanceNow let tests control queue timestamps deterministically.
func freezeNow(t *testing.T) func() {
	t.Helper()
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return frozen }
	return func() { now = orig }
}

func advanceNow(d time.Duration) {
	current := now()
	next := current.Add(d)
	now = func() time.Time { return next }
}
