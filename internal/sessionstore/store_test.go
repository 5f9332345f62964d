package sessionstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := New(&Config{BaseDir: t.TempDir()}, nil)
	require.NoError(t, err)
	return s
}

func TestCreateSessionPersistsMetaAndCurrentPointer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "/repo/project", "abc123", "working on feature X")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Meta.Status)
	assert.Equal(t, 1, sess.Meta.Version)

	current, err := s.GetCurrentSession(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, sess.Meta.ID, current)
}

func TestCreateSessionRequiresPathAndHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, "", "abc", "")
	assert.ErrorIs(t, err, ErrEmptyProjectPath)

	_, err = s.CreateSession(ctx, "/repo", "", "")
	assert.ErrorIs(t, err, ErrEmptyProjectHash)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "abc123", "nonexistent")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteThenArchiveTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)

	require.NoError(t, s.CompleteSession(ctx, "hash1", sess.Meta.ID))
	got, err := s.GetSession(ctx, "hash1", sess.Meta.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Meta.Status)
	require.NotNil(t, got.Meta.EndTime)

	require.NoError(t, s.ArchiveSession(ctx, "hash1", sess.Meta.ID))
	got, err = s.GetSession(ctx, "hash1", sess.Meta.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, got.Meta.Status)
}

func TestInvalidTransitionRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)

	// active cannot go straight to archived
	err = s.ArchiveSession(ctx, "hash1", sess.Meta.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAppendFCLogUpdatesCountersAndTruncates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)

	longResult := make([]byte, maxResultLen+500)
	for i := range longResult {
		longResult[i] = 'x'
	}

	entry := FCLogEntry{
		Timestamp: time.Now(),
		ID:        "fc-1",
		FC:        "read_file",
		Args:      map[string]string{"path": "main.go"},
		Result:    string(longResult),
		Tokens:    42,
		Status:    FCStatusSuccess,
	}
	require.NoError(t, s.AppendFCLog(ctx, "hash1", sess.Meta.ID, entry))

	got, err := s.GetSession(ctx, "hash1", sess.Meta.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Meta.FCCount)
	assert.Equal(t, 42, got.Meta.TokenCount)

	var entries []FCLogEntry
	seq, err := s.GetFCLogs(ctx, "hash1", sess.Meta.ID, FCLogFilter{})
	require.NoError(t, err)
	for e := range seq {
		entries = append(entries, e)
	}
	require.Len(t, entries, 1)
	assert.Less(t, len(entries[0].Result), len(string(longResult)))
	assert.Contains(t, entries[0].Result, "truncated")
}

func TestGetFCLogsFiltersByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)

	require.NoError(t, s.AppendFCLog(ctx, "hash1", sess.Meta.ID, FCLogEntry{ID: "1", FC: "read_file", Status: FCStatusSuccess, Timestamp: time.Now()}))
	require.NoError(t, s.AppendFCLog(ctx, "hash1", sess.Meta.ID, FCLogEntry{ID: "2", FC: "write_file", Status: FCStatusSuccess, Timestamp: time.Now()}))

	var names []string
	seq, err := s.GetFCLogs(ctx, "hash1", sess.Meta.ID, FCLogFilter{FCName: "write_file"})
	require.NoError(t, err)
	for e := range seq {
		names = append(names, e.FC)
	}
	assert.Equal(t, []string{"write_file"}, names)
}

func TestGetFCLogsSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)
	require.NoError(t, s.AppendFCLog(ctx, "hash1", sess.Meta.ID, FCLogEntry{ID: "1", FC: "ok_entry", Status: FCStatusSuccess, Timestamp: time.Now()}))

	// append a malformed line directly
	f, err := os.OpenFile(sess.FCLogPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var count int
	seq, err := s.GetFCLogs(ctx, "hash1", sess.Meta.ID, FCLogFilter{})
	require.NoError(t, err)
	for range seq {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestSaveAndGetSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)

	require.NoError(t, s.SaveSummary(ctx, "hash1", sess.Meta.ID, "a concise summary"))
	got, err := s.GetSummary(ctx, "hash1", sess.Meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "a concise summary", got)
}

func TestListSessionsFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	active, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)
	done, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession(ctx, "hash1", done.Meta.ID))

	metas, err := s.ListSessions(ctx, ListFilter{ProjectHash: "hash1", Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, active.Meta.ID, metas[0].ID)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, "hash1", sess.Meta.ID))
	_, err = s.GetSession(ctx, "hash1", sess.Meta.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCleanOldSessionsSkipsActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	activeSess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)
	doneSess, err := s.CreateSession(ctx, "/repo", "hash1", "")
	require.NoError(t, err)
	require.NoError(t, s.CompleteSession(ctx, "hash1", doneSess.Meta.ID))

	result, err := s.CleanOldSessions(ctx, -time.Hour) // everything already "older" than now+1h
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, []string{doneSess.Meta.ID}, result.IDs)

	_, err = s.GetSession(ctx, "hash1", activeSess.Meta.ID)
	assert.NoError(t, err)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.CreateSession(ctx, "/repo", "hash1", "")
	assert.ErrorIs(t, err, ErrStoreClosed)
}
