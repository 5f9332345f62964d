package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccjk/ctxrd/internal/eventbus"
	"github.com/ccjk/ctxrd/internal/sessionstore"
	"github.com/ccjk/ctxrd/internal/syncqueue"
)

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, sessionstore.Store, *syncqueue.Queue) {
	t.Helper()
	store, err := sessionstore.New(&sessionstore.Config{BaseDir: t.TempDir()}, nil)
	require.NoError(t, err)
	queue, err := syncqueue.New(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()

	o, err := New(store, bus, queue, cfg)
	require.NoError(t, err)
	return o, store, queue
}

func sampleChunk() []byte {
	return []byte("<function_calls>\n" +
		"<invoke name=\"read_file\">\n" +
		"<parameter name=\"path\">main.go</parameter>\n" +
		"</invoke>\n" +
		"</function_calls>\n" +
		"<function_results>\n" +
		"<system>package main\n\nfunc main() {}\n</system>\n" +
		"</function_results>\n")
}

func TestStartSessionCreatesSessionAndLayeredMemory(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, DefaultConfig())
	sess, err := o.StartSession(context.Background(), "/repo", "hash1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Meta.ID)
	assert.NotNil(t, o.mem)
}

func TestIngestChunkRecordsFunctionCallIntoSessionAndMemory(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, DefaultConfig())
	_, err := o.StartSession(context.Background(), "/repo", "hash1", "")
	require.NoError(t, err)

	err = o.IngestChunk(context.Background(), sampleChunk())
	require.NoError(t, err)

	sess := o.Current()
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.Meta.FCCount)

	snapshot := o.mem.Session.Snapshot()
	require.Len(t, snapshot.RecentFCs, 1)
	assert.Equal(t, "read_file", snapshot.RecentFCs[0].FCName)
}

func TestDisabledOrchestratorIgnoresChunks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	o, _, _ := newTestOrchestrator(t, cfg)
	_, err := o.StartSession(context.Background(), "/repo", "hash1", "")
	require.NoError(t, err)

	err = o.IngestChunk(context.Background(), sampleChunk())
	require.NoError(t, err)

	sess := o.Current()
	assert.Equal(t, 0, sess.Meta.FCCount)
}

func TestThresholdCriticalTriggersCompressionAndSync(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextTokens = 10
	cfg.ContextThreshold = 5 // crosses critical on the very first FC

	o, store, queue := newTestOrchestrator(t, cfg)
	_, err := o.StartSession(context.Background(), "/repo", "hash1", "")
	require.NoError(t, err)

	err = o.IngestChunk(context.Background(), sampleChunk())
	require.NoError(t, err)

	sess := o.Current()
	require.NotNil(t, sess)

	summary, err := store.GetSummary(context.Background(), sess.Meta.ProjectHash, sess.Meta.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, summary)

	stats, err := queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestShutdownCompletesSessionAndFlushesResidualBuffer(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, DefaultConfig())
	sess, err := o.StartSession(context.Background(), "/repo", "hash1", "")
	require.NoError(t, err)

	require.NoError(t, o.Shutdown(context.Background()))

	got, err := store.GetSession(context.Background(), sess.Meta.ProjectHash, sess.Meta.ID)
	require.NoError(t, err)
	assert.Equal(t, sessionstore.StatusCompleted, got.Meta.Status)
}

func TestShutdownWithoutSessionIsNoOp(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, DefaultConfig())
	assert.NoError(t, o.Shutdown(context.Background()))
}

func TestStatusReportsUsageOfActiveSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextTokens = 1000
	o, _, _ := newTestOrchestrator(t, cfg)

	_, ok := o.Status()
	assert.False(t, ok, "no active session yet")

	_, err := o.StartSession(context.Background(), "/repo", "hash1", "")
	require.NoError(t, err)
	require.NoError(t, o.IngestChunk(context.Background(), sampleChunk()))

	st, ok := o.Status()
	require.True(t, ok)
	assert.Equal(t, "hash1", st.ProjectHash)
	assert.Equal(t, 1, st.FCCount)
	assert.Equal(t, 1000, st.MaxContextTokens)
	assert.GreaterOrEqual(t, st.UsagePercent, 0)
}
