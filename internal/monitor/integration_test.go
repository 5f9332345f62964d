//go:build integration
// +build integration

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccjk/ctxrd/internal/eventbus"
	"github.com/ccjk/ctxrd/internal/httpapi"
	"github.com/ccjk/ctxrd/internal/orchestrator"
	"github.com/ccjk/ctxrd/internal/sessionstore"
	"github.com/ccjk/ctxrd/internal/syncqueue"
)

// TestStatusClient_Integration exercises the dashboard's HTTP client against
// a real httpapi.Server instance rather than a mock.
// Run with: go test -tags=integration ./internal/monitor/...
func TestStatusClient_Integration(t *testing.T) {
	store, err := sessionstore.New(&sessionstore.Config{BaseDir: t.TempDir()}, nil)
	require.NoError(t, err)
	queue, err := syncqueue.New(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()

	orch, err := orchestrator.New(store, bus, queue, orchestrator.DefaultConfig())
	require.NoError(t, err)

	srv, err := httpapi.NewServer(orch, store, queue, nil, &httpapi.Config{Host: "127.0.0.1", Port: 19090})
	require.NoError(t, err)
	go srv.Start()
	defer srv.Shutdown(context.Background())

	time.Sleep(100 * time.Millisecond) // let the listener come up

	client := NewStatusClient("http://127.0.0.1:19090")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("status_idle", func(t *testing.T) {
		status, err := client.Status(ctx)
		require.NoError(t, err)
		assert.Nil(t, status.Session)
	})

	t.Run("status_active_session", func(t *testing.T) {
		_, err := orch.StartSession(ctx, "/repo", "hash1", "")
		require.NoError(t, err)

		status, err := client.Status(ctx)
		require.NoError(t, err)
		require.NotNil(t, status.Session)
		assert.Equal(t, "hash1", status.Session.ProjectHash)
	})

	t.Run("sync_stats", func(t *testing.T) {
		syncResp, err := client.Sync(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, syncResp.Stats.Total, 0)
	})
}

// TestMonitorModel_Integration exercises the full dashboard model against a
// real daemon.
func TestMonitorModel_Integration(t *testing.T) {
	store, err := sessionstore.New(&sessionstore.Config{BaseDir: t.TempDir()}, nil)
	require.NoError(t, err)
	queue, err := syncqueue.New(t.TempDir())
	require.NoError(t, err)
	bus := eventbus.New()

	orch, err := orchestrator.New(store, bus, queue, orchestrator.DefaultConfig())
	require.NoError(t, err)

	srv, err := httpapi.NewServer(orch, store, queue, nil, &httpapi.Config{Host: "127.0.0.1", Port: 19091})
	require.NoError(t, err)
	go srv.Start()
	defer srv.Shutdown(context.Background())

	time.Sleep(100 * time.Millisecond)

	daemonURL := "http://127.0.0.1:19091"
	model := NewModel(daemonURL, 5*time.Second)

	cmd := model.Init()
	require.NotNil(t, cmd, "Init should return command")

	fetchCmd := fetchMetrics(daemonURL)
	msg := fetchCmd()

	switch msg := msg.(type) {
	case metricsMsg:
		t.Logf("Received metrics: hasSession=%v usage=%d%%", msg.HasSession, msg.UsagePercent)
		assert.GreaterOrEqual(t, msg.UsagePercent, 0)
	case errMsg:
		t.Fatalf("unexpected error fetching from live daemon: %v", msg)
	default:
		t.Fatalf("Unexpected message type: %T", msg)
	}
}
