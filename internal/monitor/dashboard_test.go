package monitor

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewModel(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)
	assert.Equal(t, "http://localhost:9090", model.daemonURL)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)
	cmd := model.Init()

	// Init should return a tick command to start auto-refresh
	assert.NotNil(t, cmd)
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)

	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updatedModel, cmd := model.Update(keyMsg)

	m := updatedModel.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd) // Should return tea.Quit
}

func TestModel_Update_RefreshKey(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)

	keyMsg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}}
	updatedModel, cmd := model.Update(keyMsg)

	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd) // Should return fetchMetrics command
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)

	msg := tickMsg(time.Now())
	updatedModel, cmd := model.Update(msg)

	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd) // Should return batch command (tick + fetchMetrics)
}

func TestModel_Update_MetricsMsg(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)

	metrics := metricsMsg(MetricsSnapshot{
		HasSession:       true,
		ProjectHash:      "hash1",
		TokenCount:       5000,
		MaxContextTokens: 150000,
		UsagePercent:     3,
		FCCount:          2,
	})
	updatedModel, cmd := model.Update(metrics)

	m := updatedModel.(Model)
	assert.True(t, m.metrics.HasSession)
	assert.Equal(t, "hash1", m.metrics.ProjectHash)
	assert.Equal(t, 5000, m.metrics.TokenCount)
	assert.False(t, m.lastUpdate.IsZero())
	assert.Nil(t, cmd) // No command needed after metrics update
}

func TestModel_Update_ErrMsg(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)

	msg := errMsg(fmt.Errorf("connection refused"))
	updatedModel, cmd := model.Update(msg)

	m := updatedModel.(Model)
	assert.NotNil(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithMetrics(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)
	model.metrics = MetricsSnapshot{
		HasSession:       true,
		ProjectHash:      "hash1",
		LifecycleStatus:  "active",
		TokenCount:       5000,
		MaxContextTokens: 150000,
		UsagePercent:     3,
		FCCount:          2,
		SyncTotal:        4,
		SyncPending:      1,
		SyncSyncing:      1,
		SyncSynced:       2,
	}
	model.lastUpdate = time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC)

	view := model.View()

	assert.Contains(t, view, "ctxrd Monitor")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "Session")
	assert.Contains(t, view, "hash1")
	assert.Contains(t, view, "Context Window")
	assert.Contains(t, view, "Sync Queue")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	assert.Contains(t, view, "Cannot connect to ctxrd daemon")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:9090")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_NoData(t *testing.T) {
	model := NewModel("http://localhost:9090", 5*time.Second)
	// No metrics, no error

	view := model.View()

	assert.Contains(t, view, "ctxrd Monitor")
	assert.Contains(t, view, "No active session")
	assert.Contains(t, view, "[q]")
}
