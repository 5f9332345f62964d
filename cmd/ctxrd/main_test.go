package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ccjk/ctxrd/internal/config"
)

func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := runOptions{
		projectPath: t.TempDir(),
		host:        "localhost",
		port:        18099,
		agentCmd:    "sh",
		agentArgs:   []string{"-c", "sleep 5"},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, opts) }()

	time.Sleep(300 * time.Millisecond)

	resp, err := http.Get("http://localhost:18099/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("daemon did not shut down in time")
	}
}

func TestOrchestratorConfigMapsRuntimeFields(t *testing.T) {
	cfg := config.DefaultRuntimeConfig()
	cfg.ContextThreshold = 42
	cfg.MaxContextTokens = 100

	oc := orchestratorConfig(&cfg)
	if oc.ContextThreshold != 42 || oc.MaxContextTokens != 100 {
		t.Errorf("orchestratorConfig did not carry over threshold/max tokens: %+v", oc)
	}
	if oc.ShutdownGrace == 0 {
		t.Error("orchestratorConfig should keep the house default shutdown grace")
	}
}

func TestBuildSummariserFallsBackWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.DefaultRuntimeConfig()
	cfg.SummaryModel = "haiku"

	s := buildSummariser(&cfg, nil, zap.NewNop())
	if _, err := s.Summarise(context.Background(), "x"); err == nil {
		t.Error("expected NullSummariser fallback to error without an API key")
	}
}

func TestBuildSummariserFallsBackForUserDefaultModel(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "some-key")
	cfg := config.DefaultRuntimeConfig()
	cfg.SummaryModel = "user-default"

	s := buildSummariser(&cfg, nil, zap.NewNop())
	if _, err := s.Summarise(context.Background(), "x"); err == nil {
		t.Error("user-default is not a vendor binding this daemon resolves on its own; expected fallback")
	}
}
