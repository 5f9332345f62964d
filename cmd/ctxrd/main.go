// Command ctxrd is the context-compression daemon. It spawns the host
// agent as a subprocess, feeds its stdout through the Orchestrator, and
// exposes an HTTP surface (internal/httpapi) for the ctxctl operator CLI
// and Prometheus scraping.
//
// Usage:
//
//	ctxrd [flags] -- <host-agent-cmd> [args...]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tmc/langchaingo/llms/anthropic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ccjk/ctxrd/internal/config"
	"github.com/ccjk/ctxrd/internal/eventbus"
	"github.com/ccjk/ctxrd/internal/gitidentity"
	"github.com/ccjk/ctxrd/internal/httpapi"
	"github.com/ccjk/ctxrd/internal/logging"
	"github.com/ccjk/ctxrd/internal/orchestrator"
	"github.com/ccjk/ctxrd/internal/secrets"
	"github.com/ccjk/ctxrd/internal/sessionstore"
	"github.com/ccjk/ctxrd/internal/summariser"
	"github.com/ccjk/ctxrd/internal/syncqueue"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/ctxrd/config.yaml)")
	projectPath := flag.String("project", ".", "project directory ctxrd observes")
	host := flag.String("host", "localhost", "HTTP surface bind host")
	port := flag.Int("port", 9090, "HTTP surface bind port")
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 && args[0] == "version" {
		fmt.Printf("ctxrd %s\n", version)
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ctxrd [flags] -- <host-agent-cmd> [args...]")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	opts := runOptions{
		configPath:  *configPath,
		projectPath: *projectPath,
		host:        *host,
		port:        *port,
		agentCmd:    args[0],
		agentArgs:   args[1:],
	}

	if err := run(ctx, opts); err != nil {
		log.Fatalf("ctxrd: %v", err)
	}
	log.Println("ctxrd shutdown complete")
}

type runOptions struct {
	configPath  string
	projectPath string
	host        string
	port        int
	agentCmd    string
	agentArgs   []string
}

// run loads configuration, wires the orchestrator and its dependencies,
// spawns the host-agent subprocess, and serves the HTTP surface until ctx
// is cancelled.
func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	houseLogger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = houseLogger.Sync() }()

	level := zap.NewAtomicLevel()
	if lvl, err := logging.LevelFromString(cfg.Observability.LogLevel); err == nil {
		level.SetLevel(lvl)
	}
	logger, err := newComponentLogger(cfg, level)
	if err != nil {
		return fmt.Errorf("initializing component logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	houseLogger.Info(ctx, "starting ctxrd",
		zap.String("project", opts.projectPath),
		zap.Int("context_threshold", cfg.ContextThreshold),
		zap.Int("max_context_tokens", cfg.MaxContextTokens))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	srv, err := httpapi.NewServer(deps.orch, deps.store, deps.queue, logger, &httpapi.Config{
		Host: opts.host,
		Port: opts.port,
	})
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stopWatch := watchConfig(ctx, opts.configPath, level, logger)
	defer stopWatch()

	identity := gitidentity.NewResolver().Resolve(opts.projectPath)
	if _, err := deps.orch.StartSession(ctx, opts.projectPath, identity.Hash, ""); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	logger.Info("session started",
		zap.String("project_hash", identity.Hash),
		zap.String("git_branch", identity.Branch))

	proc := orchestrator.NewHostProcess(opts.agentCmd, opts.agentArgs, opts.projectPath)
	deps.orch.AttachSubprocess(proc)
	if err := proc.Start(ctx, deps.orch.IngestChunk); err != nil {
		return fmt.Errorf("starting host agent: %w", err)
	}
	go io.Copy(stdinWriter{proc}, os.Stdin)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := deps.orch.Flush(shutdownCtx); err != nil {
		logger.Warn("flushing final function call failed", zap.Error(err))
	}
	if err := proc.Stop(shutdownCtx, 5*time.Second); err != nil {
		logger.Warn("stopping host agent failed", zap.Error(err))
	}
	if err := deps.orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("orchestrator shutdown failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}

	return nil
}

// stdinWriter adapts a *orchestrator.HostProcess to io.Writer so operator
// keystrokes on the daemon's own stdin can be forwarded to the interactive
// host agent with io.Copy.
type stdinWriter struct {
	proc *orchestrator.HostProcess
}

func (w stdinWriter) Write(p []byte) (int, error) {
	return w.proc.Write(p)
}

// dependencies holds the services wired into the Orchestrator.
type dependencies struct {
	store sessionstore.Store
	queue *syncqueue.Queue
	bus   eventbus.Bus
	orch  *orchestrator.Orchestrator
}

func (d *dependencies) Close() {
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// initDependencies builds the Session Store, Sync Queue, event bus,
// summariser, and Orchestrator from cfg.
func initDependencies(cfg *config.RuntimeConfig, logger *zap.Logger) (*dependencies, error) {
	scrubberCfg := secrets.DefaultConfig()
	scrubberCfg.Enabled = cfg.Secrets.Enabled
	scrubberCfg.RedactionString = cfg.Secrets.RedactionString
	scrubberCfg.DeepScan = cfg.Secrets.DeepScan
	scrubber, err := secrets.New(scrubberCfg)
	if err != nil {
		return nil, fmt.Errorf("building scrubber: %w", err)
	}

	store, err := sessionstore.New(&sessionstore.Config{
		BaseDir:  cfg.Storage.BaseDir,
		Scrubber: scrubber,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building session store: %w", err)
	}

	queue, err := syncqueue.New(filepath.Join(cfg.Storage.BaseDir, cfg.Storage.SyncQueueDir))
	if err != nil {
		return nil, fmt.Errorf("building sync queue: %w", err)
	}

	bus := eventbus.New()

	orch, err := orchestrator.New(store, bus, queue, orchestratorConfig(cfg),
		orchestrator.WithLogger(logger),
		orchestrator.WithSummariser(buildSummariser(cfg, scrubber, logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	return &dependencies{store: store, queue: queue, bus: bus, orch: orch}, nil
}

// orchestratorConfig maps the subset of RuntimeConfig the Orchestrator
// cares about onto orchestrator.Config, keeping the house defaults
// (shutdown grace, memory tier bounds) RuntimeConfig doesn't expose.
func orchestratorConfig(cfg *config.RuntimeConfig) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.Enabled = cfg.Enabled
	oc.AutoSummarize = cfg.AutoSummarize
	oc.ContextThreshold = cfg.ContextThreshold
	oc.MaxContextTokens = cfg.MaxContextTokens
	return oc
}

// buildSummariser resolves the summaryModel capability selector into a
// concrete Summariser. "haiku" asks for an Anthropic-backed LLMSummariser,
// gated on ANTHROPIC_API_KEY being set; any other selector, or a missing
// key, falls back to NullSummariser so the session manager's deterministic
// rule-based path is always available.
func buildSummariser(cfg *config.RuntimeConfig, scrubber secrets.Scrubber, logger *zap.Logger) orchestrator.Summariser {
	if !cfg.AutoSummarize || cfg.SummaryModel != "haiku" {
		return summariser.NullSummariser{}
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.Info("ANTHROPIC_API_KEY not set, summarisation falls back to rule-based path")
		return summariser.NullSummariser{}
	}

	model, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel("claude-3-5-haiku-latest"))
	if err != nil {
		logger.Warn("failed to initialize LLM summariser, falling back to rule-based path", zap.Error(err))
		return summariser.NullSummariser{}
	}
	return summariser.NewLLMSummariser(model, scrubber)
}

// newComponentLogger builds the *zap.Logger injected into the Session
// Store, Orchestrator, and HTTP server, with its level held in an
// AtomicLevel so watchConfig can raise or lower verbosity without
// reconstructing every component's logger reference.
func newComponentLogger(cfg *config.RuntimeConfig, level zap.AtomicLevel) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zcfg := zap.Config{
		Level:             level,
		Encoding:          cfg.Observability.LogFormat,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: false,
	}
	if zcfg.Encoding == "" {
		zcfg.Encoding = "json"
	}
	return zcfg.Build(zap.Fields(zap.String("service", cfg.Observability.ServiceName)))
}

// watchConfig watches configPath with fsnotify and, on a write event,
// reloads and re-validates the config, adjusting level only if the
// reloaded config is valid. An invalid edit is logged and otherwise
// ignored: the daemon keeps running on the last-good settings. This never
// touches the Session Store/Sync Queue layout or any in-flight session,
// per this runtime's config hot-reload contract. Returns a function to
// stop watching; a no-op if configPath could not be watched.
func watchConfig(ctx context.Context, configPath string, level zap.AtomicLevel, logger *zap.Logger) func() {
	if configPath == "" {
		return func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config hot-reload disabled: failed to create watcher", zap.Error(err))
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		logger.Warn("config hot-reload disabled: failed to watch config directory", zap.Error(err))
		_ = watcher.Close()
		return func() {}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(configPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := config.Load(configPath)
				if err != nil {
					logger.Warn("config reload failed, keeping last-good config", zap.Error(err))
					continue
				}
				if lvl, err := logging.LevelFromString(reloaded.Observability.LogLevel); err == nil {
					level.SetLevel(lvl)
				}
				logger.Info("config reloaded", zap.String("log_level", reloaded.Observability.LogLevel))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()

	return func() { _ = watcher.Close() }
}
