package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccjk/ctxrd/internal/compressor"
	"github.com/ccjk/ctxrd/internal/eventbus"
	"github.com/ccjk/ctxrd/internal/fcparser"
	"github.com/ccjk/ctxrd/internal/memory"
	"github.com/ccjk/ctxrd/internal/sessionmgr"
	"github.com/ccjk/ctxrd/internal/sessionstore"
	"github.com/ccjk/ctxrd/internal/syncqueue"
)

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger installs a structured logger; a no-op logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSummariser installs a Summariser used both by the session manager
// (per-function-call summaries) and the compressor's semantic head.
func WithSummariser(s Summariser) Option {
	return func(o *Orchestrator) { o.summariser = s }
}

// WithSharedStatic installs a project-wide L1 tier shared across sessions
// started by this Orchestrator, instead of a fresh one per session.
func WithSharedStatic(shared *memory.Static) Option {
	return func(o *Orchestrator) { o.sharedStatic = shared }
}

// Summariser is the narrow capability this package forwards to the session
// manager and compressor. Declared locally so orchestrator never imports
// internal/summariser directly.
type Summariser interface {
	Summarise(ctx context.Context, prompt string) (string, error)
}

// Orchestrator owns the currently active session, the layered memory built
// up over its lifetime, and the subprocess running the host agent. It is
// the thin driver named by this runtime's component design: it forwards FC
// Parser events into the Session Manager and Layered Memory, decides when
// to compress, persists summaries, and enqueues sync items.
type Orchestrator struct {
	cfg        Config
	store      sessionstore.Store
	bus        eventbus.Bus
	queue      *syncqueue.Queue
	sessions   *sessionmgr.Manager
	compressor *compressor.Compressor
	logger     *zap.Logger
	summariser Summariser

	sharedStatic *memory.Static

	mu          sync.Mutex
	parser      *fcparser.Parser
	mem         *memory.Store
	projectHash string
	subprocess  *HostProcess
}

// New wires a fresh Orchestrator over store/bus/queue. The event bus is
// subscribed to threshold_critical so compression is driven by whichever
// component emits it (normally the session manager created here).
func New(store sessionstore.Store, bus eventbus.Bus, queue *syncqueue.Queue, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("orchestrator: session store is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("orchestrator: event bus is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("orchestrator: sync queue is required")
	}

	o := &Orchestrator{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		queue:  queue,
		logger: zap.NewNop(),
		parser: fcparser.New(),
	}
	for _, opt := range opts {
		opt(o)
	}

	var compSummariser compressor.Summariser
	if o.summariser != nil {
		compSummariser = o.summariser
	}
	o.compressor = compressor.New(compSummariser, compressor.DefaultConfig())

	sessionOpts := []sessionmgr.Option{
		sessionmgr.WithConfig(sessionmgr.Config{
			MaxContextTokens:        cfg.MaxContextTokens,
			Threshold:               thresholdFraction(cfg),
			RecentSummariesInDigest: 10,
		}),
		sessionmgr.WithLogger(o.logger),
	}
	if cfg.AutoSummarize && o.summariser != nil {
		sessionOpts = append(sessionOpts, sessionmgr.WithSummariser(o.summariser))
	}
	mgr, err := sessionmgr.New(store, bus, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building session manager: %w", err)
	}
	o.sessions = mgr

	bus.Subscribe(eventbus.KindThresholdCritical, o.onThresholdCritical)
	return o, nil
}

// thresholdFraction converts Config's absolute ContextThreshold into the
// fraction-of-MaxContextTokens the session manager's Config expects.
func thresholdFraction(cfg Config) float64 {
	if cfg.MaxContextTokens <= 0 {
		return 0.9
	}
	return float64(cfg.ContextThreshold) / float64(cfg.MaxContextTokens)
}

// StartSession creates a session in the Session Store and a fresh layered
// memory scoped to it, attaching a new FC Parser in IDLE state.
func (o *Orchestrator) StartSession(ctx context.Context, projectPath, projectHash, description string) (*sessionstore.Session, error) {
	sess, err := o.sessions.CreateSession(ctx, projectPath, projectHash, description)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.mem = memory.NewStore(o.sharedStatic, o.cfg.MaxRecentFCs, o.cfg.MaxActiveFiles)
	o.mem.Session.SetWorkingDirectory(projectPath)
	o.projectHash = projectHash
	o.parser.Reset()
	o.mu.Unlock()

	return sess, nil
}

// IngestChunk feeds a chunk of host-agent output through the FC Parser and
// processes every function call it completes.
func (o *Orchestrator) IngestChunk(ctx context.Context, chunk []byte) error {
	if !o.cfg.Enabled {
		return nil
	}
	calls := o.parser.Parse(chunk)
	for _, call := range calls {
		if err := o.handleFCCall(ctx, call); err != nil {
			return err
		}
	}
	return nil
}

// Flush drains any residual buffered partial line through the parser,
// processing a final function call if one was completed.
func (o *Orchestrator) Flush(ctx context.Context) error {
	for _, call := range o.parser.Flush() {
		if err := o.handleFCCall(ctx, call); err != nil {
			return err
		}
	}
	return nil
}

// handleFCCall converts a completed FCCall into a session log entry,
// absorbs it into layered memory, and lets the session manager decide
// whether a threshold-crossing event is due.
func (o *Orchestrator) handleFCCall(ctx context.Context, call fcparser.FCCall) error {
	status := "success"
	if call.Status == fcparser.StatusError {
		status = "error"
	}

	fc := sessionmgr.FunctionCall{
		ID:       call.ID,
		Name:     call.Name,
		Args:     call.Args,
		Result:   call.Result,
		Status:   status,
		ErrorMsg: call.Error,
	}

	summary, err := o.sessions.AddFunctionCall(ctx, fc)
	if err != nil {
		return fmt.Errorf("orchestrator: recording function call: %w", err)
	}

	o.mu.Lock()
	mem := o.mem
	o.mu.Unlock()
	if mem == nil {
		return nil
	}

	mem.Session.AddFCSummary(memory.FCSummary{
		FCID:      summary.FCID,
		FCName:    summary.FCName,
		Summary:   summary.Summary,
		Tokens:    summary.Tokens,
		Timestamp: summary.Timestamp,
	})
	if path, ok := call.Args["file_path"]; ok && path != "" {
		mem.Session.TouchActiveFile(path)
	}
	if call.Status == fcparser.StatusError && call.Error != "" {
		mem.Dynamic.RecordError(memory.ErrorEntry{Message: call.Error, Source: call.Name, Timestamp: time.Now()})
	}

	return nil
}

// onThresholdCritical builds a RawContext from the current session's
// layered memory, runs the Multi-Head Compressor, persists the result as
// the session's summary, and enqueues a sync item carrying it.
func (o *Orchestrator) onThresholdCritical(ctx context.Context, evt eventbus.Event) error {
	o.mu.Lock()
	mem := o.mem
	projectHash := o.projectHash
	o.mu.Unlock()
	if mem == nil {
		return nil
	}

	raw := buildRawContext(mem)
	output, err := o.compressor.Compress(ctx, raw)
	if err != nil {
		return fmt.Errorf("orchestrator: compressing context: %w", err)
	}

	sessionID := evt.SessionID()
	if err := o.store.SaveSummary(ctx, projectHash, sessionID, output.Content); err != nil {
		return fmt.Errorf("orchestrator: saving summary: %w", err)
	}

	if _, err := o.queue.Enqueue(syncqueue.Item{
		Type:      syncqueue.ItemTypeSummary,
		SessionID: sessionID,
		Data:      output.Content,
	}); err != nil {
		o.logger.Warn("orchestrator: enqueue summary sync item failed", zap.Error(err), zap.String("session_id", sessionID))
	}

	o.logger.Info("context compressed on threshold_critical",
		zap.String("session_id", sessionID),
		zap.Int("original_tokens", output.OriginalTokens),
		zap.Int("compressed_tokens", output.CompressedTokens),
		zap.Float64("ratio", output.CompressionRatio))
	return nil
}

// buildRawContext projects layered memory's L2/L3 tiers into the shape the
// Multi-Head Compressor reads from.
func buildRawContext(mem *memory.Store) compressor.RawContext {
	session := mem.Session.Snapshot()
	dynamic := mem.Dynamic.Snapshot()

	events := make([]compressor.FCEvent, 0, len(session.RecentFCs))
	for _, fc := range session.RecentFCs {
		events = append(events, compressor.FCEvent{
			ID:        fc.FCID,
			Name:      fc.FCName,
			Summary:   fc.Summary,
			Status:    "success",
			Timestamp: fc.Timestamp,
		})
	}

	errs := make([]string, 0, len(dynamic.ErrorContext))
	for _, e := range dynamic.ErrorContext {
		errs = append(errs, fmt.Sprintf("%s: %s", e.Source, e.Message))
	}

	return compressor.RawContext{
		FunctionCalls: events,
		Files:         session.ActiveFiles,
		Errors:        errs,
		CurrentGoal:   session.CurrentGoal,
		Metadata: map[string]string{
			"workingDirectory": session.WorkingDirectory,
			"currentTask":      mem.Dynamic.CurrentTask(),
		},
	}
}

// Shutdown stops the attached subprocess (if any), flushes any residual
// parser buffer, and completes the current session.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	proc := o.subprocess
	o.mu.Unlock()
	if proc != nil {
		if err := proc.Stop(ctx, o.cfg.ShutdownGrace); err != nil {
			o.logger.Warn("orchestrator: subprocess shutdown error", zap.Error(err))
		}
	}

	if err := o.Flush(ctx); err != nil {
		o.logger.Warn("orchestrator: flush on shutdown failed", zap.Error(err))
	}

	if err := o.sessions.CompleteSession(ctx); err != nil && err != sessionmgr.ErrNoCurrentSession {
		return fmt.Errorf("orchestrator: completing session on shutdown: %w", err)
	}
	return nil
}

// AttachSubprocess associates a running HostProcess with this Orchestrator
// so Shutdown terminates it.
func (o *Orchestrator) AttachSubprocess(proc *HostProcess) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subprocess = proc
}

// Current returns the in-memory session the Session Manager currently
// tracks, or nil if none is active.
func (o *Orchestrator) Current() *sessionstore.Session {
	return o.sessions.Current()
}

// Status summarises the currently active session for reporting surfaces
// (the daemon's HTTP status endpoint, the operator CLI's status dashboard).
type Status struct {
	SessionID        string
	ProjectHash      string
	LifecycleStatus  sessionstore.Status
	TokenCount       int
	MaxContextTokens int
	UsagePercent     int
	FCCount          int
}

// Status reports the active session's usage, or ok=false if none is active.
func (o *Orchestrator) Status() (st Status, ok bool) {
	sess := o.sessions.Current()
	if sess == nil {
		return Status{}, false
	}
	usage := 0
	if o.cfg.MaxContextTokens > 0 {
		usage = int(float64(sess.Meta.TokenCount) / float64(o.cfg.MaxContextTokens) * 100)
	}
	return Status{
		SessionID:        sess.Meta.ID,
		ProjectHash:      sess.Meta.ProjectHash,
		LifecycleStatus:  sess.Meta.Status,
		TokenCount:       sess.Meta.TokenCount,
		MaxContextTokens: o.cfg.MaxContextTokens,
		UsagePercent:     usage,
		FCCount:          sess.Meta.FCCount,
	}, true
}
