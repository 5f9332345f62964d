// Package sessionmgr holds the in-memory view of the currently active
// session: the running FCSummary log, token usage, and threshold level.
// It mirrors this codebase's budget-tracker pattern (a mutex-guarded map of
// atomically-updated counters, warning emitted only on upward threshold
// crossings) but tracks context-window usage instead of a turn budget.
package sessionmgr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ccjk/ctxrd/internal/eventbus"
	"github.com/ccjk/ctxrd/internal/sessionstore"
	"github.com/ccjk/ctxrd/internal/tokens"
)

// ErrNoCurrentSession is returned by operations that require an active
// session when none has been created yet.
var ErrNoCurrentSession = errors.New("no current session")

// Config tunes threshold behaviour.
type Config struct {
	// MaxContextTokens is the host agent's context window size.
	MaxContextTokens int
	// Threshold is the fraction (0,1] of MaxContextTokens at which usage is
	// considered critical; warning fires ten percentage points earlier.
	Threshold float64
	// RecentSummariesInDigest bounds how many FCSummary lines appear in
	// generateSessionSummary's bullet list.
	RecentSummariesInDigest int
}

// DefaultConfig returns the house defaults: a 200k-token context window and
// a 90% critical threshold (80% warning).
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:        200_000,
		Threshold:               0.9,
		RecentSummariesInDigest: 10,
	}
}

// sessionState is the mutable, atomically-updated counter pair for one
// session, guarded the same way BudgetTracker guards budgetState: the map
// itself under a mutex, the counter via atomic ops so readers don't need
// the lock.
type sessionState struct {
	tokenCount int64 // atomic
	lastLevel  atomic.Value // ThresholdLevel
}

// Manager owns the in-memory projection of sessions tracked by this
// process. Only one session is "current" at a time per project, but the
// underlying state map supports tracking several simultaneously, mirroring
// the budget tracker this package is grounded on.
type Manager struct {
	store      sessionstore.Store
	bus        eventbus.Bus
	summariser Summariser
	cfg        Config
	logger     *zap.Logger

	mu      sync.RWMutex
	states  map[string]*sessionState // sessionID -> state
	current *sessionstore.Session
	history []FCSummary
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithSummariser installs a Summariser used by AddFunctionCall. Without one,
// the rule-based fallback (first maxSummaryChars of the result) is used.
func WithSummariser(s Summariser) Option {
	return func(m *Manager) { m.summariser = s }
}

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger installs a structured logger; a no-op logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// New creates a Manager backed by store, emitting lifecycle events on bus.
func New(store sessionstore.Store, bus eventbus.Bus, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if bus == nil {
		return nil, errors.New("event bus is required")
	}

	m := &Manager{
		store:  store,
		bus:    bus,
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		states: make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateSession completes any current session, creates a fresh one, and
// emits session_created.
func (m *Manager) CreateSession(ctx context.Context, projectPath, projectHash, description string) (*sessionstore.Session, error) {
	m.mu.Lock()
	prevCurrent := m.current
	m.mu.Unlock()

	if prevCurrent != nil && prevCurrent.Meta.Status == sessionstore.StatusActive {
		if err := m.CompleteSession(ctx); err != nil {
			return nil, fmt.Errorf("completing previous session: %w", err)
		}
	}

	sess, err := m.store.CreateSession(ctx, projectPath, projectHash, description)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = sess
	m.history = nil
	state := &sessionState{}
	state.lastLevel.Store(ThresholdNormal)
	m.states[sess.Meta.ID] = state
	m.mu.Unlock()

	if err := m.bus.Emit(ctx, eventbus.NewSessionCreatedEvent(sess.Meta.ID, projectHash)); err != nil {
		m.logger.Warn("session_created handler error", zap.Error(err))
	}
	m.logger.Info("session created", zap.String("session_id", sess.Meta.ID), zap.String("project_hash", projectHash))
	return sess, nil
}

// AddFunctionCall summarises fc (via the installed Summariser, falling back
// to a rule-based truncation), appends the FCSummary to the running log,
// updates token usage, and emits threshold-crossing events.
func (m *Manager) AddFunctionCall(ctx context.Context, fc FunctionCall) (FCSummary, error) {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return FCSummary{}, ErrNoCurrentSession
	}

	summaryText, wasSummarised := m.summarise(ctx, fc)
	addedTokens := tokens.Estimate(fc.Result)
	if wasSummarised {
		addedTokens = tokens.Estimate(summaryText)
	}

	fcSummary := FCSummary{
		FCID:      fc.ID,
		FCName:    fc.Name,
		Summary:   summaryText,
		Tokens:    addedTokens,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.history = append(m.history, fcSummary)
	sess.Meta.FCCount++
	m.mu.Unlock()

	newTotal, prevLevel, newLevel := m.updateUsage(sess.Meta.ID, addedTokens)

	status := sessionstore.FCStatusSuccess
	if fc.Status == string(sessionstore.FCStatusError) {
		status = sessionstore.FCStatusError
	}
	entry := sessionstore.FCLogEntry{
		Timestamp: fcSummary.Timestamp,
		ID:        fc.ID,
		FC:        fc.Name,
		Args:      fc.Args,
		Result:    fc.Result,
		Tokens:    addedTokens,
		Summary:   summaryText,
		Status:    status,
		Error:     fc.ErrorMsg,
	}
	if err := m.store.AppendFCLog(ctx, sess.Meta.ProjectHash, sess.Meta.ID, entry); err != nil {
		return fcSummary, fmt.Errorf("appending fc log: %w", err)
	}

	if err := m.bus.Emit(ctx, eventbus.NewFCSummarizedEvent(sess.Meta.ID, fc.Name, addedTokens)); err != nil {
		m.logger.Warn("fc_summarized handler error", zap.Error(err))
	}

	m.emitThresholdTransition(ctx, sess.Meta.ID, prevLevel, newLevel, newTotal)

	return fcSummary, nil
}

// summarise returns the FCSummary.Summary text plus whether a real
// summariser (as opposed to the rule-based fallback) produced it.
func (m *Manager) summarise(ctx context.Context, fc FunctionCall) (string, bool) {
	if m.summariser != nil {
		prompt := fmt.Sprintf("Summarise the result of calling %s:\n%s", fc.Name, fc.Result)
		if summary, err := m.summariser.Summarise(ctx, prompt); err == nil && summary != "" {
			return truncate(summary, maxSummaryChars), true
		}
	}
	return truncate(fc.Result, maxSummaryChars), false
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// updateUsage atomically adds tokens to the session's counter and reports
// the previous and new threshold level so the caller can decide whether an
// upward-crossing event is due.
func (m *Manager) updateUsage(sessionID string, addTokens int) (newTotal int64, prevLevel, newLevel ThresholdLevel) {
	m.mu.RLock()
	state, ok := m.states[sessionID]
	m.mu.RUnlock()
	if !ok {
		return 0, ThresholdNormal, ThresholdNormal
	}

	newTotal = atomic.AddInt64(&state.tokenCount, int64(addTokens))
	prevLevel, _ = state.lastLevel.Load().(ThresholdLevel)
	if prevLevel == "" {
		prevLevel = ThresholdNormal
	}

	newLevel = m.levelFor(newTotal)
	state.lastLevel.Store(newLevel)
	return newTotal, prevLevel, newLevel
}

func (m *Manager) levelFor(tokenCount int64) ThresholdLevel {
	if m.cfg.MaxContextTokens <= 0 {
		return ThresholdNormal
	}
	usage := 100 * float64(tokenCount) / float64(m.cfg.MaxContextTokens)
	critical := m.cfg.Threshold * 100
	warning := (m.cfg.Threshold - 0.10) * 100
	switch {
	case usage >= critical:
		return ThresholdCritical
	case usage >= warning:
		return ThresholdWarning
	default:
		return ThresholdNormal
	}
}

func levelRank(l ThresholdLevel) int {
	switch l {
	case ThresholdWarning:
		return 1
	case ThresholdCritical:
		return 2
	default:
		return 0
	}
}

// emitThresholdTransition fires threshold_warning/threshold_critical only on
// an upward crossing, never on every call once already past the line.
func (m *Manager) emitThresholdTransition(ctx context.Context, sessionID string, prev, next ThresholdLevel, tokenCount int64) {
	if levelRank(next) <= levelRank(prev) {
		return
	}
	usage := 100 * float64(tokenCount) / float64(m.cfg.MaxContextTokens)

	var evt eventbus.Event
	switch next {
	case ThresholdWarning:
		evt = eventbus.NewThresholdWarningEvent(sessionID, usage)
	case ThresholdCritical:
		evt = eventbus.NewThresholdCriticalEvent(sessionID, usage)
	default:
		return
	}
	if err := m.bus.Emit(ctx, evt); err != nil {
		m.logger.Warn("threshold event handler error", zap.Error(err))
	}
}

// GenerateSessionSummary renders a deterministic markdown digest of the
// current session: project, id, duration, fc count, usage, and the most
// recent FCSummary lines.
func (m *Manager) GenerateSessionSummary(ctx context.Context) (string, error) {
	m.mu.RLock()
	sess := m.current
	history := append([]FCSummary(nil), m.history...)
	m.mu.RUnlock()
	if sess == nil {
		return "", ErrNoCurrentSession
	}

	m.mu.RLock()
	state := m.states[sess.Meta.ID]
	m.mu.RUnlock()
	var tokenCount int64
	if state != nil {
		tokenCount = atomic.LoadInt64(&state.tokenCount)
	}
	usage := 0.0
	if m.cfg.MaxContextTokens > 0 {
		usage = 100 * float64(tokenCount) / float64(m.cfg.MaxContextTokens)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session Summary\n\n")
	fmt.Fprintf(&b, "- Project: %s\n", sess.Meta.ProjectPath)
	fmt.Fprintf(&b, "- Session: %s\n", sess.Meta.ID)
	fmt.Fprintf(&b, "- Duration: %s\n", time.Since(sess.Meta.StartTime).Round(time.Second))
	fmt.Fprintf(&b, "- Function calls: %d\n", sess.Meta.FCCount)
	fmt.Fprintf(&b, "- Context usage: %.1f%%\n\n", usage)

	n := m.cfg.RecentSummariesInDigest
	if n <= 0 || n > len(history) {
		n = len(history)
	}
	recent := history[len(history)-n:]

	b.WriteString("## Recent function calls\n\n")
	for _, fc := range recent {
		fmt.Fprintf(&b, "- **%s**: %s\n", fc.FCName, fc.Summary)
	}

	return b.String(), nil
}

// CompleteSession marks the current session completed, persists the final
// summary, moves it out of "current", and emits session_completed.
func (m *Manager) CompleteSession(ctx context.Context) error {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return ErrNoCurrentSession
	}

	summary, err := m.GenerateSessionSummary(ctx)
	if err != nil {
		return err
	}
	if err := m.store.SaveSummary(ctx, sess.Meta.ProjectHash, sess.Meta.ID, summary); err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	if err := m.store.CompleteSession(ctx, sess.Meta.ProjectHash, sess.Meta.ID); err != nil {
		return fmt.Errorf("completing session: %w", err)
	}

	m.mu.Lock()
	fcCount := sess.Meta.FCCount
	m.current = nil
	m.mu.Unlock()

	if err := m.bus.Emit(ctx, eventbus.NewSessionCompletedEvent(sess.Meta.ID, fcCount)); err != nil {
		m.logger.Warn("session_completed handler error", zap.Error(err))
	}
	m.logger.Info("session completed", zap.String("session_id", sess.Meta.ID))
	return nil
}

// Current returns the in-memory session currently tracked, or nil.
func (m *Manager) Current() *sessionstore.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
