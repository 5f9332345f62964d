// Package eventbus provides the lifecycle event bus shared by the session
// manager, sync queue, and orchestrator. Event kinds are a closed, statically
// named set rather than free-form strings, so subscribers pattern-match
// exhaustively instead of string-comparing.
package eventbus

import (
	"context"
	"sync"
)

// Kind names a lifecycle event. The set is closed: every kind the runtime
// ever emits is declared below.
type Kind string

const (
	KindSessionCreated     Kind = "session_created"
	KindFCSummarized       Kind = "fc_summarized"
	KindThresholdWarning   Kind = "threshold_warning"
	KindThresholdCritical  Kind = "threshold_critical"
	KindSessionCompleted   Kind = "session_completed"
	KindSyncItemSynced     Kind = "sync_item_synced"
	KindSyncItemFailed     Kind = "sync_item_failed"
	KindSyncItemExhausted  Kind = "sync_item_exhausted"
)

// Event is anything that can be dispatched on the bus. SessionID identifies
// the session the event concerns; handlers that don't care can ignore it.
type Event interface {
	Kind() Kind
	SessionID() string
}

// base is embedded by concrete event types to supply SessionID().
type base struct {
	sessionID string
}

func (b base) SessionID() string { return b.sessionID }

// SessionCreatedEvent fires once a new session has been persisted.
type SessionCreatedEvent struct {
	base
	ProjectHash string
}

func (SessionCreatedEvent) Kind() Kind { return KindSessionCreated }

// NewSessionCreatedEvent builds a SessionCreatedEvent.
func NewSessionCreatedEvent(sessionID, projectHash string) SessionCreatedEvent {
	return SessionCreatedEvent{base: base{sessionID}, ProjectHash: projectHash}
}

// FCSummarizedEvent fires after a function call has been appended and summarised.
type FCSummarizedEvent struct {
	base
	FCName string
	Tokens int
}

func (FCSummarizedEvent) Kind() Kind { return KindFCSummarized }

// NewFCSummarizedEvent builds an FCSummarizedEvent.
func NewFCSummarizedEvent(sessionID, fcName string, tokens int) FCSummarizedEvent {
	return FCSummarizedEvent{base: base{sessionID}, FCName: fcName, Tokens: tokens}
}

// ThresholdWarningEvent fires on the upward warning->critical-adjacent crossing.
type ThresholdWarningEvent struct {
	base
	UsagePercent float64
}

func (ThresholdWarningEvent) Kind() Kind { return KindThresholdWarning }

// NewThresholdWarningEvent builds a ThresholdWarningEvent.
func NewThresholdWarningEvent(sessionID string, usagePercent float64) ThresholdWarningEvent {
	return ThresholdWarningEvent{base: base{sessionID}, UsagePercent: usagePercent}
}

// ThresholdCriticalEvent fires when usage crosses the configured threshold.
type ThresholdCriticalEvent struct {
	base
	UsagePercent float64
}

func (ThresholdCriticalEvent) Kind() Kind { return KindThresholdCritical }

// NewThresholdCriticalEvent builds a ThresholdCriticalEvent.
func NewThresholdCriticalEvent(sessionID string, usagePercent float64) ThresholdCriticalEvent {
	return ThresholdCriticalEvent{base: base{sessionID}, UsagePercent: usagePercent}
}

// SessionCompletedEvent fires once a session's status becomes completed.
type SessionCompletedEvent struct {
	base
	FCCount int
}

func (SessionCompletedEvent) Kind() Kind { return KindSessionCompleted }

// NewSessionCompletedEvent builds a SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID string, fcCount int) SessionCompletedEvent {
	return SessionCompletedEvent{base: base{sessionID}, FCCount: fcCount}
}

// SyncItemEvent fires on sync-queue state transitions (synced/failed/exhausted).
type SyncItemEvent struct {
	base
	ItemID  string
	Attempt int
	Err     string
	kind    Kind
}

func (e SyncItemEvent) Kind() Kind { return e.kind }

// NewSyncItemEvent builds a SyncItemEvent of the given kind.
func NewSyncItemEvent(kind Kind, sessionID, itemID string, attempt int, errMsg string) SyncItemEvent {
	return SyncItemEvent{base: base{sessionID}, ItemID: itemID, Attempt: attempt, Err: errMsg, kind: kind}
}

// Handler reacts to one event. Handlers run synchronously on the emitting
// goroutine and in subscription order; a handler error is logged by the
// caller of Emit, never by the bus itself.
type Handler func(ctx context.Context, evt Event) error

// Bus dispatches events to subscribed handlers, grouped by kind.
type Bus interface {
	Subscribe(kind Kind, handler Handler)
	Emit(ctx context.Context, evt Event) error
}

// bus is the default in-process implementation.
type bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// New creates an empty, ready-to-use Bus.
func New() Bus {
	return &bus{handlers: make(map[Kind][]Handler)}
}

func (b *bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

func (b *bus) Emit(ctx context.Context, evt Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[evt.Kind()]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Recording is a test double that captures every emitted event in order,
// mirroring the SimpleEventEmitter test double this package's runtime
// follows elsewhere: tests assert on Events() rather than wiring real
// handlers.
type Recording struct {
	mu     sync.Mutex
	events []Event
}

// NewRecording creates an empty Recording bus.
func NewRecording() *Recording {
	return &Recording{}
}

func (r *Recording) Subscribe(Kind, Handler) {}

func (r *Recording) Emit(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a snapshot of every event emitted so far.
func (r *Recording) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Clear discards all recorded events.
func (r *Recording) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ Bus = (*bus)(nil)
var _ Bus = (*Recording)(nil)
