package syncqueue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccjk/ctxrd/internal/eventbus"
)

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPollInterval sets the interval between dequeue/retry sweeps.
// Defaults to 5 seconds.
func WithPollInterval(interval time.Duration) DriverOption {
	return func(d *Driver) { d.interval = interval }
}

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(max int) DriverOption {
	return func(d *Driver) { d.maxRetries = max }
}

// WithEventBus sets the bus the driver emits sync_item_synced/failed/exhausted
// events on. Without one, the driver only logs.
func WithEventBus(bus eventbus.Bus) DriverOption {
	return func(d *Driver) { d.bus = bus }
}

// Driver repeatedly dequeues pending items (and retryable failed ones) and
// hands them to a Transport, backing off on failure. The ticker-driven
// goroutine, idempotent Start/Stop, and panic recovery around each run
// mirror reasoningbank's ConsolidationScheduler almost exactly, retargeted
// from memory consolidation to queue draining.
type Driver struct {
	queue      *Queue
	transport  Transport
	interval   time.Duration
	maxRetries int
	logger     *zap.Logger
	bus        eventbus.Bus

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewDriver builds a Driver over queue using transport to deliver items.
func NewDriver(queue *Queue, transport Transport, logger *zap.Logger, opts ...DriverOption) (*Driver, error) {
	if queue == nil {
		return nil, fmt.Errorf("syncqueue: queue cannot be nil")
	}
	if transport == nil {
		transport = NoopTransport{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Driver{
		queue:      queue,
		transport:  transport,
		interval:   5 * time.Second,
		maxRetries: DefaultMaxRetries,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start begins the background drain loop. Idempotent: calling Start on an
// already-running driver returns an error without starting a second
// goroutine.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("syncqueue: driver already running")
	}
	d.stopCh = make(chan struct{})
	d.running = true

	d.logger.Info("sync queue driver started", zap.Duration("interval", d.interval))
	go d.run()
	return nil
}

// Stop gracefully stops the drain loop. Idempotent.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false
	close(d.stopCh)
	return nil
}

func (d *Driver) run() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("sync queue driver panicked, recovering", zap.Any("panic", r))
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.safeDrainOnce()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Driver) safeDrainOnce() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("sync queue drain run panicked, continuing", zap.Any("panic", r))
		}
	}()
	d.DrainOnce(context.Background())
}

// DrainOnce processes at most one pending item and retries every eligible
// failed item, logging outcome counts. Exported so callers (and tests) can
// trigger a synchronous sweep without waiting on the ticker.
func (d *Driver) DrainOnce(ctx context.Context) {
	synced, failed := 0, 0

	if item, err := d.queue.Dequeue(); err == nil && item != nil {
		if d.deliver(ctx, *item) {
			synced++
		} else {
			failed++
		}
	}

	retryable, err := d.queue.GetRetryableItems()
	if err == nil {
		for _, item := range retryable {
			if d.deliver(ctx, item) {
				synced++
			} else {
				failed++
			}
		}
	}

	if synced > 0 || failed > 0 {
		d.logger.Info("sync queue drain completed", zap.Int("synced", synced), zap.Int("failed", failed))
	}
}

func (d *Driver) deliver(ctx context.Context, item Item) bool {
	if _, err := d.queue.MarkSyncing(item.ID); err != nil {
		d.logger.Warn("syncqueue: mark syncing failed", zap.String("itemId", item.ID), zap.Error(err))
		return false
	}

	if err := d.transport.Send(ctx, item); err != nil {
		attempt := item.Retries + 1
		if attempt >= d.maxRetries {
			d.logger.Error("sync item exhausted retries", zap.String("itemId", item.ID), zap.Int("retries", attempt), zap.Error(err))
			_, _ = d.queue.MarkExhausted(item.ID, err)
			d.emit(ctx, eventbus.NewSyncItemEvent(eventbus.KindSyncItemExhausted, item.SessionID, item.ID, attempt, err.Error()))
			return false
		}
		delay := backoffDelay(attempt)
		d.logger.Warn("sync item failed, scheduling retry", zap.String("itemId", item.ID), zap.Duration("delay", delay), zap.Error(err))
		_, _ = d.queue.MarkFailed(item.ID, err, delay)
		d.emit(ctx, eventbus.NewSyncItemEvent(eventbus.KindSyncItemFailed, item.SessionID, item.ID, attempt, err.Error()))
		return false
	}

	if _, err := d.queue.MarkSynced(item.ID); err != nil {
		d.logger.Warn("syncqueue: mark synced failed", zap.String("itemId", item.ID), zap.Error(err))
		return false
	}
	d.emit(ctx, eventbus.NewSyncItemEvent(eventbus.KindSyncItemSynced, item.SessionID, item.ID, item.Retries, ""))
	return true
}

// emit dispatches evt on the bus if one was configured, logging (not
// propagating) a handler error the same way the rest of this codebase
// treats Emit failures as best-effort.
func (d *Driver) emit(ctx context.Context, evt eventbus.Event) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Emit(ctx, evt); err != nil {
		d.logger.Warn("syncqueue: event emit failed", zap.String("kind", string(evt.Kind())), zap.Error(err))
	}
}

// backoffDelay implements delay = min(1000*2^(attempt-1), 60000) + random(0..1000)ms.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := int64(60000)
	if attempt-1 < 20 { // avoid overflow on pathological attempt counts
		base = int64(1000) * (1 << uint(attempt-1))
		if base > 60000 {
			base = 60000
		}
	}
	jitter := rand.Int63n(1000)
	return time.Duration(base+jitter) * time.Millisecond
}
