package syncqueue

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Transport delivers a queue item to the external sync target. Send should
// be idempotent: the driver may call it again after a crash before a prior
// call's effect was observed.
type Transport interface {
	Send(ctx context.Context, item Item) error
}

// NoopTransport is the default transport: it marks every item synced
// immediately, minus the actual HTTPS upload call, which is explicitly out
// of scope for this runtime.
type NoopTransport struct{}

// Send always succeeds without doing anything.
func (NoopTransport) Send(context.Context, Item) error { return nil }

var _ Transport = NoopTransport{}

// notification is the small payload published to NATS when an item becomes
// ready — never the item's data, only enough for a subscriber to look it up.
type notification struct {
	ItemID    string   `json:"itemId"`
	Type      ItemType `json:"type"`
	SessionID string   `json:"sessionId"`
}

// NATSNotifyingTransport wraps an inner Transport and additionally
// publishes a notification to a configured subject whenever Send succeeds,
// so external consumers (e.g. a separate upload worker) can react without
// polling the directory. Losing the NATS connection never blocks the
// inner transport — the publish error is logged and dropped.
type NATSNotifyingTransport struct {
	inner   Transport
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSNotifyingTransport wraps inner with NATS notification-on-success.
// conn may be nil — in that case notifications are silently skipped,
// matching the teacher's "NATS is optional infrastructure" connection
// pattern (the daemon runs fine without a broker configured).
func NewNATSNotifyingTransport(inner Transport, conn *nats.Conn, subject string, logger *zap.Logger) *NATSNotifyingTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifyingTransport{inner: inner, conn: conn, subject: subject, logger: logger}
}

// Send delegates to the inner transport, then best-effort publishes a
// notification if a NATS connection is configured.
func (t *NATSNotifyingTransport) Send(ctx context.Context, item Item) error {
	if err := t.inner.Send(ctx, item); err != nil {
		return err
	}
	t.notify(item)
	return nil
}

func (t *NATSNotifyingTransport) notify(item Item) {
	if t.conn == nil {
		return
	}
	payload, err := json.Marshal(notification{ItemID: item.ID, Type: item.Type, SessionID: item.SessionID})
	if err != nil {
		t.logger.Warn("syncqueue: failed to marshal notification", zap.Error(err))
		return
	}
	if err := t.conn.Publish(t.subject, payload); err != nil {
		t.logger.Warn("syncqueue: failed to publish notification, dropping", zap.Error(err), zap.String("itemId", item.ID))
	}
}

var _ Transport = (*NATSNotifyingTransport)(nil)
