package syncqueue

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNoopTransportAlwaysSucceeds(t *testing.T) {
	var tr NoopTransport
	err := tr.Send(context.Background(), Item{ID: "x", SessionID: "s1"})
	assert.NoError(t, err)
}

func TestNATSNotifyingTransportNoOpsWithNilConn(t *testing.T) {
	tr := NewNATSNotifyingTransport(NoopTransport{}, nil, "ctxrd.sync", zap.NewNop())
	err := tr.Send(context.Background(), Item{ID: "x", SessionID: "s1"})
	assert.NoError(t, err)
}

func TestNATSNotifyingTransportPropagatesInnerError(t *testing.T) {
	tr := NewNATSNotifyingTransport(failingTransport{}, nil, "ctxrd.sync", zap.NewNop())
	err := tr.Send(context.Background(), Item{ID: "x", SessionID: "s1"})
	assert.Error(t, err)
}

func TestNATSNotifyingTransportPublishesNotificationOnSuccess(t *testing.T) {
	srv, conn := startEmbeddedNATS(t)
	defer srv.Shutdown()
	defer conn.Close()

	sub, err := conn.SubscribeSync("ctxrd.sync")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	tr := NewNATSNotifyingTransport(NoopTransport{}, conn, "ctxrd.sync", zap.NewNop())
	err = tr.Send(context.Background(), Item{ID: "item-1", Type: ItemTypeSummary, SessionID: "s1"})
	require.NoError(t, err)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), "item-1")
	assert.Contains(t, string(msg.Data), "s1")
}

type failingTransport struct{}

func (failingTransport) Send(context.Context, Item) error { return assert.AnError }

// startEmbeddedNATS launches an in-process NATS server with no network
// listener reachable outside the test, per the runtime's no-external-process
// testing requirement for the optional notification path.
func startEmbeddedNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(2 * time.Second) {
		t.Fatal("embedded nats server did not start in time")
	}

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	return srv, conn
}
