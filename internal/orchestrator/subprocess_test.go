package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostProcessStreamsStdoutChunks(t *testing.T) {
	proc := NewHostProcess("sh", []string{"-c", "printf 'hello\\nworld\\n'"}, t.TempDir())

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{})

	handler := func(_ context.Context, chunk []byte) error {
		mu.Lock()
		received = append(received, chunk...)
		mu.Unlock()
		return nil
	}

	require.NoError(t, proc.Start(context.Background(), handler))

	go func() {
		_ = proc.Stop(context.Background(), time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subprocess did not exit in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, string(received), "hello")
	assert.Contains(t, string(received), "world")
}

func TestHostProcessStopEscalatesToSigkillAfterGrace(t *testing.T) {
	proc := NewHostProcess("sh", []string{"-c", "trap '' TERM; sleep 30"}, t.TempDir())
	require.NoError(t, proc.Start(context.Background(), func(context.Context, []byte) error { return nil }))

	start := time.Now()
	err := proc.Stop(context.Background(), 200*time.Millisecond)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 5*time.Second)
	_ = err // process was killed; exit status is platform dependent
}

func TestHostProcessStopOnNeverStartedIsNoOp(t *testing.T) {
	proc := NewHostProcess("sh", []string{"-c", "true"}, t.TempDir())
	assert.NoError(t, proc.Stop(context.Background(), time.Second))
}

func TestHostProcessDoubleStartErrors(t *testing.T) {
	proc := NewHostProcess("sh", []string{"-c", "sleep 1"}, t.TempDir())
	require.NoError(t, proc.Start(context.Background(), func(context.Context, []byte) error { return nil }))
	err := proc.Start(context.Background(), func(context.Context, []byte) error { return nil })
	assert.Error(t, err)
	_ = proc.Stop(context.Background(), time.Second)
}
