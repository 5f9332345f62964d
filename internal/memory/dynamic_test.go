package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStackPushPopAndCurrentTask(t *testing.T) {
	d := NewDynamic()
	assert.Equal(t, "", d.CurrentTask())

	d.PushTask("implement parser")
	d.PushTask("fix edge case")
	assert.Equal(t, "fix edge case", d.CurrentTask())
	assert.Equal(t, 2, d.TaskDepth())

	name, ok := d.PopTask()
	assert.True(t, ok)
	assert.Equal(t, "fix edge case", name)
	assert.Equal(t, "implement parser", d.CurrentTask())

	_, _ = d.PopTask()
	_, ok = d.PopTask()
	assert.False(t, ok)
}

func TestPendingDecisionsAddAndResolve(t *testing.T) {
	d := NewDynamic()
	d.AddPendingDecision(Decision{Decision: "pick a database"})
	d.AddPendingDecision(Decision{Decision: "pick a cache"})

	assert.True(t, d.ResolvePendingDecision(0))
	snap := d.Snapshot()
	assert.Len(t, snap.PendingDecisions, 1)
	assert.Equal(t, "pick a cache", snap.PendingDecisions[0].Decision)

	assert.False(t, d.ResolvePendingDecision(5))
}

func TestErrorWindowEvictsOldestBeyondTen(t *testing.T) {
	d := NewDynamic()
	for i := 0; i < 15; i++ {
		d.RecordError(ErrorEntry{Message: fmt.Sprintf("err%d", i)})
	}
	snap := d.Snapshot()
	assert.Len(t, snap.ErrorContext, maxErrorWindow)
	assert.Equal(t, "err5", snap.ErrorContext[0].Message)
	assert.Equal(t, "err14", snap.ErrorContext[len(snap.ErrorContext)-1].Message)
}
