package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadStatusTransitions(t *testing.T) {
	th := NewThread(0, nil, PriorityMedium, Context{}, nil, nil, nil)
	require.Equal(t, StatusRunnable, th.Status())

	th.SetSleeping(5000)
	assert.Equal(t, StatusSleeping, th.Status())
	assert.Equal(t, uint64(5000), th.WaitInfo().WakeAtMs)

	th.SetRunnable()
	assert.Equal(t, StatusRunnable, th.Status())

	th.SetWaitingOnProcess(42)
	assert.Equal(t, StatusWaitingOnProcess, th.Status())
	assert.Equal(t, Pid(42), th.WaitInfo().WaitPid)

	th.SetWaitingOnThread(7)
	assert.Equal(t, StatusWaitingOnThread, th.Status())
	assert.Equal(t, Cid(7), th.WaitInfo().WaitCid)

	th.SetWaitingOnFutex(0x1000, 0, 9000)
	assert.Equal(t, StatusWaitingOnFutex, th.Status())
	info := th.WaitInfo()
	assert.Equal(t, uintptr(0x1000), info.FutexAddr)
	assert.Equal(t, uint32(0), info.FutexExpected)
	assert.Equal(t, uint64(9000), info.FutexTimeoutMs)

	th.markDead()
	assert.Equal(t, StatusDead, th.Status())

	// A dead thread cannot be resurrected.
	th.SetRunnable()
	assert.Equal(t, StatusDead, th.Status())
}

func TestThreadTimesliceExhaustion(t *testing.T) {
	th := NewThread(0, nil, PriorityLow, Context{}, nil, nil, nil)
	th.ResetTimeslice(3)

	assert.False(t, th.Tick())
	assert.False(t, th.Tick())
	assert.True(t, th.Tick(), "third tick should exhaust a 3-tick slice")
	// further ticks remain "exhausted" (saturating at zero).
	assert.True(t, th.Tick())
}

func TestThreadMarkTimedOut(t *testing.T) {
	th := NewThread(0, nil, PriorityHigh, Context{}, nil, nil, nil)
	th.SetWaitingOnFutex(0x2000, 1, 1000)
	th.MarkTimedOut()
	assert.Equal(t, StatusRunnable, th.Status())
}
