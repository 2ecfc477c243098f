package sched

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/config"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(t *uint64) Clock {
	return func() uint64 { return *t }
}

func newTestThread(proc_ *proc.Process, cid proc.Cid, pri proc.Priority) *proc.Thread {
	return proc.NewThread(cid, proc_, pri, proc.Context{}, nil, nil, nil)
}

func TestRoundRobinWithinPriority(t *testing.T) {
	config.Set(config.Config{Timeslices: config.TimesliceTicks{Low: 1, Medium: 3, High: 5}, TickIntervalMs: 5})
	defer config.Set(config.Default())

	var now uint64
	table := proc.NewTable()
	s := New(1, table, fakeClock(&now))

	a := newTestThread(nil, 1, proc.PriorityMedium)
	b := newTestThread(nil, 2, proc.PriorityMedium)
	s.Enqueue(a, 0)
	s.Enqueue(b, 0)

	cur, ok := s.Current(0)
	require.True(t, ok)
	assert.Equal(t, proc.Cid(1), cur.Cid)

	// Medium gets 3 ticks before the queue advances.
	s.Tick(0)
	s.Tick(0)
	cur, _ = s.Current(0)
	assert.Equal(t, proc.Cid(1), cur.Cid, "should still be A before its timeslice is exhausted")

	s.Tick(0)
	cur, _ = s.Current(0)
	assert.Equal(t, proc.Cid(2), cur.Cid, "B should now be at the head after A's timeslice expired")
}

func TestLowPriorityDoesNotStarve(t *testing.T) {
	config.Set(config.Config{Timeslices: config.TimesliceTicks{Low: 1, Medium: 3, High: 5}, TickIntervalMs: 5})
	defer config.Set(config.Default())

	var now uint64
	table := proc.NewTable()
	s := New(1, table, fakeClock(&now))

	low := newTestThread(nil, 1, proc.PriorityLow)
	high := newTestThread(nil, 2, proc.PriorityHigh)
	s.Enqueue(low, 0)
	s.Enqueue(high, 0)

	seenLow := 0
	for i := 0; i < 12; i++ {
		cur, ok := s.Current(0)
		require.True(t, ok)
		if cur.Cid == low.Cid {
			seenLow++
		}
		s.Tick(0)
	}
	assert.Greater(t, seenLow, 0, "low priority thread should get scheduled at least once")
}

func TestSleepingThreadWakesAfterDeadline(t *testing.T) {
	var now uint64
	table := proc.NewTable()
	s := New(1, table, fakeClock(&now))

	a := newTestThread(nil, 1, proc.PriorityMedium)
	b := newTestThread(nil, 2, proc.PriorityMedium)
	s.Enqueue(a, 0)
	s.Enqueue(b, 0)

	a.SetSleeping(100)
	s.Block(0)
	assert.Equal(t, proc.StatusSleeping, a.Status())

	now = 50
	s.Tick(0)
	assert.Equal(t, proc.StatusSleeping, a.Status(), "should still be sleeping before its deadline")

	now = 100
	s.Tick(0)
	assert.Equal(t, proc.StatusRunnable, a.Status(), "should wake once now >= wake_at_ms")
}

func TestWaitingOnProcessWakesWhenTargetDies(t *testing.T) {
	var now uint64
	table := proc.NewTable()
	s := New(1, table, fakeClock(&now))

	targetPid := table.AllocatePid()
	target := proc.NewProcess(targetPid, 0, "target", "sys:/", nil, nil)
	table.Register(target)

	waiter := newTestThread(nil, 1, proc.PriorityMedium)
	s.Enqueue(waiter, 0)
	waiter.SetWaitingOnProcess(targetPid)
	s.Block(0)

	s.Tick(0)
	assert.Equal(t, proc.StatusWaitingOnProcess, waiter.Status())

	target.Kill(7)
	s.Tick(0)
	assert.Equal(t, proc.StatusRunnable, waiter.Status())
}

func TestLeastLoadedCPUChosenWhenNoAffinityRequested(t *testing.T) {
	var now uint64
	table := proc.NewTable()
	s := New(2, table, fakeClock(&now))

	s.Enqueue(newTestThread(nil, 1, proc.PriorityMedium), 0)
	s.Enqueue(newTestThread(nil, 2, proc.PriorityMedium), -1)

	assert.Equal(t, 1, s.cpu(1).ReadyLen(), "second enqueue should land on the less loaded CPU 1")
}
