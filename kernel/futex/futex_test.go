package futex

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsImmediatelyWhenValueAlreadyDiffers(t *testing.T) {
	reg := NewRegistry()
	th := proc.NewThread(1, nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)

	load := func() uint32 { return 1 }
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	notTimedOut := reg.Wait(ctx, 1, th, 0x1000, load, 0 /* expected */, func() uint64 { return 0 })
	assert.True(t, notTimedOut)
	assert.Equal(t, proc.StatusRunnable, th.Status(), "should never have transitioned to WaitingOnFutex")
}

func TestWaitWakeHandshake(t *testing.T) {
	reg := NewRegistry()
	th := proc.NewThread(1, nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)

	var flag uint32
	load := func() uint32 { return atomic.LoadUint32(&flag) }

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- reg.Wait(ctx, 7, th, 0x2000, load, 0, func() uint64 { return 0 })
	}()

	// Give the waiter goroutine time to register before waking it.
	time.Sleep(20 * time.Millisecond)
	atomic.StoreUint32(&flag, 1)
	woke := reg.Wake(7, 0x2000, 1)
	assert.Equal(t, 1, woke)

	select {
	case notTimedOut := <-done:
		assert.True(t, notTimedOut)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestWakeReturnsAtMostMinNAndWaiterCount(t *testing.T) {
	reg := NewRegistry()
	const n = 3
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		th := proc.NewThread(proc.Cid(i), nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)
		go func(th *proc.Thread) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reg.Wait(ctx, 1, th, 0x3000, func() uint32 { return 0 }, 0, func() uint64 { return 0 })
			done <- struct{}{}
		}(th)
	}
	time.Sleep(20 * time.Millisecond)

	woke := reg.Wake(1, 0x3000, 2)
	assert.Equal(t, 2, woke)

	for i := 0; i < 2; i++ {
		<-done
	}
}

func TestWaitTimesOut(t *testing.T) {
	reg := NewRegistry()
	th := proc.NewThread(1, nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	notTimedOut := reg.Wait(ctx, 1, th, 0x4000, func() uint32 { return 0 }, 0, func() uint64 { return 0 })
	assert.False(t, notTimedOut)
	assert.True(t, th.WaitInfo().TimedOut)
}

func TestWaitPidReturnsExitCodeAfterDeath(t *testing.T) {
	target := proc.NewProcess(99, 0, "child", "sys:/", nil, nil)
	th := proc.NewThread(1, nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)

	done := make(chan int32, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		code, timedOut := WaitPid(ctx, th, target)
		require.False(t, timedOut)
		done <- code
	}()

	time.Sleep(20 * time.Millisecond)
	target.Kill(42)

	select {
	case code := <-done:
		assert.Equal(t, int32(42), code)
	case <-time.After(time.Second):
		t.Fatal("wait_pid did not return")
	}
}

func TestWaitTidReturnsAfterThreadExit(t *testing.T) {
	target := proc.NewThread(5, nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)
	waiter := proc.NewThread(1, nil, proc.PriorityMedium, proc.Context{}, nil, nil, nil)

	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		timedOut := WaitTid(ctx, waiter, target)
		done <- timedOut
	}()

	time.Sleep(20 * time.Millisecond)
	target.Exit(0)

	select {
	case timedOut := <-done:
		assert.False(t, timedOut)
	case <-time.After(time.Second):
		t.Fatal("wait_tid did not return")
	}
}
