// Package futex implements the kernel's userspace-word-addressed wait/wake
// primitive and the process/thread join specializations
// built from the same pattern (wait_pid, wait_tid). Futexes are
// per-process: a (pid, address) pair identifies a distinct wait queue, so
// two processes mapping unrelated memory at the same virtual address never
// interfere.
//
// The wait/wake
// primitive is expressed the way rclone and moby-moby both use
// context.Context to carry cancellation/timeout through a blocking call,
// rather than inventing a bespoke timer. Each blocked caller really
// blocks its own goroutine on a channel — in this host simulation a
// kernel "thread" is driven by the goroutine that issued its syscall, so a
// channel-based wait is the direct, idiomatic analogue of parking a
// thread and having the scheduler wake it later.
package futex

import (
	"context"
	"sync"
	"time"

	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
)

type key struct {
	pid  proc.Pid
	addr uintptr
}

// Registry holds the wait queues for every (pid, addr) futex currently
// being waited on. One Registry is process-wide (see Global); tests
// construct their own for isolation.
type Registry struct {
	mu      sync.Mutex
	waiters map[key][]chan struct{}
}

// NewRegistry returns an empty futex registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[key][]chan struct{})}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide singleton futex registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

func (r *Registry) subscribe(k key) chan struct{} {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.waiters[k] = append(r.waiters[k], ch)
	r.mu.Unlock()
	return ch
}

func (r *Registry) unsubscribe(k key, ch chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[k]
	for i, c := range list {
		if c == ch {
			r.waiters[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[k]) == 0 {
		delete(r.waiters, key{pid: k.pid, addr: k.addr})
	}
}

// Load reads the current value at a userspace-controlled address. Callers
// supply this as a closure over the process's VAS/RAM; the futex package
// itself has no memory access of its own.
type Load func() uint32

// Wait implements wait(addr, expected, timeout): if the
// value Load returns already differs from expected, it returns true
// immediately without yielding. Otherwise it transitions th to
// WaitingOnFutex, parks the calling goroutine until woken by Wake or until
// ctx's deadline elapses, and reports whether it returned because of a
// wake (true) or a timeout (false).
func (r *Registry) Wait(ctx context.Context, pid proc.Pid, th *proc.Thread, addr uintptr, load Load, expected uint32, nowMs func() uint64) bool {
	if load() != expected {
		return true
	}

	var timeoutAt uint64
	if deadline, ok := ctx.Deadline(); ok {
		timeoutAt = nowMs() + uint64(time.Until(deadline).Milliseconds())
	}
	th.SetWaitingOnFutex(addr, expected, timeoutAt)

	k := key{pid: pid, addr: addr}
	ch := r.subscribe(k)
	defer r.unsubscribe(k, ch)

	select {
	case <-ch:
		th.SetRunnable()
		return true
	case <-ctx.Done():
		th.MarkTimedOut()
		return false
	}
}

// Wake implements wake(addr, n): wakes up to n waiters on
// (pid, addr) and returns the number actually transitioned. Semantics are
// per-process: it is a programming error to pass a pid other than the
// caller's own, but Wake does not itself enforce that — the syscall layer
// always supplies the current process's pid.
func (r *Registry) Wake(pid proc.Pid, addr uintptr, n int) int {
	r.mu.Lock()
	k := key{pid: pid, addr: addr}
	list := r.waiters[k]
	woke := 0
	var remaining []chan struct{}
	for _, ch := range list {
		if woke >= n {
			remaining = append(remaining, ch)
			continue
		}
		select {
		case ch <- struct{}{}:
			woke++
		default:
			// Already signaled (shouldn't happen: single-shot channel
			// buffered size 1, one signal per waiter) — keep it parked.
			remaining = append(remaining, ch)
		}
	}
	if len(remaining) == 0 {
		delete(r.waiters, k)
	} else {
		r.waiters[k] = remaining
	}
	r.mu.Unlock()

	klog.WithFields(klog.Fields{"pid": pid, "addr": addr, "woke": woke}).Debugf("futex wake")
	return woke
}

// WaitPid implements wait_pid as a specialization of the wait/wake
// pattern: block until target is no longer Alive, then report its exit
// code. If target is already dead, returns immediately.
func WaitPid(ctx context.Context, th *proc.Thread, target *proc.Process) (exitCode int32, timedOut bool) {
	if target.State() != proc.StateAlive {
		return target.ExitCode(), false
	}

	th.SetWaitingOnProcess(target.Pid)
	ch := target.AddWaiter()

	select {
	case <-ch:
		th.SetRunnable()
		return target.ExitCode(), false
	case <-ctx.Done():
		th.MarkTimedOut()
		return 0, true
	}
}

// WaitTid implements wait_tid: block until target is Dead.
func WaitTid(ctx context.Context, th *proc.Thread, target *proc.Thread) (timedOut bool) {
	if target.Status() == proc.StatusDead {
		return false
	}

	th.SetWaitingOnThread(target.Cid)
	ch := target.AddWaiter()

	select {
	case <-ch:
		th.SetRunnable()
		return false
	case <-ctx.Done():
		th.MarkTimedOut()
		return true
	}
}
