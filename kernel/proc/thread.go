package proc

import (
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
)

// Cid is a context id: a thread identifier unique within its owning
// process.
type Cid uint32

// Priority is a thread's scheduling priority. The scheduler grants
// progressively longer timeslices to higher priorities (config.TimesliceTicks).
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Status is a thread's scheduling state. A thread is in exactly one of
// these at any moment, and (iff Runnable) on exactly one ready queue.
type Status uint8

const (
	StatusRunnable Status = iota
	StatusSleeping
	StatusWaitingOnProcess
	StatusWaitingOnThread
	StatusWaitingOnFutex
	StatusDead
)

// WaitInfo carries the parameters of whichever non-Runnable status a
// thread currently holds. Only the fields relevant to Status are
// meaningful.
type WaitInfo struct {
	// WakeAtMs is the absolute boot-relative millisecond at which a
	// Sleeping thread becomes Runnable.
	WakeAtMs uint64

	// WaitPid is the process a WaitingOnProcess thread is blocked on.
	WaitPid Pid
	// WaitCid is the thread a WaitingOnThread thread is blocked on.
	WaitCid Cid

	// FutexAddr/FutexExpected/FutexTimeoutMs describe a
	// WaitingOnFutex thread's wait condition.
	FutexAddr      uintptr
	FutexExpected  uint32
	FutexTimeoutMs uint64
	// TimedOut is set when a wait concluded because the timeout
	// elapsed rather than because the wake condition was observed.
	TimedOut bool
}

// Context is the saved CPU register set an arch context-switch stub
// restores when scheduling this thread. Only the fields a host process can
// meaningfully model are kept; a real arch layer additionally saves FPU/SSE
// state and segment registers.
type Context struct {
	InstructionPointer uintptr
	StackPointer       uintptr
	ArgRegisters       [4]uintptr
}

// Thread is a schedulable context belonging to exactly one Process. Threads
// keep a non-owning back-reference to their process (the process owns
// threads strongly; it always outlives them by construction).
type Thread struct {
	Cid      Cid
	Process  *Process
	Priority Priority

	mu     sync.Mutex
	status Status
	wait   WaitInfo
	regs   Context

	// ticksRemaining is the number of scheduler ticks left in this
	// thread's current timeslice; replenished from config.Timeslices
	// each time it is granted the CPU.
	ticksRemaining uint32

	stack  *vmm.TrackedMapping
	kstack *vmm.TrackedMapping
	tls    *vmm.TrackedMapping
	abi    *vmm.TrackedMapping

	waiters []chan struct{}
}

// NewThread constructs a runnable thread with the given identity, initial
// register context, and stack allocations. tls may be nil (TLS is
// optional).
func NewThread(cid Cid, proc *Process, priority Priority, regs Context, stack, kstack, tls *vmm.TrackedMapping) *Thread {
	return &Thread{
		Cid:      cid,
		Process:  proc,
		Priority: priority,
		status:   StatusRunnable,
		regs:     regs,
		stack:    stack,
		kstack:   kstack,
		tls:      tls,
	}
}

// SetAbiMapping records the tracked mapping backing this thread's
// argv/envp/AbiStructures block, so Release can unmap it alongside the
// thread's stacks when the thread exits.
func (t *Thread) SetAbiMapping(m *vmm.TrackedMapping) {
	t.mu.Lock()
	t.abi = m
	t.mu.Unlock()
}

// Release unmaps every VAS allocation owned exclusively by this thread
// (its stacks, TLS, and ABI block). Called once the thread is fully
// removed from every ready/wait queue.
func (t *Thread) Release() {
	for _, m := range []*vmm.TrackedMapping{t.stack, t.kstack, t.tls, t.abi} {
		if m != nil {
			_ = m.Close()
		}
	}
}

// Status returns the thread's current scheduling status.
func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// WaitInfo returns a copy of the thread's current wait parameters,
// meaningful only for the non-Runnable statuses.
func (t *Thread) WaitInfo() WaitInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wait
}

// Context returns a copy of the thread's saved register set.
func (t *Thread) Context() Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regs
}

// SetContext overwrites the thread's saved register set, used by the
// context-switch stub when the thread is preempted.
func (t *Thread) SetContext(c Context) {
	t.mu.Lock()
	t.regs = c
	t.mu.Unlock()
}

// SetRunnable transitions the thread to Runnable, clearing any wait state.
// A dead thread cannot become runnable again.
func (t *Thread) SetRunnable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusDead {
		return
	}
	t.status = StatusRunnable
	t.wait = WaitInfo{}
}

// SetSleeping transitions the thread to Sleeping until wakeAtMs.
func (t *Thread) SetSleeping(wakeAtMs uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusSleeping
	t.wait = WaitInfo{WakeAtMs: wakeAtMs}
}

// SetWaitingOnProcess transitions the thread to WaitingOnProcess(pid).
func (t *Thread) SetWaitingOnProcess(pid Pid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusWaitingOnProcess
	t.wait = WaitInfo{WaitPid: pid}
}

// SetWaitingOnThread transitions the thread to WaitingOnThread(cid).
func (t *Thread) SetWaitingOnThread(cid Cid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusWaitingOnThread
	t.wait = WaitInfo{WaitCid: cid}
}

// SetWaitingOnFutex transitions the thread to WaitingOnFutex(addr, expected,
// timeout).
func (t *Thread) SetWaitingOnFutex(addr uintptr, expected uint32, timeoutAtMs uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusWaitingOnFutex
	t.wait = WaitInfo{FutexAddr: addr, FutexExpected: expected, FutexTimeoutMs: timeoutAtMs}
}

// markDead transitions the thread to Dead. Called by Process.Kill and by
// thread_exit; it is unexported because only the owning process drives
// this transition (it must fold the last-thread-exits-the-process logic in
// the same step).
func (t *Thread) markDead() {
	t.mu.Lock()
	t.status = StatusDead
	t.wait = WaitInfo{}
	waiters := t.waiters
	t.waiters = nil
	t.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// AddWaiter registers a channel that is closed once this thread becomes
// dead, used by futex.WaitTid (wait_tid). If the thread is already dead,
// the channel is closed immediately.
func (t *Thread) AddWaiter() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan struct{})
	if t.status == StatusDead {
		close(ch)
		return ch
	}
	t.waiters = append(t.waiters, ch)
	return ch
}

// Exit marks the thread dead, reaps its thread-local resources, releases
// its VAS allocations, and folds the "last thread in process" exit-code
// logic via Process.ThreadExited. This is the thread_exit syscall's entry
// point into the process/thread model.
func (t *Thread) Exit(code int32) {
	t.markDead()
	if t.Process != nil {
		t.Process.Resources().RemoveLocalForThread(t.Cid)
	}
	t.Release()
	if t.Process != nil {
		t.Process.ThreadExited(t.Cid, code)
	}
}

// MarkTimedOut records that a WaitingOnFutex wait concluded via timeout
// rather than observing the wake condition, then transitions to Runnable.
// Unlike SetRunnable, the TimedOut flag in WaitInfo survives the
// transition so the waiter (futex.Wait) can observe it once scheduled.
func (t *Thread) MarkTimedOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusDead {
		return
	}
	t.wait.TimedOut = true
	t.status = StatusRunnable
}

// ResetTimeslice reloads the thread's remaining tick count from n, called
// whenever the scheduler grants it the CPU.
func (t *Thread) ResetTimeslice(n uint32) {
	t.mu.Lock()
	t.ticksRemaining = n
	t.mu.Unlock()
}

// Tick consumes one scheduler tick and reports whether the timeslice is
// exhausted (i.e. the ready queue should advance).
func (t *Thread) Tick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticksRemaining > 0 {
		t.ticksRemaining--
	}
	return t.ticksRemaining == 0
}

// Stack/KernelStack/TLS return the thread's tracked VAS allocations, nil if
// not applicable (TLS is optional).
func (t *Thread) Stack() *vmm.TrackedMapping       { return t.stack }
func (t *Thread) KernelStack() *vmm.TrackedMapping { return t.kstack }
func (t *Thread) TLS() *vmm.TrackedMapping         { return t.tls }
