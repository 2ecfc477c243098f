package sched

import (
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/config"
	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
)

// Clock returns the current boot-relative time in milliseconds. Production
// code supplies a monotonic wall-clock reader; tests supply a deterministic
// fake.
type Clock func() uint64

// CPU is a single processor's scheduling state: one ready queue of
// Runnable threads plus the set of Sleeping/Waiting threads assigned to
// it, inspected lazily each tick.
type CPU struct {
	id int

	ready *ReadyQueue

	mu      sync.Mutex
	waiting []*proc.Thread
	current *proc.Thread
}

func newCPU(id int) *CPU {
	return &CPU{id: id, ready: NewReadyQueue()}
}

// ID returns the CPU's index.
func (c *CPU) ID() int { return c.id }

// ReadyLen reports how many threads are ready to run on this CPU.
func (c *CPU) ReadyLen() int { return c.ready.Len() }

// WaitingLen reports how many threads are parked (sleeping/waiting) on
// this CPU.
func (c *CPU) WaitingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting)
}

// Scheduler owns every CPU's ready queue and drives the timer-tick,
// yield, and block transitions. The per-CPU struct-plus-mutex shape
// follows the rest of this module's memory subsystems.
type Scheduler struct {
	cpus  []*CPU
	table *proc.Table
	clock Clock
}

// New constructs a Scheduler with nCPUs online processors, backed by
// table for process/thread lookups the wake policies need, and clock for
// the current boot-relative time.
func New(nCPUs int, table *proc.Table, clock Clock) *Scheduler {
	s := &Scheduler{table: table, clock: clock}
	for i := 0; i < nCPUs; i++ {
		s.cpus = append(s.cpus, newCPU(i))
	}
	return s
}

// CPUs returns the online CPU count.
func (s *Scheduler) CPUs() int { return len(s.cpus) }

// CPU returns the per-CPU scheduling state at index id, for callers that
// only need to inspect queue depths (e.g. metrics reporting) rather than
// drive a tick/yield/block transition.
func (s *Scheduler) CPU(id int) *CPU { return s.cpus[id] }

func (s *Scheduler) cpu(id int) *CPU {
	return s.cpus[id]
}

func timesliceFor(p proc.Priority) uint32 {
	t := config.Get().Timeslices
	switch p {
	case proc.PriorityLow:
		return t.Low
	case proc.PriorityHigh:
		return t.High
	default:
		return t.Medium
	}
}

// leastLoadedCPU returns the index of the CPU with the fewest ready
// threads, implementing the "choose CPU = None" spawn policy: a
// one-time least-loaded pick at spawn time, never migrated afterward
// (no SMP load balancing).
func (s *Scheduler) leastLoadedCPU() int {
	best := 0
	bestLen := s.cpus[0].ReadyLen()
	for i, c := range s.cpus {
		if n := c.ReadyLen(); n < bestLen {
			best, bestLen = i, n
		}
	}
	return best
}

// Enqueue places t onto cpu's ready queue, or the least-loaded online CPU
// if cpu < 0, and grants it a fresh timeslice.
func (s *Scheduler) Enqueue(t *proc.Thread, cpu int) {
	if cpu < 0 {
		cpu = s.leastLoadedCPU()
	}
	t.ResetTimeslice(timesliceFor(t.Priority))
	s.cpu(cpu).ready.PushBack(t)
	klog.WithFields(klog.Fields{"cid": t.Cid, "cpu": cpu, "priority": t.Priority}).Debugf("thread enqueued")
}

// Current returns the thread at the head of cpuID's ready queue — the one
// logically executing — if any.
func (s *Scheduler) Current(cpuID int) (*proc.Thread, bool) {
	return s.cpu(cpuID).ready.Front()
}

// checkWakeups walks cpu's waiting set, applying the wake-up
// policies, and promotes any thread that became Runnable back onto the
// ready queue.
func (c *CPU) checkWakeups(now uint64, table *proc.Table) {
	c.mu.Lock()
	var remaining []*proc.Thread
	var promoted []*proc.Thread
	for _, th := range c.waiting {
		switch th.Status() {
		case proc.StatusSleeping:
			if now >= th.WaitInfo().WakeAtMs {
				th.SetRunnable()
			}
		case proc.StatusWaitingOnProcess:
			pid := th.WaitInfo().WaitPid
			p, ok := table.Lookup(pid)
			if !ok || p.State() != proc.StateAlive {
				th.SetRunnable()
			}
		case proc.StatusWaitingOnThread:
			target := th.WaitInfo().WaitCid
			dead := true
			if th.Process != nil {
				for _, sib := range th.Process.Threads() {
					if sib.Cid == target && sib.Status() != proc.StatusDead {
						dead = false
						break
					}
				}
			}
			if dead {
				th.SetRunnable()
			}
		case proc.StatusWaitingOnFutex:
			if now >= th.WaitInfo().FutexTimeoutMs {
				th.MarkTimedOut()
			}
		}

		switch th.Status() {
		case proc.StatusRunnable:
			promoted = append(promoted, th)
		case proc.StatusDead:
			// dropped: a dead thread is scheduled nowhere.
		default:
			remaining = append(remaining, th)
		}
	}
	c.waiting = remaining
	c.mu.Unlock()

	for _, th := range promoted {
		th.ResetTimeslice(timesliceFor(th.Priority))
		c.ready.PushBack(th)
	}
}

// promoteNewFront grants a fresh timeslice to whichever thread is now at
// the head of the ready queue, if any.
func (c *CPU) promoteNewFront() {
	if front, ok := c.ready.Front(); ok {
		front.ResetTimeslice(timesliceFor(front.Priority))
	}
}

// Tick runs one timer-tick's worth of scheduling work on cpuID: apply wake
// policies, then consume one tick of the head thread's timeslice, rotating
// the ready queue if it is exhausted. This only
// preempts a Runnable userspace thread; a thread that entered a wait
// status on its own is expected to have already called Block.
func (s *Scheduler) Tick(cpuID int) {
	c := s.cpu(cpuID)
	c.checkWakeups(s.clock(), s.table)

	front, ok := c.ready.Front()
	if !ok {
		return
	}
	if front.Status() != proc.StatusRunnable {
		// Defensive: a thread left Runnable without the caller invoking
		// Block first. Move it into the waiting set so it is not ticked
		// as if still executing.
		th, _ := c.ready.PopFront()
		c.mu.Lock()
		c.waiting = append(c.waiting, th)
		c.mu.Unlock()
		c.promoteNewFront()
		return
	}

	if front.Tick() {
		c.ready.AdvanceCircular()
		c.promoteNewFront()
	}
}

// Yield implements thread::current::yield_now(): the head thread gives up
// the remainder of its timeslice immediately.
func (s *Scheduler) Yield(cpuID int) {
	c := s.cpu(cpuID)
	if front, ok := c.ready.Front(); ok && front.Status() == proc.StatusRunnable {
		c.ready.AdvanceCircular()
		c.promoteNewFront()
	}
}

// Block moves the head thread — which must already have transitioned to a
// non-Runnable status via one of proc.Thread's SetSleeping/
// SetWaitingOnProcess/SetWaitingOnThread/SetWaitingOnFutex — out of the
// ready queue and into cpuID's waiting set, then promotes the next ready
// thread. This is the suspension point of entering a
// Sleeping/Waiting status followed by yield_now().
func (s *Scheduler) Block(cpuID int) {
	c := s.cpu(cpuID)
	th, ok := c.ready.PopFront()
	if !ok {
		return
	}
	c.mu.Lock()
	c.waiting = append(c.waiting, th)
	c.mu.Unlock()
	c.promoteNewFront()
}

// RemoveThread removes t from whichever ready/waiting set it currently
// occupies on cpuID, used once a thread is marked dead so it is not
// scheduled again.
func (s *Scheduler) RemoveThread(cpuID int, t *proc.Thread) {
	c := s.cpu(cpuID)
	c.ready.RemoveWhere(func(th *proc.Thread) bool { return th == t })

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, th := range c.waiting {
		if th == t {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			return
		}
	}
}

// RemoveThreadAll removes t from every CPU's ready/waiting sets. Used by
// process-wide teardown (process_exit, process_kill), where the caller does
// not know which CPU each of the victim's threads was placed on at spawn.
func (s *Scheduler) RemoveThreadAll(t *proc.Thread) {
	for id := range s.cpus {
		s.RemoveThread(id, t)
	}
}
