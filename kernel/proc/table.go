package proc

import (
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
)

// Table is the kernel's global process table: a Pid -> *Process map guarded
// by a single RwLock: reads of the process list are common, writes
// rare. There is one Table per running kernel instance
// (see proc.Global); tests construct their own via NewTable for isolation.
type Table struct {
	mu        sync.RWMutex
	processes map[Pid]*Process
	nextPid   Pid
}

// NewTable returns an empty process table. Pid 0 is never issued (it is
// reserved to mean "no parent"/"kernel").
func NewTable() *Table {
	return &Table{processes: make(map[Pid]*Process), nextPid: 1}
}

var (
	globalOnce  sync.Once
	globalTable *Table
)

// Global returns the process-wide singleton process table, constructing it
// on first use.
func Global() *Table {
	globalOnce.Do(func() { globalTable = NewTable() })
	return globalTable
}

// AllocatePid reserves the next PID from the global slab. PIDs are never
// reused while the table holds a reference to the prior holder.
func (t *Table) AllocatePid() Pid {
	t.mu.Lock()
	defer t.mu.Unlock()
	pid := t.nextPid
	t.nextPid++
	return pid
}

// Register inserts p into the table, keyed by its Pid.
func (t *Table) Register(p *Process) {
	t.mu.Lock()
	t.processes[p.Pid] = p
	t.mu.Unlock()
	klog.WithFields(klog.Fields{"pid": p.Pid, "ppid": p.ParentPid(), "name": p.Name}).Infof("process registered")
}

// Lookup returns the process with the given Pid, if still registered.
func (t *Table) Lookup(pid Pid) (*Process, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.processes[pid]
	return p, ok
}

// Remove drops pid from the table, used once a parent has reaped its exit
// code (wait_pid) and it transitions to Removed.
func (t *Table) Remove(pid Pid) {
	t.mu.Lock()
	delete(t.processes, pid)
	t.mu.Unlock()
	klog.WithFields(klog.Fields{"pid": pid}).Infof("process removed")
}

// ForEach calls fn for every currently registered process, in an
// unspecified order. fn must not mutate the table.
func (t *Table) ForEach(fn func(*Process)) {
	t.mu.RLock()
	snapshot := make([]*Process, 0, len(t.processes))
	for _, p := range t.processes {
		snapshot = append(snapshot, p)
	}
	t.mu.RUnlock()

	for _, p := range snapshot {
		fn(p)
	}
}

// Len reports how many processes are currently registered.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.processes)
}

// ReparentOrphans atomically rewrites ppid to killer for every process
// whose current parent is victim, implementing orphan reparenting.
func (t *Table) ReparentOrphans(victim, killer Pid) {
	t.mu.RLock()
	snapshot := make([]*Process, 0, len(t.processes))
	for _, p := range t.processes {
		snapshot = append(snapshot, p)
	}
	t.mu.RUnlock()

	for _, p := range snapshot {
		if p.Pid == victim {
			continue
		}
		if p.ParentPid() == victim {
			p.SetParentPid(killer)
			klog.WithFields(klog.Fields{"pid": p.Pid, "old_ppid": victim, "new_ppid": killer}).Infof("orphan reparented")
		}
	}
}

// IsAncestor reports whether candidate is pid itself or a transitive parent
// of pid, walking the ppid chain. Used by the syscall layer to authorize
// process_kill: a process may only be killed by itself or an ancestor.
func (t *Table) IsAncestor(candidate, pid Pid) bool {
	for {
		if candidate == pid {
			return true
		}
		p, ok := t.Lookup(pid)
		if !ok {
			return false
		}
		ppid := p.ParentPid()
		if ppid == pid || ppid == 0 {
			return ppid == candidate
		}
		pid = ppid
	}
}

// Kill marks every thread of pid dead, fixes its exit code, and reparents
// its children to killerPid. The caller (syscall layer) is responsible for
// the ancestor-walk authorization check via IsAncestor before calling this.
func (t *Table) Kill(pid Pid, exitCode int32, killerPid Pid) (*Process, bool) {
	p, ok := t.Lookup(pid)
	if !ok {
		return nil, false
	}
	p.Kill(exitCode)
	t.ReparentOrphans(pid, killerPid)
	return p, true
}
