package syscall

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/SafaOS/SafaOS-sub001/kernel/futex"
	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/metrics"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/sched"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// Syscall is a numeric syscall identifier, the kernel's stable ABI.
type Syscall uint32

const (
	SysProcessExit  Syscall = 0
	SysThreadYield  Syscall = 1
	SysOpenAll      Syscall = 2
	SysWrite        Syscall = 3
	SysRead         Syscall = 4
	SysDestroy      Syscall = 5
	SysCreate       Syscall = 6
	SysCreateDir    Syscall = 7
	SysDirIterOpen  Syscall = 8
	SysDirIterNext  Syscall = 10
	SysWaitPid      Syscall = 11
	SysCtl          Syscall = 12
	SysChdir        Syscall = 14
	SysGetcwd       Syscall = 15
	SysSync         Syscall = 16
	SysTruncate     Syscall = 17
	SysSbrk         Syscall = 18
	SysProcessSpawn Syscall = 19
	SysShutdown     Syscall = 20
	SysReboot       Syscall = 21
	SysSize         Syscall = 22
	SysGetDirEntry  Syscall = 23
	SysAttrs        Syscall = 24
	SysOpen         Syscall = 25
	SysDup          Syscall = 26
	SysUptime       Syscall = 27
	SysRemovePath   Syscall = 28
	SysThreadSpawn  Syscall = 29
)

// PowerAction is the arch-level effect shutdown/reboot request. A host
// simulation cannot actually power off a machine; Dispatcher records the
// request and returns it to the caller (cmd/kernel's main loop acts on
// it) rather than calling os.Exit from inside a syscall handler.
type PowerAction uint8

const (
	PowerNone PowerAction = iota
	PowerShutdown
	PowerReboot
)

// Dispatcher glues the syscall numeric ABI to the process/thread,
// scheduler, VFS, and futex subsystems. One Dispatcher serves every CPU;
// each Dispatch call is scoped to the (process, thread, cpu) the caller
// supplies, mirroring how a real kernel's syscall entry stub resolves
// "current" before calling into subsystem code.
type Dispatcher struct {
	Table *proc.Table
	Sched *sched.Scheduler
	Futex *futex.Registry
	VFS   *vfs.VFS
	Alloc *allocator.BitmapAllocator
	RAM   *pmm.RAM
	Clock func() uint64

	// KernelTable is the kernel page table whose higher half every
	// spawned process's VAS copies. Required by Invoke's spawn path.
	KernelTable *vmm.PageTable

	// Power, if non-nil, receives shutdown/reboot requests so the boot
	// entry point can act on them (a host process cannot power off
	// hardware from inside a syscall handler).
	Power chan PowerAction

	// Metrics, if non-nil, counts open/destroy churn.
	Metrics *metrics.Registry

	BootTimeMs uint64
}

func (d *Dispatcher) countOpen() {
	if d.Metrics != nil {
		d.Metrics.IncVFSOpen()
	}
}

func (d *Dispatcher) countClose() {
	if d.Metrics != nil {
		d.Metrics.IncVFSClose()
	}
}

func (d *Dispatcher) requestPower(action PowerAction) {
	if d.Power == nil {
		return
	}
	select {
	case d.Power <- action:
	default:
	}
}

func (d *Dispatcher) now() uint64 {
	if d.Clock != nil {
		return d.Clock()
	}
	return 0
}

// descriptorCloser adapts *vfs.Descriptor to proc.FileDescriptor and
// proc.DirIter (Close() error), since vfs.Descriptor itself has no Close
// method — closing a file descriptor has no VAS-level side effect beyond
// dropping the handle, unlike closing a tracked mapping.
type descriptorCloser struct{ d *vfs.Descriptor }

func (descriptorCloser) Close() error { return nil }

// --- process/thread lifecycle ---

// ProcessExit implements process_exit: every thread of the calling
// process is marked dead and the exit code fixed.
func (d *Dispatcher) ProcessExit(p *proc.Process, code int32) {
	p.Kill(code)
	for _, th := range p.Threads() {
		d.Sched.RemoveThreadAll(th)
	}
}

// ThreadExit implements thread_exit, the path backing wait_tid: marks th dead, reaps
// its thread-local resources, and removes it from scheduling.
func (d *Dispatcher) ThreadExit(th *proc.Thread, cpuID int, code int32) {
	th.Exit(code)
	d.Sched.RemoveThread(cpuID, th)
}

// ThreadYield implements thread_yield.
func (d *Dispatcher) ThreadYield(cpuID int) {
	d.Sched.Yield(cpuID)
}

// ProcessKill implements process_kill: the killer must be an ancestor of
// the target, checked here by an ancestor walk before anything is killed.
func (d *Dispatcher) ProcessKill(killerPid proc.Pid, targetPid proc.Pid, exitCode int32) ErrorStatus {
	if !d.Table.IsAncestor(killerPid, targetPid) {
		return StatusMissingPermissions
	}
	p, ok := d.Table.Kill(targetPid, exitCode, killerPid)
	if !ok {
		return StatusInvalidPid
	}
	for _, th := range p.Threads() {
		d.Sched.RemoveThreadAll(th)
	}
	return StatusOK
}

// WaitPid implements wait_pid: block until target's process is dead,
// then reap it (removing it from the process table).
func (d *Dispatcher) WaitPid(ctx context.Context, th *proc.Thread, targetPid proc.Pid) (exitCode int32, status ErrorStatus) {
	target, ok := d.Table.Lookup(targetPid)
	if !ok {
		return 0, StatusInvalidPid
	}
	code, timedOut := futex.WaitPid(ctx, th, target)
	if timedOut {
		return 0, StatusBusy
	}
	target.MarkRemoved()
	d.Table.Remove(targetPid)
	return code, StatusOK
}

// WaitTid implements wait_tid: block until the target thread, within
// the same process as th, is dead.
func (d *Dispatcher) WaitTid(ctx context.Context, th *proc.Thread, process *proc.Process, targetCid proc.Cid) ErrorStatus {
	var target *proc.Thread
	for _, sib := range process.Threads() {
		if sib.Cid == targetCid {
			target = sib
			break
		}
	}
	if target == nil {
		return StatusInvalidTid
	}
	if timedOut := futex.WaitTid(ctx, th, target); timedOut {
		return StatusBusy
	}
	return StatusOK
}

// ProcessSpawn implements process_spawn. Argument strings
// (name/argv/envp/image bytes) are assumed already read and validated
// out of the caller's VAS by the syscall entry stub before this is
// called — the spawn operation itself has no pointers of its own to
// validate, only the child's fresh VAS to build.
func (d *Dispatcher) ProcessSpawn(kernelTable *vmm.PageTable, parent *proc.Process, params proc.SpawnParams, enqueue func(*proc.Thread)) (proc.Pid, ErrorStatus) {
	params.ParentPid = parent.Pid
	process, _, err := d.Table.Spawn(params, kernelTable, d.Alloc, d.RAM, parent.Resources(), enqueue)
	if err != nil {
		return 0, FromError(err)
	}
	return process.Pid, StatusOK
}

// ThreadSpawn implements thread_spawn: an additional
// thread within an already-running process, reusing its VAS.
func (d *Dispatcher) ThreadSpawn(process *proc.Process, entry uintptr, priority proc.Priority, stackPages uint, enqueue func(*proc.Thread)) (proc.Cid, ErrorStatus) {
	th, err := d.Table.SpawnThread(process, entry, priority, stackPages, enqueue)
	if err != nil {
		return 0, FromError(err)
	}
	return th.Cid, StatusOK
}

// --- VFS-facing operations ---

// Open implements open/open_all: resolves path against the process's
// VFS-visible namespace (already CWD-joined by the caller) and returns a
// new Ri wrapping the descriptor.
func (d *Dispatcher) Open(process *proc.Process, owner proc.Cid, path string, opts vfs.OpenOptions) (proc.Ri, ErrorStatus) {
	desc, err := d.VFS.OpenAll(path, opts)
	if err != nil {
		return 0, FromError(err)
	}
	r := proc.Resource{Kind: proc.KindFile, File: descriptorCloser{desc}}
	d.countOpen()
	return process.Resources().AddGlobal(r), StatusOK
}

// descriptorOf resolves a File resource to its open descriptor. A Ri that
// names no resource at all is InvalidResource; one that names a resource
// of the wrong variant is NotSupported (the "wrong variant for operation"
// case of the resource table contract).
func (d *Dispatcher) descriptorOf(process *proc.Process, ri proc.Ri) (*vfs.Descriptor, ErrorStatus) {
	r, ok := process.Resources().Get(ri)
	if !ok {
		return nil, StatusInvalidResource
	}
	if r.Kind != proc.KindFile {
		return nil, StatusNotSupported
	}
	dc, ok := r.File.(descriptorCloser)
	if !ok {
		return nil, StatusInvalidResource
	}
	return dc.d, StatusOK
}

// iterDescriptorOf resolves a DirIter resource to its open descriptor.
func (d *Dispatcher) iterDescriptorOf(process *proc.Process, ri proc.Ri) (*vfs.Descriptor, ErrorStatus) {
	r, ok := process.Resources().Get(ri)
	if !ok {
		return nil, StatusInvalidResource
	}
	if r.Kind != proc.KindDirIter {
		return nil, StatusNotSupported
	}
	dc, ok := r.DirIter.(descriptorCloser)
	if !ok {
		return nil, StatusInvalidResource
	}
	return dc.d, StatusOK
}

// Write implements write: signed offset, negative meaning "from end".
func (d *Dispatcher) Write(process *proc.Process, ri proc.Ri, data []byte, offset int64) (int, ErrorStatus) {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return 0, status
	}
	if _, err := desc.Seek(offset, seekWhence(offset)); err != nil {
		return 0, FromError(err)
	}
	n, err := desc.Write(data)
	if err != nil {
		return 0, FromError(err)
	}
	return n, StatusOK
}

// Read implements read.
func (d *Dispatcher) Read(process *proc.Process, ri proc.Ri, buf []byte, offset int64) (int, ErrorStatus) {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return 0, status
	}
	if _, err := desc.Seek(offset, seekWhence(offset)); err != nil {
		return 0, FromError(err)
	}
	n, err := desc.Read(buf)
	if err != nil {
		return 0, FromError(err)
	}
	return n, StatusOK
}

func seekWhence(offset int64) int {
	if offset < 0 {
		return 2
	}
	return 0
}

// Destroy implements destroy: closes any resource kind by Ri.
func (d *Dispatcher) Destroy(process *proc.Process, ri proc.Ri) ErrorStatus {
	r, ok := process.Resources().Get(ri)
	if !ok {
		return StatusInvalidResource
	}
	if r.Kind == proc.KindMapping && r.Mapping != nil {
		_ = r.Mapping.Close()
	}
	process.Resources().Remove(ri)
	d.countClose()
	return StatusOK
}

// Create implements create: creates an empty file without opening it.
func (d *Dispatcher) Create(path string) ErrorStatus {
	return FromError(d.VFS.CreateFile(path))
}

// CreateDir implements create_dir.
func (d *Dispatcher) CreateDir(path string) ErrorStatus {
	return FromError(d.VFS.CreateDir(path))
}

// RemovePath implements remove_path.
func (d *Dispatcher) RemovePath(path string) ErrorStatus {
	return FromError(d.VFS.RemovePath(path))
}

// DirIterOpen implements diriter_open: opens path as a directory and
// returns a DirIter resource Ri. The iterator is registered thread-local
// so it is reaped as soon as the opening thread exits.
func (d *Dispatcher) DirIterOpen(process *proc.Process, owner proc.Cid, path string) (proc.Ri, ErrorStatus) {
	desc, err := d.VFS.Open(path, vfs.OptRead)
	if err != nil {
		return 0, FromError(err)
	}
	r := proc.Resource{Kind: proc.KindDirIter, DirIter: descriptorCloser{desc}}
	d.countOpen()
	return process.Resources().AddLocal(r, owner), StatusOK
}

// DirIterNext implements diriter_next: advances the iterator behind ri
// and returns the next DirEntry, or StatusNoSuchFileOrDirectory once
// exhausted (vfs.ErrEndOfDir).
func (d *Dispatcher) DirIterNext(process *proc.Process, ri proc.Ri) (vfs.DirEntry, ErrorStatus) {
	desc, status := d.iterDescriptorOf(process, ri)
	if status != StatusOK {
		return vfs.DirEntry{}, status
	}
	entry, err := desc.ReadDir()
	if err != nil {
		if err == vfs.ErrEndOfDir {
			return vfs.DirEntry{}, StatusNoSuchFileOrDirectory
		}
		return vfs.DirEntry{}, FromError(err)
	}
	return entry, StatusOK
}

// Sync implements sync.
func (d *Dispatcher) Sync(process *proc.Process, ri proc.Ri) ErrorStatus {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return status
	}
	return FromError(desc.Sync())
}

// Truncate implements truncate.
func (d *Dispatcher) Truncate(process *proc.Process, ri proc.Ri, size uint64) ErrorStatus {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return status
	}
	return FromError(desc.Truncate(size))
}

// Ctl implements ctl: send (cmd, arg) to the resource behind ri.
func (d *Dispatcher) Ctl(process *proc.Process, ri proc.Ri, cmd uint64, arg uint64) (uint64, ErrorStatus) {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return 0, status
	}
	result, err := desc.Command(cmd, arg)
	if err != nil {
		return 0, FromError(err)
	}
	return result.Value, StatusOK
}

// Size implements size: byte size of the resource behind ri.
func (d *Dispatcher) Size(process *proc.Process, ri proc.Ri) (uint64, ErrorStatus) {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return 0, status
	}
	return desc.Node().Attrs().Size, StatusOK
}

// Attrs implements attrs: full FileAttr of the resource behind ri.
func (d *Dispatcher) Attrs(process *proc.Process, ri proc.Ri) (vfs.Attrs, ErrorStatus) {
	desc, status := d.descriptorOf(process, ri)
	if status != StatusOK {
		return vfs.Attrs{}, status
	}
	return desc.Node().Attrs(), StatusOK
}

// GetDirEntry implements get_direntry: resolves path without opening it.
func (d *Dispatcher) GetDirEntry(path string) (vfs.DirEntry, ErrorStatus) {
	entry, err := d.VFS.GetDirEntry(path)
	if err != nil {
		return vfs.DirEntry{}, FromError(err)
	}
	return entry, StatusOK
}

// Dup implements dup: duplicates ri into a fresh Ri in the same process.
func (d *Dispatcher) Dup(process *proc.Process, ri proc.Ri) (proc.Ri, ErrorStatus) {
	newRi, err := process.Resources().Duplicate(ri)
	if err != nil {
		return 0, FromError(err)
	}
	return newRi, StatusOK
}

// Chdir implements chdir: verifies path names a directory, then sets
// the process's CWD.
func (d *Dispatcher) Chdir(process *proc.Process, path string) ErrorStatus {
	if _, err := d.VFS.VerifyPathDir(path); err != nil {
		return FromError(err)
	}
	process.SetCwd(path)
	return StatusOK
}

// Getcwd implements getcwd.
func (d *Dispatcher) Getcwd(process *proc.Process) string {
	return process.Cwd()
}

// Sbrk implements sbrk: signed break growth, returns the new break
// pointer.
func (d *Dispatcher) Sbrk(process *proc.Process, delta int64) (uintptr, ErrorStatus) {
	newBreak, err := process.VAS().ExtendDataBy(delta)
	if err != nil {
		return 0, FromError(err)
	}
	return newBreak, StatusOK
}

// --- futex ---

// FutexWait implements futex_wait: addr is read from the calling
// process's VAS via as.
func (d *Dispatcher) FutexWait(ctx context.Context, pid proc.Pid, th *proc.Thread, as *vmm.AddrSpace, addr uintptr, expected uint32) (notTimedOut bool, status ErrorStatus) {
	if status := CheckPtr(addr, 4); status != StatusOK {
		return false, status
	}
	load := func() uint32 {
		var buf [4]byte
		if _, err := as.Table().Read(addr, buf[:]); err != nil {
			return expected + 1 // force "differs" so the waiter returns rather than hangs
		}
		return binary.LittleEndian.Uint32(buf[:])
	}
	return d.Futex.Wait(ctx, pid, th, addr, load, expected, d.now), StatusOK
}

// FutexWake implements futex_wake.
func (d *Dispatcher) FutexWake(pid proc.Pid, addr uintptr, n int) (woke int, status ErrorStatus) {
	if status := CheckPtr(addr, 4); status != StatusOK {
		return 0, status
	}
	return d.Futex.Wake(pid, addr, n), StatusOK
}

// --- misc ---

// Uptime implements uptime: milliseconds since boot.
func (d *Dispatcher) Uptime() uint64 {
	return d.now() - d.BootTimeMs
}

// Shutdown/Reboot implement the arch power ops. A host process cannot
// actually power off hardware; the caller (cmd/kernel) is responsible
// for acting on the returned PowerAction.
func (d *Dispatcher) Shutdown() PowerAction {
	klog.Infof("shutdown requested")
	d.requestPower(PowerShutdown)
	return PowerShutdown
}

func (d *Dispatcher) Reboot() PowerAction {
	klog.Infof("reboot requested")
	d.requestPower(PowerReboot)
	return PowerReboot
}

// Sleep implements sleep_for_ms, one of the thread suspension points:
// transitions th to Sleeping and blocks the calling
// goroutine (which represents th) until the deadline or wake, whichever
// first — there is no separate wake source for a timed sleep besides the
// scheduler's own tick-driven wake policy, so this simply parks on a
// timer.
func (d *Dispatcher) Sleep(th *proc.Thread, cpuID int, durationMs uint64) {
	th.SetSleeping(d.now() + durationMs)
	d.Sched.Block(cpuID)
	time.Sleep(time.Duration(durationMs) * time.Millisecond)
}
