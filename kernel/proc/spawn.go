package proc

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"

	"github.com/SafaOS/SafaOS-sub001/kernel/config"
	"github.com/SafaOS/SafaOS-sub001/kernel/klog"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
)

// Default address-space layout constants. A hardware build derives these
// from the linker script and the architecture's canonical address width;
// this module fixes them so spawn is deterministic and testable.
const (
	defaultExecutableEnd = uintptr(0x0000_0000_0040_0000)
	defaultLookupStart   = uintptr(0x0000_7f00_0000_0000)
	defaultFloor         = uintptr(mem.PageSize)
)

// Image is a spawned process's program image: either ELF bytes to load
// into the new VAS, or a kernel-resident function pointer, used for the
// handful of processes the boot path spawns directly without going through
// the loader.
type Image struct {
	ELF        []byte
	KernelFunc func()
}

// ErrNoImage is returned by Spawn when neither Image field is set.
var ErrNoImage = errors.New("proc: spawn requires an ELF image or a kernel function")

// ErrNameTooLong is returned by Spawn when the process name exceeds the
// ABI's fixed bound.
var ErrNameTooLong = errors.New("proc: process name exceeds 128 bytes")

// maxProcessName is the ABI bound on a process name's byte length.
const maxProcessName = 128

// SpawnParams parameterizes process creation.
type SpawnParams struct {
	Name       string
	ParentPid  Pid
	Cwd        string
	Image      Image
	Argv       []string
	Envp       []string
	Stdio      Stdio
	Flags      SpawnFlags
	Priority   Priority
	StackPages uint // 0 uses config.Get().UserStackPages
}

// AbiStdio mirrors the spawned program's AbiStructures.stdio.
type AbiStdio struct {
	Stdout, Stdin, Stderr *Ri
}

// Spawn creates a new process in a fixed sequence: allocates a PID,
// builds a VAS from kernelTable, loads the program image, allocates the
// root thread's stacks and ABI pages, populates the resource table
// according to flags, registers the process, and enqueues the root thread
// via enqueue.
func (t *Table) Spawn(params SpawnParams, kernelTable *vmm.PageTable, alloc *allocator.BitmapAllocator, ram *pmm.RAM, parentResources *ResourceTable, enqueue func(*Thread)) (*Process, *Thread, error) {
	if params.Image.ELF == nil && params.Image.KernelFunc == nil {
		return nil, nil, ErrNoImage
	}
	if len(params.Name) > maxProcessName {
		return nil, nil, ErrNameTooLong
	}

	pid := t.AllocatePid()

	vas, err := vmm.NewAddrSpace(alloc, ram, kernelTable, defaultExecutableEnd, defaultLookupStart, defaultFloor)
	if err != nil {
		return nil, nil, err
	}

	entry := defaultExecutableEnd
	if params.Image.ELF != nil {
		entry, err = loadELF(vas, params.Image.ELF)
		if err != nil {
			return nil, nil, err
		}
	}

	resources, err := buildResourceTable(params.Flags, params.Stdio, parentResources)
	if err != nil {
		return nil, nil, err
	}

	cwd := "sys:/"
	if params.Flags.Has(CloneCwd) && params.Cwd != "" {
		cwd = params.Cwd
	}

	process := NewProcess(pid, params.ParentPid, params.Name, cwd, vas, resources)

	stackPages := params.StackPages
	if stackPages == 0 {
		stackPages = config.Get().UserStackPages
	}

	thread, err := spawnThread(process, process.nextCid(), vas, entry, params.Argv, params.Envp, params.Priority, stackPages, params.Stdio, params.ParentPid)
	if err != nil {
		return nil, nil, err
	}

	process.AddThread(thread)
	t.Register(process)
	if enqueue != nil {
		enqueue(thread)
	}

	klog.WithFields(klog.Fields{"pid": pid, "name": params.Name, "entry": entry}).Infof("process spawned")
	return process, thread, nil
}

// Has reports whether all bits of want are set in flags.
func (f SpawnFlags) Has(want SpawnFlags) bool { return f&want == want }

func buildResourceTable(flags SpawnFlags, stdio Stdio, parent *ResourceTable) (*ResourceTable, error) {
	if parent == nil {
		return NewResourceTable(), nil
	}
	if flags.Has(CloneResources) {
		return parent.CloneAll(), nil
	}

	var ris []Ri
	if stdio.Stdout != nil {
		ris = append(ris, *stdio.Stdout)
	}
	if stdio.Stdin != nil {
		ris = append(ris, *stdio.Stdin)
	}
	if stdio.Stderr != nil {
		ris = append(ris, *stdio.Stderr)
	}
	if len(ris) == 0 {
		return NewResourceTable(), nil
	}
	return parent.CloneSubset(ris)
}

// SpawnThread creates an additional thread within an already-running
// process, reusing its existing VAS. The new thread's entry point and its own argv/envp convention
// are caller-defined (userspace thread_spawn passes a start routine and a
// single argument via ArgRegisters).
func (t *Table) SpawnThread(process *Process, entry uintptr, priority Priority, stackPages uint, enqueue func(*Thread)) (*Thread, error) {
	if stackPages == 0 {
		stackPages = config.Get().UserStackPages
	}

	thread, err := spawnThread(process, process.nextCid(), process.VAS(), entry, nil, nil, priority, stackPages, Stdio{}, process.ParentPid())
	if err != nil {
		return nil, err
	}
	process.AddThread(thread)
	if enqueue != nil {
		enqueue(thread)
	}
	return thread, nil
}

func spawnThread(process *Process, cid Cid, vas *vmm.AddrSpace, entry uintptr, argv, envp []string, priority Priority, stackPages uint, stdio Stdio, parentPid Pid) (*Thread, error) {
	cfg := config.Get()
	guard := cfg.GuardPages

	userStack, err := vas.MapNPagesTracked(0, uint64(stackPages), uint64(guard), vmm.FlagWritable|vmm.FlagUser, nil)
	if err != nil {
		return nil, err
	}
	kernelStack, err := vas.MapNPagesTracked(0, uint64(cfg.KernelStackPages), uint64(guard), vmm.FlagWritable, nil)
	if err != nil {
		userStack.Close()
		return nil, err
	}

	abiAddr, abiMapping, err := writeProcessABI(vas, argv, envp, stdio, parentPid)
	if err != nil {
		userStack.Close()
		kernelStack.Close()
		return nil, err
	}

	stackTop := userStack.Range().Last.Address() + uintptr(mem.PageSize)
	regs := Context{
		InstructionPointer: entry,
		StackPointer:       stackTop,
		ArgRegisters:       [4]uintptr{uintptr(len(argv)), 0, uintptr(len(envp)), abiAddr},
	}

	thread := NewThread(cid, process, priority, regs, userStack, kernelStack, nil)
	thread.SetAbiMapping(abiMapping)
	return thread, nil
}

// writeProcessABI lays out argv, envp and the AbiStructures block
// into freshly mapped pages of vas, returning the address of the
// AbiStructures block. Layout: [argv table][envp table][abi struct], each
// 16-byte aligned.
func writeProcessABI(vas *vmm.AddrSpace, argv, envp []string, stdio Stdio, parentPid Pid) (uintptr, *vmm.TrackedMapping, error) {
	argvBuf := packStringTable(argv)
	envpBuf := packStringTable(envp)

	abiBuf := make([]byte, 32)
	putOptRi(abiBuf[0:8], stdio.Stdout)
	putOptRi(abiBuf[8:16], stdio.Stdin)
	putOptRi(abiBuf[16:24], stdio.Stderr)
	binary.LittleEndian.PutUint32(abiBuf[24:28], uint32(parentPid))

	total := len(argvBuf) + len(envpBuf) + len(abiBuf)
	nPages := (uint64(total) + uint64(mem.PageSize) - 1) / uint64(mem.PageSize)
	if nPages == 0 {
		nPages = 1
	}

	mapping, err := vas.MapNPagesTracked(0, nPages, 0, vmm.FlagUser|vmm.FlagWritable, nil)
	if err != nil {
		return 0, nil, err
	}
	base := mapping.Range().First.Address()

	argvBuf = patchStringTablePointers(argvBuf, base)
	envpBuf = patchStringTablePointers(envpBuf, base+uintptr(len(argvBuf)))

	buf := append(append(argvBuf, envpBuf...), abiBuf...)
	if _, err := vas.Table().Write(base, buf); err != nil {
		return 0, nil, err
	}
	return base + uintptr(len(argvBuf)+len(envpBuf)), mapping, nil
}

func putOptRi(dst []byte, ri *Ri) {
	if ri == nil {
		binary.LittleEndian.PutUint32(dst[0:4], 0)
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	binary.LittleEndian.PutUint32(dst[4:8], uint32(*ri))
}

// packStringTable lays out a "usize count; <null-terminated bytes for
// each>; <16-byte-aligned> array of Slice{ptr,len}" structure.
// Pointer fields in the trailing array are relative offsets
// from the start of this buffer until patchStringTablePointers rewrites
// them as absolute addresses once the backing pages' base address is
// known.
func packStringTable(strs []string) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(len(strs)))

	offsets := make([]int, len(strs))
	lengths := make([]int, len(strs))
	for i, s := range strs {
		offsets[i] = len(buf)
		lengths[i] = len(s)
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	for len(buf)%16 != 0 {
		buf = append(buf, 0)
	}

	for i := range strs {
		var entry [16]byte
		binary.LittleEndian.PutUint64(entry[0:8], uint64(offsets[i]))
		binary.LittleEndian.PutUint64(entry[8:16], uint64(lengths[i]))
		buf = append(buf, entry[:]...)
	}
	return buf
}

// patchStringTablePointers rewrites the relative offsets packStringTable
// left in the trailing Slice array into absolute addresses, now that base
// is known.
func patchStringTablePointers(buf []byte, base uintptr) []byte {
	count := binary.LittleEndian.Uint64(buf[0:8])
	arrayStart := len(buf) - int(count)*16
	for i := uint64(0); i < count; i++ {
		off := arrayStart + int(i)*16
		rel := binary.LittleEndian.Uint64(buf[off : off+8])
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(base)+rel)
	}
	return buf
}

// loadELF parses an ELF64 image via the standard library's debug/elf
// reader (there is no widely-used third-party ELF parser to prefer over
// the standard library here, matching the archive/tar precedent used for
// the ramdisk reader) and maps its PT_LOAD
// segments into vas with the requested permissions, zero-filling BSS.
func loadELF(vas *vmm.AddrSpace, image []byte) (entry uintptr, err error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	maxEnd := defaultExecutableEnd
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		flags := vmm.FlagUser
		if prog.Flags&elf.PF_W != 0 {
			flags |= vmm.FlagWritable
		}
		if prog.Flags&elf.PF_X != 0 {
			flags |= vmm.FlagExecutable
		}

		start := mem.AlignDown(uintptr(prog.Vaddr))
		end := mem.AlignUp(uintptr(prog.Vaddr) + uintptr(prog.Memsz))
		nPages := uint64(end-start) / uint64(mem.PageSize)
		if nPages == 0 {
			continue
		}

		if err := vas.Table().AllocMap(vmm.PageFromAddress(start), nPages, flags); err != nil {
			return 0, err
		}

		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return 0, err
		}
		if _, err := vas.Table().Write(uintptr(prog.Vaddr), data); err != nil {
			return 0, err
		}

		if end > maxEnd {
			maxEnd = end
		}
	}

	return uintptr(f.Entry), nil
}
