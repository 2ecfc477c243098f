package syscall

import (
	"context"
	"encoding/binary"
	"unicode/utf8"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// Current identifies the executing (process, thread, cpu) a syscall is
// scoped to. A hardware build resolves this from per-CPU state in the
// syscall entry stub; here the caller that drives a thread supplies it.
type Current struct {
	Process *proc.Process
	Thread  *proc.Thread
	CPU     int
}

// rawSpawnConfig is the fixed-layout block a process_spawn syscall points
// at in the caller's address space. All fields little-endian:
//
//	0   name      Slice{ptr u64, len u64}
//	16  image     Slice{ptr u64, len u64}   (ELF bytes)
//	32  argv      Slice{ptr u64, count u64} (ptr to count Slice entries)
//	48  envp      Slice{ptr u64, count u64}
//	64  flags     u64
//	72  priority  u64
//	80  stdio     [3]{present u32, ri u32}  (stdout, stdin, stderr)
const rawSpawnConfigSize = 104

// Invoke is the raw numeric syscall entry point: it decodes args against
// the calling process's address space (validating every pointer before
// dereferencing it), dispatches to the typed operation, and writes output
// parameters back into the caller's memory only on success.
//
// Argument registers per syscall (unused trailing args are ignored):
//
//	process_exit   code
//	thread_yield   -
//	open_all       pathPtr, pathLen, outRiPtr
//	open           pathPtr, pathLen, optsBits, outRiPtr
//	write / read   ri, offset(i64), bufPtr, bufLen, outNPtr
//	destroy        ri
//	create(_dir)   pathPtr, pathLen
//	diriter_open   pathPtr, pathLen, outRiPtr
//	diriter_next   ri, outEntryPtr
//	wait_pid       pid, outCodePtr
//	ctl            ri, cmd, arg, outValPtr
//	chdir          pathPtr, pathLen
//	getcwd         bufPtr, bufLen, outLenPtr
//	sync           ri
//	truncate       ri, size
//	sbrk           delta(i64), outBreakPtr
//	process_spawn  cfgPtr, outPidPtr
//	thread_spawn   entry, priority, stackPages, outCidPtr
//	size           ri, outSizePtr
//	get_direntry   pathPtr, pathLen, outEntryPtr
//	attrs          ri, outAttrPtr
//	dup            ri, outRiPtr
//	uptime         outMsPtr
//	remove_path    pathPtr, pathLen
//	shutdown       -
//	reboot         -
func (d *Dispatcher) Invoke(ctx context.Context, cur Current, num Syscall, args [6]uint64) ErrorStatus {
	as := cur.Process.VAS()

	switch num {
	case SysProcessExit:
		d.ProcessExit(cur.Process, int32(args[0]))
		return StatusOK

	case SysThreadYield:
		d.ThreadYield(cur.CPU)
		return StatusOK

	case SysOpenAll:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		ri, status := d.Open(cur.Process, cur.Thread.Cid, path, vfs.OptRead|vfs.OptWrite)
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[2]), uint32(ri))

	case SysOpen:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		ri, status := d.Open(cur.Process, cur.Thread.Cid, path, vfs.OpenOptions(args[2]))
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[3]), uint32(ri))

	case SysWrite:
		buf, status := ReadBytes(as, uintptr(args[2]), int(args[3]))
		if status != StatusOK {
			return status
		}
		n, status := d.Write(cur.Process, proc.Ri(args[0]), buf, int64(args[1]))
		if status != StatusOK {
			return status
		}
		return writeU64(as, uintptr(args[4]), uint64(n))

	case SysRead:
		buf := make([]byte, int(args[3]))
		n, status := d.Read(cur.Process, proc.Ri(args[0]), buf, int64(args[1]))
		if status != StatusOK {
			return status
		}
		if status := WriteBytes(as, uintptr(args[2]), buf[:n]); status != StatusOK {
			return status
		}
		return writeU64(as, uintptr(args[4]), uint64(n))

	case SysDestroy:
		return d.Destroy(cur.Process, proc.Ri(args[0]))

	case SysCreate:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		return d.Create(path)

	case SysCreateDir:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		return d.CreateDir(path)

	case SysDirIterOpen:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		ri, status := d.DirIterOpen(cur.Process, cur.Thread.Cid, path)
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[2]), uint32(ri))

	case SysDirIterNext:
		entry, status := d.DirIterNext(cur.Process, proc.Ri(args[0]))
		if status != StatusOK {
			return status
		}
		return writeEntry(as, uintptr(args[1]), entry)

	case SysWaitPid:
		code, status := d.WaitPid(ctx, cur.Thread, proc.Pid(args[0]))
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[1]), uint32(code))

	case SysCtl:
		val, status := d.Ctl(cur.Process, proc.Ri(args[0]), args[1], args[2])
		if status != StatusOK {
			return status
		}
		return writeU64(as, uintptr(args[3]), val)

	case SysChdir:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		return d.Chdir(cur.Process, path)

	case SysGetcwd:
		cwd := d.Getcwd(cur.Process)
		if uint64(len(cwd)) > args[1] {
			return StatusStrTooLong
		}
		if status := WriteBytes(as, uintptr(args[0]), []byte(cwd)); status != StatusOK {
			return status
		}
		return writeU64(as, uintptr(args[2]), uint64(len(cwd)))

	case SysSync:
		return d.Sync(cur.Process, proc.Ri(args[0]))

	case SysTruncate:
		return d.Truncate(cur.Process, proc.Ri(args[0]), args[1])

	case SysSbrk:
		newBreak, status := d.Sbrk(cur.Process, int64(args[0]))
		if status != StatusOK {
			return status
		}
		return writeU64(as, uintptr(args[1]), uint64(newBreak))

	case SysProcessSpawn:
		pid, status := d.invokeSpawn(cur, as, uintptr(args[0]))
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[1]), uint32(pid))

	case SysThreadSpawn:
		cid, status := d.ThreadSpawn(cur.Process, uintptr(args[0]), proc.Priority(args[1]), uint(args[2]), d.enqueue)
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[3]), uint32(cid))

	case SysShutdown:
		d.Shutdown()
		return StatusOK

	case SysReboot:
		d.Reboot()
		return StatusOK

	case SysSize:
		size, status := d.Size(cur.Process, proc.Ri(args[0]))
		if status != StatusOK {
			return status
		}
		return writeU64(as, uintptr(args[1]), size)

	case SysGetDirEntry:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		entry, status := d.GetDirEntry(path)
		if status != StatusOK {
			return status
		}
		return writeEntry(as, uintptr(args[2]), entry)

	case SysAttrs:
		attrs, status := d.Attrs(cur.Process, proc.Ri(args[0]))
		if status != StatusOK {
			return status
		}
		return writeAttrs(as, uintptr(args[1]), attrs)

	case SysDup:
		ri, status := d.Dup(cur.Process, proc.Ri(args[0]))
		if status != StatusOK {
			return status
		}
		return writeU32(as, uintptr(args[1]), uint32(ri))

	case SysUptime:
		return writeU64(as, uintptr(args[0]), d.Uptime())

	case SysRemovePath:
		path, status := d.readUserPath(cur.Process, as, args[0], args[1])
		if status != StatusOK {
			return status
		}
		return d.RemovePath(path)

	default:
		return StatusInvalidSyscall
	}
}

func (d *Dispatcher) enqueue(t *proc.Thread) {
	d.Sched.Enqueue(t, -1)
}

// readUserPath reads a UTF-8 path slice out of the caller's address space
// and joins it against the process's working directory, the way the
// syscall layer resolves paths before the VFS (which is absolute-only)
// ever sees them.
func (d *Dispatcher) readUserPath(p *proc.Process, as *vmm.AddrSpace, ptr, n uint64) (string, ErrorStatus) {
	path, status := readUserString(as, uintptr(ptr), int(n))
	if status != StatusOK {
		return "", status
	}
	if path == "" {
		return "", StatusInvalidPath
	}
	return vfs.JoinCwd(p.Cwd(), path), StatusOK
}

// readUserString reads n bytes at ptr and validates them as UTF-8.
func readUserString(as *vmm.AddrSpace, ptr uintptr, n int) (string, ErrorStatus) {
	if n > maxStrLen {
		return "", StatusStrTooLong
	}
	b, status := ReadBytes(as, ptr, n)
	if status != StatusOK {
		return "", status
	}
	if !utf8.Valid(b) {
		return "", StatusInvalidStr
	}
	return string(b), StatusOK
}

func writeU32(as *vmm.AddrSpace, addr uintptr, v uint32) ErrorStatus {
	if status := CheckPtr(addr, 4); status != StatusOK {
		return status
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return WriteBytes(as, addr, buf[:])
}

func writeU64(as *vmm.AddrSpace, addr uintptr, v uint64) ErrorStatus {
	if status := CheckPtr(addr, 8); status != StatusOK {
		return status
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return WriteBytes(as, addr, buf[:])
}

// writeEntry serializes a DirEntry in its stable wire format into the
// caller's memory.
func writeEntry(as *vmm.AddrSpace, addr uintptr, entry vfs.DirEntry) ErrorStatus {
	if status := CheckPtr(addr, 8); status != StatusOK {
		return status
	}
	return WriteBytes(as, addr, entry.Marshal())
}

// writeAttrs serializes a FileAttr (kind u8, 7 pad bytes, size u64) into
// the caller's memory.
func writeAttrs(as *vmm.AddrSpace, addr uintptr, attrs vfs.Attrs) ErrorStatus {
	if status := CheckPtr(addr, 8); status != StatusOK {
		return status
	}
	var buf [16]byte
	buf[0] = byte(attrs.Kind)
	binary.LittleEndian.PutUint64(buf[8:16], attrs.Size)
	return WriteBytes(as, addr, buf[:])
}

// invokeSpawn decodes a rawSpawnConfig block out of the caller's address
// space and spawns the described process.
func (d *Dispatcher) invokeSpawn(cur Current, as *vmm.AddrSpace, cfgPtr uintptr) (proc.Pid, ErrorStatus) {
	if status := CheckPtr(cfgPtr, 8); status != StatusOK {
		return 0, status
	}
	cfg, status := ReadBytes(as, cfgPtr, rawSpawnConfigSize)
	if status != StatusOK {
		return 0, status
	}

	name, status := readUserString(as, uintptr(binary.LittleEndian.Uint64(cfg[0:8])), int(binary.LittleEndian.Uint64(cfg[8:16])))
	if status != StatusOK {
		return 0, status
	}

	image, status := ReadBytes(as, uintptr(binary.LittleEndian.Uint64(cfg[16:24])), int(binary.LittleEndian.Uint64(cfg[24:32])))
	if status != StatusOK {
		return 0, status
	}

	argv, status := readStringTable(as, cfg[32:48])
	if status != StatusOK {
		return 0, status
	}
	envp, status := readStringTable(as, cfg[48:64])
	if status != StatusOK {
		return 0, status
	}

	params := proc.SpawnParams{
		Name:     name,
		Cwd:      cur.Process.Cwd(),
		Image:    proc.Image{ELF: image},
		Argv:     argv,
		Envp:     envp,
		Flags:    proc.SpawnFlags(binary.LittleEndian.Uint64(cfg[64:72])),
		Priority: proc.Priority(binary.LittleEndian.Uint64(cfg[72:80])),
		Stdio:    decodeStdio(cfg[80:104]),
	}
	return d.ProcessSpawn(d.KernelTable, cur.Process, params, d.enqueue)
}

// readStringTable decodes a Slice{ptr, count} header naming an array of
// count Slice{ptr, len} entries, each a UTF-8 string in the caller's
// address space.
func readStringTable(as *vmm.AddrSpace, header []byte) ([]string, ErrorStatus) {
	arrayPtr := uintptr(binary.LittleEndian.Uint64(header[0:8]))
	count := binary.LittleEndian.Uint64(header[8:16])
	if count == 0 {
		return nil, StatusOK
	}

	raw, status := ReadBytes(as, arrayPtr, int(count)*16)
	if status != StatusOK {
		return nil, status
	}

	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		entry := raw[i*16 : i*16+16]
		s, status := readUserString(as, uintptr(binary.LittleEndian.Uint64(entry[0:8])), int(binary.LittleEndian.Uint64(entry[8:16])))
		if status != StatusOK {
			return nil, status
		}
		out = append(out, s)
	}
	return out, StatusOK
}

func decodeStdio(raw []byte) proc.Stdio {
	var stdio proc.Stdio
	slots := []**proc.Ri{&stdio.Stdout, &stdio.Stdin, &stdio.Stderr}
	for i, slot := range slots {
		present := binary.LittleEndian.Uint32(raw[i*8 : i*8+4])
		if present == 0 {
			continue
		}
		ri := proc.Ri(binary.LittleEndian.Uint32(raw[i*8+4 : i*8+8]))
		*slot = &ri
	}
	return stdio
}
