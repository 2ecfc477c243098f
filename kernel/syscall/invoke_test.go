package syscall

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// mapUserPage maps one fresh user-writable page into p's VAS and returns
// its base address, standing in for a buffer the calling program owns.
func mapUserPage(t *testing.T, p *proc.Process) uintptr {
	t.Helper()
	rng, err := p.VAS().MapNPages(0, 1, 0, vmm.FlagUser|vmm.FlagWritable, nil)
	require.NoError(t, err)
	return rng.First.Address()
}

func writeUser(t *testing.T, p *proc.Process, addr uintptr, data []byte) {
	t.Helper()
	_, err := p.VAS().Table().Write(addr, data)
	require.NoError(t, err)
}

func readUser(t *testing.T, p *proc.Process, addr uintptr, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := p.VAS().Table().Read(addr, buf)
	require.NoError(t, err)
	return buf
}

func invokeTestSetup(t *testing.T) (*Dispatcher, Current) {
	t.Helper()
	d, kernelTable := testDispatcher(t)
	d.KernelTable = kernelTable
	p, th := spawnTestProcess(t, d, kernelTable)
	return d, Current{Process: p, Thread: th, CPU: 0}
}

func TestInvokeOpenWriteReadRoundTrip(t *testing.T) {
	d, cur := invokeTestSetup(t)
	ctx := context.Background()
	page := mapUserPage(t, cur.Process)

	// Lay out the page: path at +0, I/O buffer at +64, out cells at +512.
	path := []byte("ram:/greeting")
	writeUser(t, cur.Process, page, path)
	outRi := page + 512
	outN := page + 520

	require.Equal(t, StatusOK, d.Invoke(ctx, cur, SysCreate, [6]uint64{uint64(page), uint64(len(path))}))

	status := d.Invoke(ctx, cur, SysOpen, [6]uint64{
		uint64(page), uint64(len(path)), uint64(vfs.OptRead | vfs.OptWrite), uint64(outRi),
	})
	require.Equal(t, StatusOK, status)
	ri := binary.LittleEndian.Uint32(readUser(t, cur.Process, outRi, 4))

	writeUser(t, cur.Process, page+64, []byte("hello"))
	status = d.Invoke(ctx, cur, SysWrite, [6]uint64{uint64(ri), 0, uint64(page + 64), 5, uint64(outN)})
	require.Equal(t, StatusOK, status)
	assert.EqualValues(t, 5, binary.LittleEndian.Uint64(readUser(t, cur.Process, outN, 8)))

	status = d.Invoke(ctx, cur, SysRead, [6]uint64{uint64(ri), 0, uint64(page + 128), 5, uint64(outN)})
	require.Equal(t, StatusOK, status)
	assert.Equal(t, "hello", string(readUser(t, cur.Process, page+128, 5)))

	require.Equal(t, StatusOK, d.Invoke(ctx, cur, SysDestroy, [6]uint64{uint64(ri)}))
}

func TestInvokeValidatesPointers(t *testing.T) {
	d, cur := invokeTestSetup(t)
	ctx := context.Background()

	// Null path pointer with a non-zero length.
	status := d.Invoke(ctx, cur, SysOpen, [6]uint64{0, 5, 0, 0})
	assert.Equal(t, StatusInvalidPtr, status)

	// Misaligned u64 output pointer.
	page := mapUserPage(t, cur.Process)
	status = d.Invoke(ctx, cur, SysUptime, [6]uint64{uint64(page + 1)})
	assert.Equal(t, StatusInvalidPtr, status)

	// Unmapped output pointer: aligned but pointing nowhere.
	status = d.Invoke(ctx, cur, SysUptime, [6]uint64{0xdead0000})
	assert.Equal(t, StatusInvalidPtr, status)
}

func TestInvokeRejectsInvalidUTF8Path(t *testing.T) {
	d, cur := invokeTestSetup(t)
	page := mapUserPage(t, cur.Process)
	writeUser(t, cur.Process, page, []byte{0xff, 0xfe, 0xfd})

	status := d.Invoke(context.Background(), cur, SysCreate, [6]uint64{uint64(page), 3})
	assert.Equal(t, StatusInvalidStr, status)
}

func TestInvokeUnknownSyscallNumber(t *testing.T) {
	d, cur := invokeTestSetup(t)
	status := d.Invoke(context.Background(), cur, Syscall(999), [6]uint64{})
	assert.Equal(t, StatusInvalidSyscall, status)
}

func TestInvokeSbrkZeroReturnsCurrentBreak(t *testing.T) {
	d, cur := invokeTestSetup(t)
	page := mapUserPage(t, cur.Process)

	status := d.Invoke(context.Background(), cur, SysSbrk, [6]uint64{0, uint64(page)})
	require.Equal(t, StatusOK, status)
	got := binary.LittleEndian.Uint64(readUser(t, cur.Process, page, 8))
	assert.EqualValues(t, cur.Process.VAS().DataBreak(), got)
}

func TestInvokeGetcwdTooSmallBuffer(t *testing.T) {
	d, cur := invokeTestSetup(t)
	page := mapUserPage(t, cur.Process)

	status := d.Invoke(context.Background(), cur, SysGetcwd, [6]uint64{uint64(page), 2, uint64(page + 8)})
	assert.Equal(t, StatusStrTooLong, status)

	status = d.Invoke(context.Background(), cur, SysGetcwd, [6]uint64{uint64(page), 64, uint64(page + 512)})
	require.Equal(t, StatusOK, status)
	n := binary.LittleEndian.Uint64(readUser(t, cur.Process, page+512, 8))
	assert.Equal(t, cur.Process.Cwd(), string(readUser(t, cur.Process, page, int(n))))
}

func TestInvokeDirIterWireFormat(t *testing.T) {
	d, cur := invokeTestSetup(t)
	ctx := context.Background()
	page := mapUserPage(t, cur.Process)

	require.Equal(t, StatusOK, d.CreateDir("ram:/d"))
	require.Equal(t, StatusOK, d.Create("ram:/d/a"))
	require.Equal(t, StatusOK, d.Create("ram:/d/b"))

	path := []byte("ram:/d")
	writeUser(t, cur.Process, page, path)
	outRi := page + 512
	status := d.Invoke(ctx, cur, SysDirIterOpen, [6]uint64{uint64(page), uint64(len(path)), uint64(outRi)})
	require.Equal(t, StatusOK, status)
	ri := binary.LittleEndian.Uint32(readUser(t, cur.Process, outRi, 4))

	entryPtr := page + 1024
	seen := map[string]bool{}
	for {
		status := d.Invoke(ctx, cur, SysDirIterNext, [6]uint64{uint64(ri), uint64(entryPtr)})
		if status == StatusNoSuchFileOrDirectory {
			break
		}
		require.Equal(t, StatusOK, status)
		entry, ok := vfs.UnmarshalDirEntry(readUser(t, cur.Process, entryPtr, 152))
		require.True(t, ok)
		seen[entry.NameString()] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestInvokeAttrsWireFormat(t *testing.T) {
	d, cur := invokeTestSetup(t)
	ctx := context.Background()
	page := mapUserPage(t, cur.Process)

	require.Equal(t, StatusOK, d.Create("ram:/f"))
	ri, status := d.Open(cur.Process, cur.Thread.Cid, "ram:/f", vfs.OptWrite)
	require.Equal(t, StatusOK, status)
	_, status = d.Write(cur.Process, ri, []byte("abc"), 0)
	require.Equal(t, StatusOK, status)

	require.Equal(t, StatusOK, d.Invoke(ctx, cur, SysAttrs, [6]uint64{uint64(ri), uint64(page)}))
	raw := readUser(t, cur.Process, page, 16)
	assert.Equal(t, byte(vfs.KindFile), raw[0])
	assert.EqualValues(t, 3, binary.LittleEndian.Uint64(raw[8:16]))
}

func TestInvokeProcessSpawnFromRawConfig(t *testing.T) {
	d, cur := invokeTestSetup(t)
	ctx := context.Background()
	page := mapUserPage(t, cur.Process)

	image := minimalUserELF(0x400000, []byte{0xc3})
	const (
		nameOff  = 1024
		imageOff = 1100
		argvOff  = 2048 // Slice array, 16-byte aligned
		str0Off  = 2112
		cfgOff   = 0
		outOff   = 3072
	)
	writeUser(t, cur.Process, page+nameOff, []byte("child"))
	writeUser(t, cur.Process, page+imageOff, image)
	writeUser(t, cur.Process, page+str0Off, []byte("child"))

	var argvEntry [16]byte
	binary.LittleEndian.PutUint64(argvEntry[0:8], uint64(page+str0Off))
	binary.LittleEndian.PutUint64(argvEntry[8:16], 5)
	writeUser(t, cur.Process, page+argvOff, argvEntry[:])

	cfg := make([]byte, rawSpawnConfigSize)
	binary.LittleEndian.PutUint64(cfg[0:8], uint64(page+nameOff))
	binary.LittleEndian.PutUint64(cfg[8:16], 5)
	binary.LittleEndian.PutUint64(cfg[16:24], uint64(page+imageOff))
	binary.LittleEndian.PutUint64(cfg[24:32], uint64(len(image)))
	binary.LittleEndian.PutUint64(cfg[32:40], uint64(page+argvOff))
	binary.LittleEndian.PutUint64(cfg[40:48], 1)
	binary.LittleEndian.PutUint64(cfg[72:80], uint64(proc.PriorityMedium))
	writeUser(t, cur.Process, page+cfgOff, cfg)

	status := d.Invoke(ctx, cur, SysProcessSpawn, [6]uint64{uint64(page + cfgOff), uint64(page + outOff)})
	require.Equal(t, StatusOK, status)

	childPid := binary.LittleEndian.Uint32(readUser(t, cur.Process, page+outOff, 4))
	child, ok := d.Table.Lookup(proc.Pid(childPid))
	require.True(t, ok)
	assert.Equal(t, "child", child.Name)
	assert.Equal(t, cur.Process.Pid, child.ParentPid())
}

// minimalUserELF builds a single-PT_LOAD ELF64 image for exercising the
// raw spawn path without shipping a binary in the test tree.
func minimalUserELF(entry uint64, code []byte) []byte {
	const (
		ehdrSize = 64
		phdrSize = 56
	)
	buf := make([]byte, ehdrSize+phdrSize+len(code))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(buf[16:18], 2)    // e_type = ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:20], 0x3e) // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:24], 1)    // e_version
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], ehdrSize) // e_phoff
	binary.LittleEndian.PutUint16(buf[52:54], ehdrSize) // e_ehsize
	binary.LittleEndian.PutUint16(buf[54:56], phdrSize) // e_phentsize
	binary.LittleEndian.PutUint16(buf[56:58], 1)        // e_phnum

	ph := buf[ehdrSize : ehdrSize+phdrSize]
	binary.LittleEndian.PutUint32(ph[0:4], 1)                    // p_type = PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], 5)                    // p_flags = R+X
	binary.LittleEndian.PutUint64(ph[8:16], ehdrSize+phdrSize)   // p_offset
	binary.LittleEndian.PutUint64(ph[16:24], entry)              // p_vaddr
	binary.LittleEndian.PutUint64(ph[24:32], entry)              // p_paddr
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(code)))  // p_filesz
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(code)))  // p_memsz
	binary.LittleEndian.PutUint64(ph[48:56], 0x1000)             // p_align

	copy(buf[ehdrSize+phdrSize:], code)
	return buf
}
