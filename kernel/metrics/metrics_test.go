package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem"
	"github.com/SafaOS/SafaOS-sub001/kernel/mem/pmm/allocator"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/sched"
)

func testAllocator(t *testing.T, frames uint64) *allocator.BitmapAllocator {
	t.Helper()
	mm := allocator.MemoryMap{
		{PhysAddress: 0, Length: frames * uint64(mem.PageSize), Usable: true},
	}
	alloc, err := allocator.New(mm)
	require.NoError(t, err)
	return alloc
}

func TestRenderIncludesFrameAndProcessGauges(t *testing.T) {
	alloc := testAllocator(t, 16)
	table := proc.NewTable()
	s := sched.New(2, table, func() uint64 { return 0 })

	r := New(alloc, table, s)
	out := string(r.Render())

	assert.Contains(t, out, "safaos_frames_usable")
	assert.Contains(t, out, "safaos_frames_reserved")
	assert.Contains(t, out, "safaos_process_count 0")
	assert.Contains(t, out, `safaos_scheduler_ready_length{cpu="0"}`)
	assert.Contains(t, out, `safaos_scheduler_ready_length{cpu="1"}`)
}

func TestCountersIncrementAcrossRenders(t *testing.T) {
	alloc := testAllocator(t, 4)
	table := proc.NewTable()

	r := New(alloc, table, nil)
	r.IncVFSOpen()
	r.IncVFSOpen()
	r.IncVFSClose()
	r.IncFrameAlloc()

	out := string(r.Render())
	assert.Contains(t, out, "safaos_vfs_opens_total 2")
	assert.Contains(t, out, "safaos_vfs_closes_total 1")
	assert.Contains(t, out, "safaos_frame_alloc_calls_total 1")
}

func TestRenderWithoutSchedulerOmitsPerCPUGauges(t *testing.T) {
	alloc := testAllocator(t, 4)
	table := proc.NewTable()

	r := New(alloc, table, nil)
	out := string(r.Render())

	assert.False(t, strings.Contains(out, "safaos_scheduler_ready_length{"))
}

func TestProcessCountReflectsTableRegistrations(t *testing.T) {
	alloc := testAllocator(t, 4)
	table := proc.NewTable()
	pid := table.AllocatePid()
	p := proc.NewProcess(pid, 0, "init", "ram:/", nil, nil)
	table.Register(p)

	r := New(alloc, table, nil)
	out := string(r.Render())
	assert.Contains(t, out, "safaos_process_count 1")
}
