package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnLoadsELFAndEnqueuesRootThread(t *testing.T) {
	alloc, ram := testAllocAndRAM(t, 4096)
	kernelTable := testKernelTable(t, alloc, ram)

	image := minimalELF(defaultExecutableEnd, []byte{0x90, 0x90, 0xc3})

	tbl := NewTable()
	var enqueued []*Thread
	proc, thread, err := tbl.Spawn(SpawnParams{
		Name:      "init",
		ParentPid: 0,
		Image:     Image{ELF: image},
		Argv:      []string{"init", "-v"},
		Envp:      []string{"HOME=/"},
		Priority:  PriorityMedium,
	}, kernelTable, alloc, ram, nil, func(th *Thread) { enqueued = append(enqueued, th) })
	require.NoError(t, err)

	assert.Equal(t, StateAlive, proc.State())
	assert.Len(t, enqueued, 1)
	assert.Same(t, thread, enqueued[0])
	assert.Equal(t, defaultExecutableEnd, thread.Context().InstructionPointer)

	_, ok := tbl.Lookup(proc.Pid)
	assert.True(t, ok)
}

func TestSpawnInheritsStdioOnly(t *testing.T) {
	alloc, ram := testAllocAndRAM(t, 4096)
	kernelTable := testKernelTable(t, alloc, ram)
	image := minimalELF(defaultExecutableEnd, []byte{0xc3})

	parentResources := NewResourceTable()
	stdoutRi := parentResources.AddGlobal(Resource{Kind: KindFile})
	_ = parentResources.AddGlobal(Resource{Kind: KindFile}) // unrelated handle, not inherited

	tbl := NewTable()
	proc, _, err := tbl.Spawn(SpawnParams{
		Name:  "child",
		Image: Image{ELF: image},
		Stdio: Stdio{Stdout: &stdoutRi},
	}, kernelTable, alloc, ram, parentResources, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, proc.Resources().Len())
	_, ok := proc.Resources().Get(stdoutRi)
	assert.True(t, ok)
}

func TestSpawnCloneResourcesInheritsAll(t *testing.T) {
	alloc, ram := testAllocAndRAM(t, 4096)
	kernelTable := testKernelTable(t, alloc, ram)
	image := minimalELF(defaultExecutableEnd, []byte{0xc3})

	parentResources := NewResourceTable()
	parentResources.AddGlobal(Resource{Kind: KindFile})
	parentResources.AddGlobal(Resource{Kind: KindDirIter})

	tbl := NewTable()
	proc, _, err := tbl.Spawn(SpawnParams{
		Name:  "child",
		Image: Image{ELF: image},
		Flags: CloneResources,
	}, kernelTable, alloc, ram, parentResources, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, proc.Resources().Len())
}

func TestSpawnThreadReusesVAS(t *testing.T) {
	alloc, ram := testAllocAndRAM(t, 4096)
	kernelTable := testKernelTable(t, alloc, ram)
	image := minimalELF(defaultExecutableEnd, []byte{0xc3})

	tbl := NewTable()
	proc, root, err := tbl.Spawn(SpawnParams{Name: "p", Image: Image{ELF: image}}, kernelTable, alloc, ram, nil, nil)
	require.NoError(t, err)

	var enqueued *Thread
	worker, err := tbl.SpawnThread(proc, defaultExecutableEnd+0x1000, PriorityHigh, 4, func(th *Thread) { enqueued = th })
	require.NoError(t, err)

	assert.NotEqual(t, root.Cid, worker.Cid)
	assert.Same(t, worker, enqueued)
	assert.Len(t, proc.Threads(), 2)
	assert.Same(t, proc.VAS(), root.Process.VAS())
}
