package ramfs

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReadWriteRoundTrip(t *testing.T) {
	f := newFile("greeting")
	n, err := f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.EqualValues(t, 5, f.Attrs().Size)

	buf := make([]byte, 5)
	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestFileWriteGrowsBuffer(t *testing.T) {
	f := newFile("x")
	_, err := f.WriteAt([]byte("abc"), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 13, f.Attrs().Size)
}

func TestFileTruncate(t *testing.T) {
	f := newFile("x")
	_, _ = f.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, f.Truncate(3))
	assert.EqualValues(t, 3, f.Attrs().Size)
	require.NoError(t, f.Truncate(10))
	assert.EqualValues(t, 10, f.Attrs().Size)
}

func TestDirCreateLookupRemoveChild(t *testing.T) {
	root := NewDir("")
	child, err := root.CreateChild("a", vfs.KindFile)
	require.NoError(t, err)
	assert.Equal(t, "a", child.Name())

	_, err = root.CreateChild("a", vfs.KindFile)
	assert.ErrorIs(t, err, vfs.NewError(vfs.ErrAlreadyExists, ""))

	got, ok := root.Lookup("a")
	require.True(t, ok)
	assert.Same(t, child, got)

	require.NoError(t, root.RemoveChild("a"))
	_, ok = root.Lookup("a")
	assert.False(t, ok)
}

func TestDirIterListsChildrenInCreationOrder(t *testing.T) {
	root := NewDir("")
	_, _ = root.CreateChild("b", vfs.KindFile)
	_, _ = root.CreateChild("a", vfs.KindDirectory)

	it, err := root.OpenDirIter()
	require.NoError(t, err)

	e1, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", e1.NameString())
	assert.Equal(t, vfs.KindFile, e1.Attrs.Kind)

	e2, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", e2.NameString())
	assert.Equal(t, vfs.KindDirectory, e2.Attrs.Kind)

	_, err = it.Next()
	assert.ErrorIs(t, err, vfs.ErrEndOfDir)
}
