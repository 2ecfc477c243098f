package rodfs

import (
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReadAt(t *testing.T) {
	f := NewFile("greeting", []byte("hello world"))
	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestDirLookupAndIter(t *testing.T) {
	root := NewDir("")
	root.AddChild("a.txt", NewFile("a.txt", []byte("A")))
	sub := NewDir("sub")
	sub.AddChild("b.txt", NewFile("b.txt", []byte("B")))
	root.AddChild("sub", sub)

	node, ok := root.Lookup("sub")
	require.True(t, ok)
	assert.Equal(t, vfs.KindDirectory, node.Attrs().Kind)

	it, err := root.OpenDirIter()
	require.NoError(t, err)
	var names []string
	for {
		e, err := it.Next()
		if err == vfs.ErrEndOfDir {
			break
		}
		require.NoError(t, err)
		names = append(names, e.NameString())
	}
	assert.Equal(t, []string{"a.txt", "sub"}, names)
}

func TestDirIsReadOnly(t *testing.T) {
	root := NewDir("")
	_, err := root.CreateChild("x", vfs.KindFile)
	assert.ErrorIs(t, err, vfs.NewError(vfs.ErrOperationNotSupported, ""))
	assert.ErrorIs(t, root.RemoveChild("x"), vfs.NewError(vfs.ErrOperationNotSupported, ""))
}
