package ramdisk

import (
	"archive/tar"
	"bytes"
	"sort"
	"testing"

	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, entries map[string]string, dirs []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, d := range dirs {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: d + "/", Typeflag: tar.TypeDir}))
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := entries[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestLoadFlatFiles(t *testing.T) {
	archive := buildArchive(t, map[string]string{"hello.txt": "hi there"}, nil)

	root, err := Load(archive)
	require.NoError(t, err)

	node, ok := root.Lookup("hello.txt")
	require.True(t, ok)
	r := node.(vfs.Reader)
	buf := make([]byte, 8)
	n, err := r.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(buf[:n]))
}

func TestLoadCreatesImplicitParentDirs(t *testing.T) {
	archive := buildArchive(t, map[string]string{"bin/app": "payload"}, nil)

	root, err := Load(archive)
	require.NoError(t, err)

	node, ok := root.Lookup("bin")
	require.True(t, ok)
	assert.Equal(t, vfs.KindDirectory, node.Attrs().Kind)

	dir := node.(vfs.DirCreator)
	appNode, ok := dir.Lookup("app")
	require.True(t, ok)
	assert.Equal(t, vfs.KindFile, appNode.Attrs().Kind)
}

func TestLoadExplicitDirEntries(t *testing.T) {
	archive := buildArchive(t, nil, []string{"etc", "etc/sub"})

	root, err := Load(archive)
	require.NoError(t, err)

	node, ok := root.Lookup("etc")
	require.True(t, ok)
	dir := node.(vfs.DirCreator)
	sub, ok := dir.Lookup("sub")
	require.True(t, ok)
	assert.Equal(t, vfs.KindDirectory, sub.Attrs().Kind)
}

func TestLoadRejectsFileWhereDirectoryExpected(t *testing.T) {
	archive := buildArchive(t, map[string]string{"a": "x", "a/b": "y"}, nil)

	_, err := Load(archive)
	assert.ErrorIs(t, err, vfs.NewError(vfs.ErrNotADirectory, ""))
}
