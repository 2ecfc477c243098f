// Package rodfs implements a generic read-only in-memory filesystem
// tree: the building block sysfs uses to expose a parsed ustar archive,
// and usable on its own for any fixed, boot-time-baked data drive.
package rodfs

import "github.com/SafaOS/SafaOS-sub001/kernel/vfs"

// File is an immutable, fixed-content file.
type File struct {
	name string
	data []byte
}

// NewFile constructs a read-only file named name with the given
// contents. data is retained, not copied: callers must not mutate it
// afterward.
func NewFile(name string, data []byte) *File {
	return &File{name: name, data: data}
}

func (f *File) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindFile, Size: uint64(len(f.data))} }
func (f *File) Name() string     { return f.name }

func (f *File) ReadAt(buf []byte, off vfs.Offset) (int, error) {
	if off < 0 {
		return 0, vfs.NewError(vfs.ErrInvalidOffset, "")
	}
	if int(off) >= len(f.data) {
		return 0, nil
	}
	return copy(buf, f.data[off:]), nil
}

// Dir is a fixed, read-only directory built once (by a builder such as
// sysfs's ustar loader) and never mutated afterward.
type Dir struct {
	name     string
	order    []string
	children map[string]vfs.Node
}

// NewDir constructs an empty read-only directory named name. Use AddChild
// to populate it before mounting; once mounted it must not be mutated
// further (CreateChild/RemoveChild always fail).
func NewDir(name string) *Dir {
	return &Dir{name: name, children: make(map[string]vfs.Node)}
}

// AddChild inserts child under name, for use only while building the
// tree (not exposed as a VFS operation — rodfs.Dir.CreateChild always
// fails).
func (d *Dir) AddChild(name string, child vfs.Node) {
	if _, exists := d.children[name]; !exists {
		d.order = append(d.order, name)
	}
	d.children[name] = child
}

func (d *Dir) Attrs() vfs.Attrs { return vfs.Attrs{Kind: vfs.KindDirectory, Size: uint64(len(d.order))} }
func (d *Dir) Name() string     { return d.name }

func (d *Dir) Lookup(name string) (vfs.Node, bool) {
	n, ok := d.children[name]
	return n, ok
}

func (d *Dir) CreateChild(string, vfs.NodeKind) (vfs.Node, error) {
	return nil, vfs.NewError(vfs.ErrOperationNotSupported, "read-only filesystem")
}

func (d *Dir) RemoveChild(string) error {
	return vfs.NewError(vfs.ErrOperationNotSupported, "read-only filesystem")
}

func (d *Dir) OpenDirIter() (vfs.DirIter, error) {
	names := make([]string, len(d.order))
	copy(names, d.order)
	return &dirIter{dir: d, names: names}, nil
}

type dirIter struct {
	dir   *Dir
	names []string
	pos   int
}

func (it *dirIter) Next() (vfs.DirEntry, error) {
	if it.pos >= len(it.names) {
		return vfs.DirEntry{}, vfs.ErrEndOfDir
	}
	name := it.names[it.pos]
	it.pos++
	child, ok := it.dir.children[name]
	if !ok {
		return it.Next()
	}
	return vfs.NewDirEntry(child.Attrs(), name), nil
}
