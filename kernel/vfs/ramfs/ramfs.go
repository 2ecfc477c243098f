// Package ramfs implements SafaOS's "ram:" drive: an in-memory,
// read-write filesystem tree. It is the only writable mount in the
// system.
package ramfs

import (
	"sync"

	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// File is a ramfs regular file: a growable in-memory byte buffer.
type File struct {
	mu   sync.RWMutex
	name string
	data []byte
}

func newFile(name string) *File {
	return &File{name: name}
}

func (f *File) Attrs() vfs.Attrs {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return vfs.Attrs{Kind: vfs.KindFile, Size: uint64(len(f.data))}
}

func (f *File) Name() string { return f.name }

func (f *File) ReadAt(buf []byte, off vfs.Offset) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if off < 0 {
		return 0, vfs.NewError(vfs.ErrInvalidOffset, "")
	}
	if int(off) >= len(f.data) {
		return 0, nil
	}
	n := copy(buf, f.data[off:])
	return n, nil
}

func (f *File) WriteAt(buf []byte, off vfs.Offset) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off < 0 {
		return 0, vfs.NewError(vfs.ErrInvalidOffset, "")
	}
	end := int(off) + len(buf)
	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[off:end], buf)
	return n, nil
}

func (f *File) Truncate(size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if int(size) <= len(f.data) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

// Dir is a ramfs directory: an ordered map of child name to node. Order
// is preserved so directory listings are stable across OpenDirIter
// calls, the same preference for deterministic iteration
// kernel/mem/pmm/allocator's pool ordering shows over bare map iteration.
type Dir struct {
	mu       sync.RWMutex
	name     string
	order    []string
	children map[string]vfs.Node
}

// NewDir constructs an empty directory named name.
func NewDir(name string) *Dir {
	return &Dir{name: name, children: make(map[string]vfs.Node)}
}

func (d *Dir) Attrs() vfs.Attrs {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return vfs.Attrs{Kind: vfs.KindDirectory, Size: uint64(len(d.order))}
}

func (d *Dir) Name() string { return d.name }

func (d *Dir) Lookup(name string) (vfs.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.children[name]
	return n, ok
}

func (d *Dir) CreateChild(name string, kind vfs.NodeKind) (vfs.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.children[name]; exists {
		return nil, vfs.NewError(vfs.ErrAlreadyExists, name)
	}

	var child vfs.Node
	switch kind {
	case vfs.KindFile:
		child = newFile(name)
	case vfs.KindDirectory:
		child = NewDir(name)
	default:
		return nil, vfs.NewError(vfs.ErrInvalidArg, "unsupported kind for ramfs")
	}
	d.children[name] = child
	d.order = append(d.order, name)
	return child, nil
}

func (d *Dir) RemoveChild(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.children[name]; !exists {
		return vfs.NewError(vfs.ErrNoSuchFileOrDirectory, name)
	}
	delete(d.children, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Dir) OpenDirIter() (vfs.DirIter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
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

	it.dir.mu.RLock()
	child, ok := it.dir.children[name]
	it.dir.mu.RUnlock()
	if !ok {
		return it.Next()
	}
	return vfs.NewDirEntry(child.Attrs(), name), nil
}
