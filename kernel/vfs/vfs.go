package vfs

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Drive is a mounted filesystem's root node plus the single-letter (well,
// up-to-8-char) name it is addressed by, e.g. "ram", "sys", "proc", "dev".
type Drive struct {
	Name string
	Root DirCreator
}

// VFS is the kernel's mount table: a fixed set of drives, each mounted
// exactly once at boot: there is no runtime mount/unmount syscall. The
// shape follows the global-registry-behind-a-RWMutex pattern used
// elsewhere in the kernel (kernel/proc.Table, kernel/futex.Registry).
type VFS struct {
	mu     sync.RWMutex
	drives map[string]DirCreator
	log    *logrus.Entry
}

// New constructs an empty mount table.
func New(log *logrus.Entry) *VFS {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &VFS{drives: make(map[string]DirCreator), log: log.WithField("subsystem", "vfs")}
}

// Mount registers root under drive. Mounting the same drive name twice is
// a programmer error, not a runtime error: SafaOS mounts are fixed at
// boot time.
func (v *VFS) Mount(drive string, root DirCreator) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.drives[drive]; exists {
		panic("vfs: drive already mounted: " + drive)
	}
	v.drives[drive] = root
	v.log.WithField("drive", drive).Info("mounted filesystem")
}

// driveRoot looks up a mounted drive. Callers must hold v.mu (read or
// write).
func (v *VFS) driveRoot(name string) (DirCreator, error) {
	root, ok := v.drives[name]
	if !ok {
		return nil, NewError(ErrInvalidDrive, name)
	}
	return root, nil
}

// resolve walks segments from a drive's root, returning the final node
// and (if the full path resolved) its parent directory for operations
// that need to mutate the parent (create/remove). Callers must hold
// v.mu (read or write).
func (v *VFS) resolve(path string) (node Node, parent DirCreator, name string, err error) {
	drive, segments, err := ParsePath(path)
	if err != nil {
		return nil, nil, "", err
	}
	root, err := v.driveRoot(drive)
	if err != nil {
		return nil, nil, "", err
	}
	if len(segments) == 0 {
		return root, nil, "", nil
	}

	cur := root
	for i, seg := range segments {
		child, ok := cur.Lookup(seg)
		if !ok {
			return nil, nil, "", NewError(ErrNoSuchFileOrDirectory, path)
		}
		if i == len(segments)-1 {
			return child, cur, seg, nil
		}
		next, ok := child.(DirCreator)
		if !ok {
			return nil, nil, "", NewError(ErrNotADirectory, seg)
		}
		cur = next
	}
	return root, nil, "", nil
}

// Open resolves path and wraps the resulting node in a Descriptor opened
// with opts. CreateNew implies the path must not already exist;
// Truncate implies the node is truncated to zero on a successful open.
func (v *VFS) Open(path string, opts OpenOptions) (*Descriptor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	node, parent, name, err := v.resolve(path)
	if err != nil {
		if opts.Has(OptCreateNew) && isNotFound(err) {
			return v.createAndOpen(path, opts)
		}
		return nil, err
	}
	if opts.Has(OptCreateNew) {
		return nil, NewError(ErrAlreadyExists, path)
	}
	_ = parent
	_ = name

	if opts.Has(OptTruncate) {
		if t, ok := node.(Truncater); ok {
			if err := t.Truncate(0); err != nil {
				return nil, err
			}
		}
	}
	return NewDescriptor(node, opts), nil
}

func isNotFound(err error) bool {
	fe, ok := err.(*FSError)
	return ok && fe.Kind == ErrNoSuchFileOrDirectory
}

func (v *VFS) createAndOpen(path string, opts OpenOptions) (*Descriptor, error) {
	node, err := v.createFileLocked(path)
	if err != nil {
		return nil, err
	}
	return NewDescriptor(node, opts), nil
}

// OpenAll is the entry point the syscall layer calls for open and
// open_all. It behaves exactly like Open: a missing path is created only
// when opts includes OptCreateNew.
func (v *VFS) OpenAll(path string, opts OpenOptions) (*Descriptor, error) {
	return v.Open(path, opts)
}

func (v *VFS) splitParent(path string) (parentPath string, name string, err error) {
	drive, segments, err := ParsePath(path)
	if err != nil {
		return "", "", err
	}
	if len(segments) == 0 {
		return "", "", NewError(ErrInvalidPath, "cannot create drive root")
	}
	name = segments[len(segments)-1]
	parentPath = drive + ":/"
	for _, s := range segments[:len(segments)-1] {
		parentPath += s + "/"
	}
	return parentPath, name, nil
}

func (v *VFS) parentDir(path string) (DirCreator, string, error) {
	parentPath, name, err := v.splitParent(path)
	if err != nil {
		return nil, "", err
	}
	node, _, _, err := v.resolve(parentPath)
	if err != nil {
		return nil, "", err
	}
	dir, ok := node.(DirCreator)
	if !ok {
		return nil, "", NewError(ErrNotADirectory, parentPath)
	}
	return dir, name, nil
}

func (v *VFS) createFileLocked(path string) (Node, error) {
	dir, name, err := v.parentDir(path)
	if err != nil {
		return nil, err
	}
	if _, exists := dir.Lookup(name); exists {
		return nil, NewError(ErrAlreadyExists, path)
	}
	return dir.CreateChild(name, KindFile)
}

// CreateFile creates an empty file at path without opening it.
func (v *VFS) CreateFile(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.createFileLocked(path)
	return err
}

// CreateDir creates an empty directory at path.
func (v *VFS) CreateDir(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	dir, name, err := v.parentDir(path)
	if err != nil {
		return err
	}
	if _, exists := dir.Lookup(name); exists {
		return NewError(ErrAlreadyExists, path)
	}
	_, err = dir.CreateChild(name, KindDirectory)
	return err
}

// RemovePath removes an empty file or directory at path.
func (v *VFS) RemovePath(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	node, parent, name, err := v.resolve(path)
	if err != nil {
		return err
	}
	if parent == nil {
		return NewError(ErrInvalidPath, "cannot remove drive root")
	}
	if node.Attrs().Kind == KindDirectory {
		if iter, ok := node.(DirIterOpener); ok {
			di, err := iter.OpenDirIter()
			if err != nil {
				return err
			}
			if _, err := di.Next(); err != ErrEndOfDir {
				return NewError(ErrDirectoryNotEmpty, path)
			}
		}
	}
	return parent.RemoveChild(name)
}

// GetDirEntry resolves path and returns its metadata as a DirEntry
// without opening it.
func (v *VFS) GetDirEntry(path string) (DirEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	node, _, _, err := v.resolve(path)
	if err != nil {
		return DirEntry{}, err
	}
	return NewDirEntry(node.Attrs(), node.Name()), nil
}

// VerifyPathDir resolves path and confirms it names a directory,
// returning its Node for callers (chdir) that need to retain it.
func (v *VFS) VerifyPathDir(path string) (Node, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	node, _, _, err := v.resolve(path)
	if err != nil {
		return nil, err
	}
	if node.Attrs().Kind != KindDirectory {
		return nil, NewError(ErrNotADirectory, path)
	}
	return node, nil
}
