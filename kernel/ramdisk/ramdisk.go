// Package ramdisk parses the boot-time ustar archive the bootloader
// hands the kernel and builds the "sys:" drive's read-only tree from it.
// Standard-library archive/tar is used here rather than a third-party
// module: ustar is itself a standard, stable format with no
// project-specific extension this kernel needs.
package ramdisk

import (
	"archive/tar"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs/rodfs"
)

// Load parses a ustar-formatted byte stream and returns the root
// directory of the tree it describes, ready to be mounted as sys:.
func Load(data []byte) (*rodfs.Dir, error) {
	root := rodfs.NewDir("")
	tr := tar.NewReader(bytes.NewReader(data))

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, vfs.NewError(vfs.ErrInvalidArg, "malformed ustar archive: "+err.Error())
		}

		name := strings.Trim(hdr.Name, "/")
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if _, err := mkdirAll(root, name); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			content := make([]byte, hdr.Size)
			if _, err := io.ReadFull(tr, content); err != nil {
				return nil, vfs.NewError(vfs.ErrInvalidArg, "truncated archive entry "+name)
			}
			parentPath, base := path.Split(name)
			parent, err := mkdirAll(root, strings.Trim(parentPath, "/"))
			if err != nil {
				return nil, err
			}
			parent.AddChild(base, rodfs.NewFile(base, content))
		default:
			// Symlinks, hardlinks, device nodes: no representation in
			// this drive's node set, skipped rather than rejected.
			continue
		}
	}

	return root, nil
}

// mkdirAll walks/creates the directory chain named by dirPath (slash
// separated, relative to root) and returns the leaf directory.
func mkdirAll(root *rodfs.Dir, dirPath string) (*rodfs.Dir, error) {
	if dirPath == "" {
		return root, nil
	}

	cur := root
	for _, seg := range strings.Split(dirPath, "/") {
		if seg == "" {
			continue
		}
		child, ok := cur.Lookup(seg)
		if !ok {
			newDir := rodfs.NewDir(seg)
			cur.AddChild(seg, newDir)
			cur = newDir
			continue
		}
		dir, ok := child.(*rodfs.Dir)
		if !ok {
			return nil, vfs.NewError(vfs.ErrNotADirectory, seg)
		}
		cur = dir
	}
	return cur, nil
}
