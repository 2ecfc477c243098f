// Package sysfs mounts SafaOS's "sys:" drive: the read-only tree parsed
// from the boot ramdisk by kernel/ramdisk. It adds no behavior of its
// own: Mount returns the root unchanged, and the tree itself is built
// and owned by kernel/ramdisk's rodfs output.
package sysfs

import "github.com/SafaOS/SafaOS-sub001/kernel/vfs/rodfs"

// Mount returns the DirCreator to register under the "sys" drive name,
// given the root directory kernel/ramdisk.Load produced from the boot
// ramdisk image.
func Mount(root *rodfs.Dir) *rodfs.Dir {
	return root
}
