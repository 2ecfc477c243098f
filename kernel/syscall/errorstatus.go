// Package syscall implements the kernel's numeric syscall dispatch
// surface: argument validation against the calling process's VAS,
// dispatch into proc/vfs/sched/futex, and the single total mapping
// from every subsystem's rich error type to the flat ErrorStatus enum
// returned to userspace.
package syscall

import (
	"errors"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/proc"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// ErrorStatus is the syscall return value's non-zero case: a single
// flat enum covering every syscall-visible failure.
type ErrorStatus uint16

const (
	StatusOK ErrorStatus = iota
	StatusGeneric
	StatusOperationNotSupported
	StatusNotSupported
	StatusCorrupted
	StatusInvalidSyscall
	StatusInvalidResource
	StatusInvalidPid
	StatusInvalidTid
	StatusInvalidOffset
	StatusInvalidPtr
	StatusInvalidStr
	StatusStrTooLong
	StatusInvalidPath
	StatusNoSuchFileOrDirectory
	StatusNotAFile
	StatusNotADirectory
	StatusAlreadyExists
	StatusNotExecutable
	StatusDirectoryNotEmpty
	StatusMissingPermissions
	StatusOutOfMemory
	StatusBusy
	StatusNotEnoughArguments
	StatusMMapError
)

// FromError performs the total mapping from any internal subsystem error
// to an ErrorStatus. Unrecognized errors (a programmer bug, not a user
// input) map to StatusGeneric rather than panicking — the syscall
// boundary itself never panics on user-triggerable input.
func FromError(err error) ErrorStatus {
	if err == nil {
		return StatusOK
	}

	var fsErr *vfs.FSError
	if errors.As(err, &fsErr) {
		return fromFSError(fsErr.Kind)
	}

	switch {
	case errors.Is(err, vmm.ErrNoFreeRange):
		return StatusOutOfMemory
	case errors.Is(err, vmm.ErrFrameAllocFailed):
		return StatusOutOfMemory
	case errors.Is(err, vmm.ErrDataLimitExceeded):
		return StatusOutOfMemory
	case errors.Is(err, vmm.ErrInvalidMapping):
		return StatusInvalidPtr
	case errors.Is(err, proc.ErrUnknownResource):
		return StatusInvalidResource
	case errors.Is(err, proc.ErrUnsupportedResource):
		return StatusNotSupported
	case errors.Is(err, proc.ErrNameTooLong):
		return StatusStrTooLong
	default:
		return StatusGeneric
	}
}

func fromFSError(kind vfs.FSErrorKind) ErrorStatus {
	switch kind {
	case vfs.ErrInvalidPath:
		return StatusInvalidPath
	case vfs.ErrInvalidDrive:
		return StatusInvalidPath
	case vfs.ErrNoSuchFileOrDirectory:
		return StatusNoSuchFileOrDirectory
	case vfs.ErrAlreadyExists:
		return StatusAlreadyExists
	case vfs.ErrNotAFile:
		return StatusNotAFile
	case vfs.ErrNotADirectory:
		return StatusNotADirectory
	case vfs.ErrNotExecutable:
		return StatusNotExecutable
	case vfs.ErrDirectoryNotEmpty:
		return StatusDirectoryNotEmpty
	case vfs.ErrInvalidSize:
		return StatusGeneric
	case vfs.ErrInvalidOffset:
		return StatusInvalidOffset
	case vfs.ErrInvalidCmd:
		return StatusInvalidSyscall
	case vfs.ErrInvalidArg:
		return StatusGeneric
	case vfs.ErrInvalidResource:
		return StatusInvalidResource
	case vfs.ErrUnsupportedResource:
		return StatusNotSupported
	case vfs.ErrOperationNotSupported:
		return StatusOperationNotSupported
	default:
		return StatusGeneric
	}
}
