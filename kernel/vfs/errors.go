package vfs

// FSErrorKind enumerates the VFS's rich error taxonomy.
type FSErrorKind uint8

const (
	ErrInvalidPath FSErrorKind = iota
	ErrInvalidDrive
	ErrNoSuchFileOrDirectory
	ErrAlreadyExists
	ErrNotAFile
	ErrNotADirectory
	ErrNotExecutable
	ErrDirectoryNotEmpty
	ErrInvalidSize
	ErrInvalidOffset
	ErrInvalidCmd
	ErrInvalidArg
	ErrInvalidResource
	ErrUnsupportedResource
	ErrOperationNotSupported
)

var kindNames = map[FSErrorKind]string{
	ErrInvalidPath:           "invalid path",
	ErrInvalidDrive:          "invalid drive",
	ErrNoSuchFileOrDirectory: "no such file or directory",
	ErrAlreadyExists:         "already exists",
	ErrNotAFile:              "not a file",
	ErrNotADirectory:         "not a directory",
	ErrNotExecutable:         "not executable",
	ErrDirectoryNotEmpty:     "directory not empty",
	ErrInvalidSize:           "invalid size",
	ErrInvalidOffset:         "invalid offset",
	ErrInvalidCmd:            "invalid command",
	ErrInvalidArg:            "invalid argument",
	ErrInvalidResource:       "invalid resource",
	ErrUnsupportedResource:   "unsupported resource",
	ErrOperationNotSupported: "operation not supported",
}

// FSError is the VFS's rich error type: every internal filesystem failure
// is one of these, wrapped with the idiomatic Go 1.13 Is/As conventions
// (stdlib errors.Is/errors.As) rather than a bespoke wrapping scheme — the
// pattern rclone/fs/fserrors and perkeep/pkg/camerrors both use. kernel/syscall
// performs the single, total mapping from FSError to ErrorStatus.
type FSError struct {
	Kind FSErrorKind
	Msg  string
}

func (e *FSError) Error() string {
	if e.Msg == "" {
		return "vfs: " + kindNames[e.Kind]
	}
	return "vfs: " + kindNames[e.Kind] + ": " + e.Msg
}

// NewError constructs an FSError of the given kind with a descriptive
// message.
func NewError(kind FSErrorKind, msg string) *FSError {
	return &FSError{Kind: kind, Msg: msg}
}

// Is reports whether target is an *FSError with the same Kind, so callers
// can write errors.Is(err, vfs.NewError(vfs.ErrNoSuchFileOrDirectory, "")).
func (e *FSError) Is(target error) bool {
	t, ok := target.(*FSError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
