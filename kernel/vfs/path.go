package vfs

import (
	"regexp"
	"strings"
)

var driveNameRe = regexp.MustCompile(`^[A-Za-z0-9]{1,8}$`)

// ParsePath splits a path of the form "<drive>:<segments>" into its drive
// name and normalized segment list. "/" at the start of
// segments is optional and ignored; "." and ".." are resolved during
// normalization; paths are absolute-only (no implicit CWD join here — the
// syscall layer does CWD join before calling the VFS).
func ParsePath(path string) (drive string, segments []string, err error) {
	idx := strings.IndexByte(path, ':')
	if idx <= 0 {
		return "", nil, NewError(ErrInvalidPath, "missing drive separator")
	}

	drive = path[:idx]
	if !driveNameRe.MatchString(drive) {
		return "", nil, NewError(ErrInvalidDrive, drive)
	}

	rest := path[idx+1:]
	if rest == "" {
		return "", nil, NewError(ErrInvalidPath, "empty path")
	}
	rest = strings.TrimPrefix(rest, "/")

	segments, err = normalizeSegments(rest)
	if err != nil {
		return "", nil, err
	}
	return drive, segments, nil
}

func normalizeSegments(rest string) ([]string, error) {
	if rest == "" {
		return nil, nil
	}

	parts := strings.Split(rest, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return nil, NewError(ErrInvalidPath, "'..' above drive root")
			}
			out = out[:len(out)-1]
		default:
			out = append(out, p)
		}
	}
	return out, nil
}

// JoinCwd joins a (possibly relative-looking) path against cwd the way the
// syscall layer does before ever calling into the VFS: an absolute path
// (one that already parses as "<drive>:...") is used as-is; anything else
// is resolved as a "<segment>/…" suffix appended to cwd.
func JoinCwd(cwd, path string) string {
	if strings.Contains(path, ":") {
		return path
	}
	if strings.HasSuffix(cwd, "/") {
		return cwd + path
	}
	return cwd + "/" + path
}
