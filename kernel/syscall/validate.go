package syscall

import (
	"unicode/utf8"

	"github.com/SafaOS/SafaOS-sub001/kernel/mem/vmm"
	"github.com/SafaOS/SafaOS-sub001/kernel/vfs"
)

// maxStrLen bounds how many bytes ReadCString (and readUserString) will
// accept before giving up with StatusStrTooLong, so a missing NUL
// terminator in malicious userspace memory cannot make the kernel scan
// forever.
const maxStrLen = 4096

// CheckPtr validates a userspace pointer: non-null and
// aligned to align. Containment within the user-accessible half of the
// VAS is enforced implicitly by every read/write below failing with
// StatusInvalidPtr when the pages backing addr are unmapped or
// kernel-only.
func CheckPtr(addr uintptr, align uintptr) ErrorStatus {
	if addr == 0 {
		return StatusInvalidPtr
	}
	if align > 1 && addr%align != 0 {
		return StatusInvalidPtr
	}
	return StatusOK
}

// ReadBytes copies n bytes from the calling process's VAS at addr. An
// empty slice (n == 0) always succeeds regardless of addr: byte slices
// may be empty (length 0 with any pointer).
func ReadBytes(as *vmm.AddrSpace, addr uintptr, n int) ([]byte, ErrorStatus) {
	if n == 0 {
		return nil, StatusOK
	}
	if status := CheckPtr(addr, 1); status != StatusOK {
		return nil, status
	}
	buf := make([]byte, n)
	if _, err := as.Table().Read(addr, buf); err != nil {
		return nil, StatusInvalidPtr
	}
	return buf, StatusOK
}

// WriteBytes copies data into the calling process's VAS at addr.
func WriteBytes(as *vmm.AddrSpace, addr uintptr, data []byte) ErrorStatus {
	if len(data) == 0 {
		return StatusOK
	}
	if status := CheckPtr(addr, 1); status != StatusOK {
		return status
	}
	if _, err := as.Table().Write(addr, data); err != nil {
		return StatusInvalidPtr
	}
	return StatusOK
}

// ReadCString reads a NUL-terminated byte string from addr, validates it
// as UTF-8, and returns it without the terminator.
func ReadCString(as *vmm.AddrSpace, addr uintptr) (string, ErrorStatus) {
	if status := CheckPtr(addr, 1); status != StatusOK {
		return "", status
	}

	var out []byte
	chunk := make([]byte, 64)
	for len(out) < maxStrLen {
		n, err := as.Table().Read(addr+uintptr(len(out)), chunk)
		if err != nil || n == 0 {
			return "", StatusInvalidPtr
		}
		if idx := indexByte(chunk[:n], 0); idx >= 0 {
			out = append(out, chunk[:idx]...)
			if !utf8.Valid(out) {
				return "", StatusInvalidStr
			}
			return string(out), StatusOK
		}
		out = append(out, chunk[:n]...)
	}
	return "", StatusStrTooLong
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}

// ReadPath reads a path string from addr and parses it, producing
// StatusInvalidPath on malformed grammar.
func ReadPath(as *vmm.AddrSpace, addr uintptr) (string, ErrorStatus) {
	path, status := ReadCString(as, addr)
	if status != StatusOK {
		return "", status
	}
	if _, _, err := vfs.ParsePath(path); err != nil {
		return "", StatusInvalidPath
	}
	return path, StatusOK
}
