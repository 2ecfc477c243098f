package kernel

import (
	"github.com/SafaOS/SafaOS-sub001/kernel/kfmt/early"
)

// haltFn is a package variable so that a test can replace it; a real build
// uses the blocking default below.
var haltFn = func() {
	select {}
}

var errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}

// Panic outputs the supplied error (if not nil) to the early console and
// halts the calling CPU. Panic never returns. It is reserved for conditions
// that indicate a programmer bug rather than bad user input: user-input
// failures are always reported as an error return, never a panic.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	default:
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	haltFn()
}
