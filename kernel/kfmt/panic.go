package kfmt

import (
	"abos/kernel"
	"abos/kernel/cpu"
)

var (
	// cpuHaltFn is swapped by tests so Panic returns to the caller.
	cpuHaltFn = cpu.Halt

	// panicking is set once a panic message has been printed. A fault
	// raised while printing halts without printing again.
	panicking bool

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints a diagnostic for e and halts the CPU. e may be a
// *kernel.Error, an error, a string or nil. Panic never returns on real
// hardware.
//
// Calls to the builtin panic in the kernel image land here.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	// The output lock is bypassed as the panic may have been raised while
	// it was held.
	if !panicking {
		panicking = true

		Fprintf(activeSink{}, "\n*** kernel panic ***\n")
		if err != nil {
			Fprintf(activeSink{}, "[%s] unrecoverable error: %s\n", err.Module, err.Message)
		}
		Fprintf(activeSink{}, "system halted\n")
	}

	cpuHaltFn()
}

// panicString receives the message of fatal runtime errors.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
