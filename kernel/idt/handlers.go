package idt

import (
	"abos/kernel"
	"abos/kernel/cpu"
	"abos/kernel/kfmt"
)

// Page fault error code bits.
const (
	pfProtection       = 1 << 0
	pfWrite            = 1 << 1
	pfUserMode         = 1 << 2
	pfReservedBit      = 1 << 3
	pfInstructionFetch = 1 << 4
)

// Handler processes an exception. Execution resumes at frame.RIP with the
// register values stored in frame if the handler returns.
type Handler func(frame *Frame)

var (
	// The following functions are used by tests to mock calls to privileged
	// instructions and to kfmt.Panic which halts the CPU.
	readCR2Fn = cpu.ReadCR2
	panicFn   = kfmt.Panic

	// excWriter tags exception diagnostics. Handlers write to it directly
	// instead of going through a kfmt.Logger as the exception may have
	// been raised while the output lock was held.
	excWriter = kfmt.PrefixWriter{Module: "idt"}

	errUnexpectedVector = &kernel.Error{Module: "idt", Message: "exception raised for a vector without a stub"}

	handlers = [exceptionCount]Handler{
		Breakpoint: breakpointHandler,
		PageFault:  pageFaultHandler,
	}
)

// HandleException replaces the handler for vector v. A nil handler restores
// the fatal default.
func HandleException(v Vector, handler Handler) {
	if v < exceptionCount {
		handlers[v] = handler
	}
}

// dispatchException is invoked by the entry stubs with a pointer to the
// saved state of the interrupted code.
func dispatchException(frame *Frame) {
	if frame.Vector < exceptionCount {
		if handler := handlers[frame.Vector]; handler != nil {
			handler(frame)
			return
		}
	}

	fatalException(frame)
}

// breakpointHandler reports the breakpoint and resumes execution after the
// INT3 instruction.
func breakpointHandler(frame *Frame) {
	kfmt.Fprintf(&excWriter, "breakpoint at RIP 0x%x\n", frame.RIP)
	frame.DumpTo(&excWriter)
}

// pageFaultHandler reports the faulting address and the decoded error code.
// Page faults are never recoverable.
func pageFaultHandler(frame *Frame) {
	kfmt.Fprintf(&excWriter, "page fault while accessing address: 0x%16x\n", uintptr(readCR2Fn()))
	kfmt.Fprintf(&excWriter, "reason: %s\n", pageFaultReason(frame.ErrorCode))
	fatalException(frame)
}

func pageFaultReason(errorCode uint64) string {
	switch {
	case errorCode&pfReservedBit != 0:
		return "page table has reserved bit set"
	case errorCode&pfInstructionFetch != 0:
		return "instruction fetch"
	case errorCode&pfUserMode != 0:
		return "page-fault in user-mode"
	case errorCode&(pfProtection|pfWrite) == pfProtection|pfWrite:
		return "page protection violation (write)"
	case errorCode&pfProtection != 0:
		return "page protection violation (read)"
	case errorCode&pfWrite != 0:
		return "write to non-present page"
	default:
		return "read from non-present page"
	}
}

// fatalException dumps the frame and halts the system.
func fatalException(frame *Frame) {
	err := errUnexpectedVector
	if frame.Vector < exceptionCount {
		err = &exceptionErrors[frame.Vector]
	}

	kfmt.Fprintf(&excWriter, "%s at RIP 0x%x\n", err.Message, frame.RIP)
	if frame.Vector < exceptionCount && Vector(frame.Vector).pushesErrorCode() {
		kfmt.Fprintf(&excWriter, "error code: 0x%x\n", frame.ErrorCode)
	}
	frame.DumpTo(&excWriter)

	panicFn(err)
}
