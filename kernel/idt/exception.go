package idt

import (
	"abos/kernel"
	"abos/kernel/kfmt"
	"io"
)

// Vector identifies a CPU exception.
type Vector uint8

const (
	// DivideError occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideError = Vector(0)

	// Debug is raised by debug registers and single stepping.
	Debug = Vector(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = Vector(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = Vector(3)

	// Overflow is raised by the INTO instruction when OF is set.
	Overflow = Vector(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = Vector(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = Vector(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while
	// FPU/MMX/SSE support has been disabled by manipulating the CR0
	// register.
	DeviceNotAvailable = Vector(7)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = Vector(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = Vector(10)

	// SegmentNotPresent occurs when loading a segment whose descriptor is
	// not present.
	SegmentNotPresent = Vector(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when the stack base/limit (set in
	// GDT) checks fail.
	StackSegmentFault = Vector(12)

	// GeneralProtectionFault covers segment, privilege and register
	// access violations.
	GeneralProtectionFault = Vector(13)

	// PageFault occurs when a page table entry is not present or when a
	// privilege and/or RW protection check fails.
	PageFault = Vector(14)

	// FloatingPointException occurs while invoking an FP instruction while:
	//  - CR0.NE = 1 OR
	//  - an unmasked FP exception is pending
	FloatingPointException = Vector(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = Vector(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = Vector(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1.
	SIMDFloatingPointException = Vector(19)

	// VirtualizationException is raised by EPT violations.
	VirtualizationException = Vector(20)

	// ControlProtectionException is raised by control flow enforcement.
	ControlProtectionException = Vector(21)

	// exceptionCount is the number of vectors with an entry stub.
	exceptionCount = 22
)

// exceptionErrors holds the error reported when an exception has no
// handler. The table is filled in by the linker so that it is usable before
// any package initializer has run.
var exceptionErrors = [exceptionCount]kernel.Error{
	{Module: "idt", Message: "divide error"},
	{Module: "idt", Message: "debug"},
	{Module: "idt", Message: "non-maskable interrupt"},
	{Module: "idt", Message: "breakpoint"},
	{Module: "idt", Message: "overflow"},
	{Module: "idt", Message: "bound range exceeded"},
	{Module: "idt", Message: "invalid opcode"},
	{Module: "idt", Message: "device not available"},
	{Module: "idt", Message: "double fault"},
	{Module: "idt", Message: "coprocessor segment overrun"},
	{Module: "idt", Message: "invalid TSS"},
	{Module: "idt", Message: "segment not present"},
	{Module: "idt", Message: "stack-segment fault"},
	{Module: "idt", Message: "general protection fault"},
	{Module: "idt", Message: "page fault"},
	{Module: "idt", Message: "reserved"},
	{Module: "idt", Message: "x87 floating-point exception"},
	{Module: "idt", Message: "alignment check"},
	{Module: "idt", Message: "machine check"},
	{Module: "idt", Message: "SIMD floating-point exception"},
	{Module: "idt", Message: "virtualization exception"},
	{Module: "idt", Message: "control protection exception"},
}

// String returns the exception name.
func (v Vector) String() string {
	if v < exceptionCount {
		return exceptionErrors[v].Message
	}
	return "unknown"
}

// reserved returns true for vectors that are never raised in long mode.
func (v Vector) reserved() bool {
	return v == 9 || v == 15
}

// pushesErrorCode returns true if the CPU pushes an error code before
// entering the handler for v.
func (v Vector) pushesErrorCode() bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck, ControlProtectionException:
		return true
	}
	return false
}

// Frame is the state saved by the CPU and the entry stubs when an exception
// is raised. The entry stubs push a zero ErrorCode for vectors that do not
// supply one.
type Frame struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	Vector    uint64
	ErrorCode uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (f *Frame) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", f.RAX, f.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", f.RCX, f.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", f.RSI, f.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", f.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", f.R8, f.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", f.R10, f.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", f.R12, f.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", f.R14, f.R15)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", f.RFlags)
}
