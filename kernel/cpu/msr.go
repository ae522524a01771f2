package cpu

import "abos/kernel"

// Model-specific registers used by the kernel.
const (
	// MSREFER is the extended feature enable register.
	MSREFER = uint32(0xC0000080)

	// EFERNoExecuteEnable is the EFER bit that enables the no-execute page
	// flag.
	EFERNoExecuteEnable = uint8(11)

	// MSRMTRRCap describes the MTRR capabilities of the CPU.
	MSRMTRRCap = uint32(0xFE)
)

var (
	readMSRFn           = ReadMSR
	writeMSRFn          = WriteMSR
	hasFeatureFn        = HasFeature
	interruptsEnabledFn = InterruptsEnabled
	disableInterruptsFn = DisableInterrupts
	enableInterruptsFn  = EnableInterrupts

	// ErrNoMSRSupport is returned when the CPU lacks RDMSR/WRMSR.
	ErrNoMSRSupport = &kernel.Error{Module: "msr", Message: "CPU does not support model-specific registers"}

	// ErrInvalidBitRange is returned for a field whose bounds are reversed
	// or extend past bit 63.
	ErrInvalidBitRange = &kernel.Error{Module: "msr", Message: "invalid MSR bit range"}

	// ErrValueExceedsBitRange is returned when a value does not fit in the
	// target field.
	ErrValueExceedsBitRange = &kernel.Error{Module: "msr", Message: "value exceeds MSR bit range"}
)

// fieldMask returns a mask selecting bits [start, end] (inclusive).
func fieldMask(start, end uint8) uint64 {
	if end == 63 {
		return ^uint64(0) << start
	}
	return (uint64(1) << (end + 1)) - (uint64(1) << start)
}

func checkField(start, end uint8) *kernel.Error {
	if start > end || end > 63 {
		return ErrInvalidBitRange
	}
	if !hasFeatureFn(FeatureMSR) {
		return ErrNoMSRSupport
	}
	return nil
}

// ReadMSRField returns bits [start, end] of reg shifted down to bit 0.
func ReadMSRField(reg uint32, start, end uint8) (uint64, *kernel.Error) {
	if err := checkField(start, end); err != nil {
		return 0, err
	}

	return (readMSRFn(reg) & fieldMask(start, end)) >> start, nil
}

// WriteMSRField replaces bits [start, end] of reg with value leaving every
// other bit intact. The read-modify-write sequence runs with interrupts
// masked so a handler can never observe or clobber a half-updated register.
func WriteMSRField(reg uint32, start, end uint8, value uint64) *kernel.Error {
	if err := checkField(start, end); err != nil {
		return err
	}

	if width := end - start + 1; width < 64 && value>>width != 0 {
		return ErrValueExceedsBitRange
	}

	restore := interruptsEnabledFn()
	disableInterruptsFn()

	mask := fieldMask(start, end)
	writeMSRFn(reg, (readMSRFn(reg)&^mask)|((value<<start)&mask))

	if restore {
		enableInterruptsFn()
	}

	return nil
}
