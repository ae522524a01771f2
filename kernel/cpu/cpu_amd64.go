// Package cpu wraps the privileged amd64 instructions used by the kernel.
// Every function without a body is implemented in cpu_amd64.s.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// InterruptsEnabled returns true if the IF flag is set in RFLAGS.
func InterruptsEnabled() bool

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// ReadMSR returns the 64-bit contents of the model-specific register reg.
func ReadMSR(reg uint32) uint64

// WriteMSR stores value into the model-specific register reg.
func WriteMSR(reg uint32, value uint64)

// LoadGDT loads the descriptor-table pointer (a packed 16-bit limit followed
// by a 64-bit base) stored at descPtr into GDTR.
func LoadGDT(descPtr uintptr)

// LoadIDT loads the descriptor-table pointer stored at descPtr into IDTR.
func LoadIDT(descPtr uintptr)

// LoadTaskRegister loads the task register with the supplied TSS selector.
func LoadTaskRegister(selector uint16)

// ReloadSegments reloads CS with codeSelector using a far return and sets
// DS, ES and SS to dataSelector. FS and GS are left untouched as the Go
// runtime keeps its TLS base there.
func ReloadSegments(codeSelector, dataSelector uint16)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
