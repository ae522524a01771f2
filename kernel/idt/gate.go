package idt

// GateType selects how the CPU enters a gate.
type GateType uint8

const (
	// InterruptGate clears IF on entry so the handler cannot be interrupted.
	InterruptGate = GateType(0xe)

	// TrapGate leaves IF untouched.
	TrapGate = GateType(0xf)
)

// Gate is a 16-byte long mode IDT entry.
type Gate struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	flags      uint8
	offsetMid  uint16
	offsetHigh uint32
	_          uint32
}

// NewGate returns a present gate that enters handler through the code
// segment selected by selector. dpl is the lowest privilege level allowed to
// raise the vector with an INT instruction.
func NewGate(handler uintptr, selector uint16, gateType GateType, dpl uint8) Gate {
	return Gate{
		offsetLow:  uint16(handler),
		selector:   selector,
		flags:      1<<7 | (dpl&0x3)<<5 | uint8(gateType)&0xf,
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

// SetStackIndex makes the CPU switch to the stack stored in interrupt stack
// table slot index (0-6) before entering the handler.
func (g *Gate) SetStackIndex(index int) {
	g.ist = uint8(index+1) & 0x7
}

// StackIndex returns the interrupt stack table slot used by the gate. The
// second result is false if the gate runs on the interrupted stack.
func (g Gate) StackIndex() (int, bool) {
	if g.ist == 0 {
		return 0, false
	}
	return int(g.ist) - 1, true
}

// Present returns true if the gate can be used.
func (g Gate) Present() bool {
	return g.flags&(1<<7) != 0
}

// Handler returns the address of the entry point.
func (g Gate) Handler() uintptr {
	return uintptr(g.offsetLow) | uintptr(g.offsetMid)<<16 | uintptr(g.offsetHigh)<<32
}

// Selector returns the code segment selector used by the gate.
func (g Gate) Selector() uint16 {
	return g.selector
}

// Type returns the gate type.
func (g Gate) Type() GateType {
	return GateType(g.flags & 0xf)
}

// PrivilegeLevel returns the gate DPL.
func (g Gate) PrivilegeLevel() uint8 {
	return (g.flags >> 5) & 0x3
}

// Table holds a gate for each of the 256 vectors. Zero gates are not
// present and raise a general protection fault if triggered.
type Table [256]Gate
