package cpu

import "unsafe"

// DescriptorTablePointer holds the operand of the LGDT and LIDT
// instructions: a 16-bit limit immediately followed by a 64-bit base
// address. The padding in front of limit keeps base naturally aligned while
// the two fields stay adjacent in memory.
type DescriptorTablePointer struct {
	_     [3]uint16
	limit uint16
	base  uint64
}

// Set points the descriptor to a table of size bytes starting at base.
func (p *DescriptorTablePointer) Set(base, size uintptr) {
	p.limit = uint16(size - 1)
	p.base = uint64(base)
}

// Limit returns the offset of the last valid byte in the table.
func (p *DescriptorTablePointer) Limit() uint16 {
	return p.limit
}

// Base returns the address of the table.
func (p *DescriptorTablePointer) Base() uintptr {
	return uintptr(p.base)
}

// Addr returns the address that should be passed to LoadGDT or LoadIDT.
func (p *DescriptorTablePointer) Addr() uintptr {
	return uintptr(unsafe.Pointer(&p.limit))
}
