package vmm

import (
	"abos/kernel"
	"abos/kernel/mm"
)

var (
	errFrameAddressTooWide = &kernel.Error{Module: "vmm", Message: "frame address does not fit in a page table entry"}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

// Entry is a page table entry. It encodes a physical frame address in bits
// 12-51 and a set of flags in the remaining bits.
type Entry uintptr

// IsUnused returns true if every bit of the entry is clear.
func (e Entry) IsUnused() bool {
	return e == 0
}

// SetUnused clears the entry.
func (e *Entry) SetUnused() {
	*e = 0
}

// HasFlags returns true if this entry has all the input flags set.
func (e Entry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(e) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (e Entry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(e) & uintptr(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (e *Entry) SetFlags(flags PageTableEntryFlag) {
	*e = Entry(uintptr(*e) | uintptr(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (e *Entry) ClearFlags(flags PageTableEntryFlag) {
	*e = Entry(uintptr(*e) &^ uintptr(flags))
}

// Frame returns the physical frame encoded in the entry regardless of the
// present flag.
func (e Entry) Frame() mm.Frame {
	return mm.FrameFromAddress(uintptr(e) & ptePhysPageMask)
}

// PointedFrame returns the frame the entry points to. The second result is
// false if the entry is not present.
func (e Entry) PointedFrame() (mm.Frame, bool) {
	if !e.HasFlags(FlagPresent) {
		return mm.InvalidFrame, false
	}
	return e.Frame(), true
}

// SetFrame updates the page table entry to point the the given physical frame.
// It panics if the frame address does not fit in bits 12-51.
func (e *Entry) SetFrame(frame mm.Frame) {
	addr := frame.Address()
	if addr&^ptePhysPageMask != 0 {
		panic(errFrameAddressTooWide)
	}

	*e = Entry((uintptr(*e) &^ ptePhysPageMask) | addr)
}

// Set overwrites the entry so that it points to frame with exactly the
// supplied flags.
func (e *Entry) Set(frame mm.Frame, flags PageTableEntryFlag) {
	*e = 0
	e.SetFrame(frame)
	e.SetFlags(flags)
}
