package vmm

import (
	"abos/kernel"
	"abos/kernel/cpu"
	"abos/kernel/mm"
	"unsafe"
)

var (
	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "mapping code does not support huge pages"}
)

// Table is a page table at any level of the hierarchy.
type Table [entriesPerTable]Entry

// Zero clears every entry of the table.
func (t *Table) Zero() {
	kernel.Memset(uintptr(unsafe.Pointer(t)), 0, mm.PageSize)
}

// TableMemory locates the tables that make up a page table hierarchy.
type TableMemory interface {
	// Root returns the level 4 table.
	Root() *Table

	// Child returns the table referenced by entry index of parent. The
	// entry is present and points to frame.
	Child(parent *Table, index uint, frame mm.Frame) *Table

	// FlushTLBEntry invalidates any cached translation for virtAddr.
	FlushTLBEntry(virtAddr uintptr)
}

// RecursiveTables reaches the active page tables through the recursive
// mapping installed in the last entry of the level 4 table.
type RecursiveTables struct{}

// Root returns the active level 4 table.
func (RecursiveTables) Root() *Table {
	return (*Table)(unsafe.Pointer(recursiveRootAddr))
}

// Child returns the table referenced by entry index of parent.
func (RecursiveTables) Child(parent *Table, index uint, _ mm.Frame) *Table {
	return (*Table)(unsafe.Pointer(childTableAddr(uintptr(unsafe.Pointer(parent)), index)))
}

// FlushTLBEntry invalidates the TLB entry for virtAddr.
func (RecursiveTables) FlushTLBEntry(virtAddr uintptr) {
	flushTLBEntryFn(virtAddr)
}

// childTableAddr shifts the recursive prefix of parentAddr up by one level
// and appends index as the new innermost table index.
func childTableAddr(parentAddr uintptr, index uint) uintptr {
	return (parentAddr << pageLevelBits) | (uintptr(index) << mm.PageShift)
}

// The level types only allow walking downwards one level at a time so that
// level 1 entries can never be interpreted as table pointers.
type (
	level4 Table
	level3 Table
	level2 Table
	level1 Table
)

func (t *level4) next(mem TableMemory, index uint) *level3 {
	return (*level3)(nextTable(mem, (*Table)(t), index))
}

func (t *level4) nextCreate(mem TableMemory, index uint, alloc mm.FrameAllocator) (*level3, *kernel.Error) {
	next, err := nextTableCreate(mem, (*Table)(t), index, alloc)
	return (*level3)(next), err
}

func (t *level3) next(mem TableMemory, index uint) *level2 {
	return (*level2)(nextTable(mem, (*Table)(t), index))
}

func (t *level3) nextCreate(mem TableMemory, index uint, alloc mm.FrameAllocator) (*level2, *kernel.Error) {
	next, err := nextTableCreate(mem, (*Table)(t), index, alloc)
	return (*level2)(next), err
}

func (t *level2) next(mem TableMemory, index uint) *level1 {
	return (*level1)(nextTable(mem, (*Table)(t), index))
}

func (t *level2) nextCreate(mem TableMemory, index uint, alloc mm.FrameAllocator) (*level1, *kernel.Error) {
	next, err := nextTableCreate(mem, (*Table)(t), index, alloc)
	return (*level1)(next), err
}

// nextTable returns the table referenced by entry index of t or nil if the
// entry is not present or maps a huge page.
func nextTable(mem TableMemory, t *Table, index uint) *Table {
	entry := t[index]
	if !entry.HasFlags(FlagPresent) || entry.HasFlags(FlagHugePage) {
		return nil
	}

	return mem.Child(t, index, entry.Frame())
}

// nextTableCreate behaves like nextTable but allocates and zeroes a new
// table when the entry is unused. It panics if the entry maps a huge page.
func nextTableCreate(mem TableMemory, t *Table, index uint, alloc mm.FrameAllocator) (*Table, *kernel.Error) {
	entry := &t[index]
	if entry.HasFlags(FlagHugePage) {
		panic(errNoHugePageSupport)
	}

	if !entry.HasFlags(FlagPresent) {
		frame, err := alloc.AllocFrame()
		if err != nil {
			return nil, err
		}

		entry.Set(frame, FlagPresent|FlagRW)
		next := mem.Child(t, index, frame)
		next.Zero()
		return next, nil
	}

	return mem.Child(t, index, entry.Frame()), nil
}
