// Package vmm manipulates the 4-level amd64 page table hierarchy.
package vmm

import (
	"abos/kernel"
	"abos/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errAlreadyMapped       = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
	errNotMapped           = &kernel.Error{Module: "vmm", Message: "page is not mapped"}
	errMisalignedHugePage  = &kernel.Error{Module: "vmm", Message: "huge page frame is not aligned to its page size"}
	errNonCanonicalAddress = &kernel.Error{Module: "vmm", Message: "virtual address is not canonical"}
)

// PageTable provides the translation and mapping operations for a page
// table hierarchy. Callers must serialize access to the hierarchy.
type PageTable struct {
	mem TableMemory
}

// ActivePageTable returns a PageTable operating on the hierarchy currently
// loaded in CR3. The last level 4 entry must map the table onto itself.
func ActivePageTable() PageTable {
	return PageTable{mem: RecursiveTables{}}
}

// NewPageTable returns a PageTable whose tables are located by mem.
func NewPageTable(mem TableMemory) PageTable {
	return PageTable{mem: mem}
}

func (pt PageTable) root() *level4 {
	return (*level4)(pt.mem.Root())
}

// pageIndex returns the table index used at the given level (0 for the level
// 4 table) to resolve page.
func pageIndex(page mm.Page, level int) uint {
	return uint(page.Address()>>pageLevelShifts[level]) & (entriesPerTable - 1)
}

// isCanonical returns true if bits 48-63 of virtAddr are copies of bit 47.
func isCanonical(virtAddr uintptr) bool {
	return virtAddr < canonicalLowerEnd || virtAddr >= canonicalUpperStart
}

// Translate returns the physical address that corresponds to virtAddr or
// ErrInvalidMapping if virtAddr is not mapped.
func (pt PageTable) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	frame, err := pt.TranslatePage(mm.PageFromAddress(virtAddr))
	if err != nil {
		return 0, err
	}

	return frame.Address() + mm.PageOffset(virtAddr), nil
}

// TranslatePage returns the frame that backs page. Pages that are part of
// a 1GiB or 2MiB mapping resolve to the matching frame inside the huge page.
// A huge page whose frame is not aligned to its size causes a panic.
func (pt PageTable) TranslatePage(page mm.Page) (mm.Frame, *kernel.Error) {
	if !isCanonical(page.Address()) {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	var (
		p3Index = pageIndex(page, 1)
		p2Index = pageIndex(page, 2)
		p1Index = pageIndex(page, 3)
	)

	p3 := pt.root().next(pt.mem, pageIndex(page, 0))
	if p3 == nil {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	if entry := p3[p3Index]; entry.HasFlags(FlagPresent | FlagHugePage) {
		start := entry.Frame()
		if start%(entriesPerTable*entriesPerTable) != 0 {
			panic(errMisalignedHugePage)
		}
		return start + mm.Frame(p2Index*entriesPerTable+p1Index), nil
	}

	p2 := p3.next(pt.mem, p3Index)
	if p2 == nil {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	if entry := p2[p2Index]; entry.HasFlags(FlagPresent | FlagHugePage) {
		start := entry.Frame()
		if start%entriesPerTable != 0 {
			panic(errMisalignedHugePage)
		}
		return start + mm.Frame(p1Index), nil
	}

	p1 := p2.next(pt.mem, p2Index)
	if p1 == nil {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	frame, ok := p1[p1Index].PointedFrame()
	if !ok {
		return mm.InvalidFrame, ErrInvalidMapping
	}

	return frame, nil
}

// MapTo maps page to frame with the supplied flags. FlagPresent is always
// set. Missing intermediate tables are allocated from alloc and cleared.
//
// MapTo panics if page is already mapped or if the walk meets a huge page.
// Allocation failures are returned to the caller.
func (pt PageTable) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	if !isCanonical(page.Address()) {
		panic(errNonCanonicalAddress)
	}

	p3, err := pt.root().nextCreate(pt.mem, pageIndex(page, 0), alloc)
	if err != nil {
		return err
	}

	p2, err := p3.nextCreate(pt.mem, pageIndex(page, 1), alloc)
	if err != nil {
		return err
	}

	p1, err := p2.nextCreate(pt.mem, pageIndex(page, 2), alloc)
	if err != nil {
		return err
	}

	entry := &p1[pageIndex(page, 3)]
	if !entry.IsUnused() {
		panic(errAlreadyMapped)
	}

	entry.Set(frame, flags|FlagPresent)
	return nil
}

// Map allocates a frame from alloc and maps page to it.
func (pt PageTable) Map(page mm.Page, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	frame, err := alloc.AllocFrame()
	if err != nil {
		return err
	}

	return pt.MapTo(page, frame, flags, alloc)
}

// IdentityMap maps frame to the page with the same number.
func (pt PageTable) IdentityMap(frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	return pt.MapTo(mm.Page(frame), frame, flags, alloc)
}

// IdentityMapRegion identity maps every frame overlapping the size bytes
// that start at physAddr. Frames that are already identity mapped, for
// instance by a huge page set up by the boot code, are left untouched.
func (pt PageTable) IdentityMapRegion(physAddr, size uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) *kernel.Error {
	if size == 0 {
		return nil
	}

	lastFrame := mm.FrameFromAddress(physAddr + size - 1)
	for frame := mm.FrameFromAddress(physAddr); frame <= lastFrame; frame++ {
		if mapped, err := pt.TranslatePage(mm.Page(frame)); err == nil && mapped == frame {
			continue
		}

		if err := pt.IdentityMap(frame, flags, alloc); err != nil {
			return err
		}
	}

	return nil
}

// Unmap removes the mapping for page, flushes its TLB entry and hands the
// frame that backed it to alloc. Intermediate tables are never reclaimed.
//
// Unmap panics if page is not mapped or if it is part of a huge page.
func (pt PageTable) Unmap(page mm.Page, alloc mm.FrameAllocator) *kernel.Error {
	if _, err := pt.TranslatePage(page); err != nil {
		panic(errNotMapped)
	}

	var p1 *level1
	if p3 := pt.root().next(pt.mem, pageIndex(page, 0)); p3 != nil {
		if p2 := p3.next(pt.mem, pageIndex(page, 1)); p2 != nil {
			p1 = p2.next(pt.mem, pageIndex(page, 2))
		}
	}

	if p1 == nil {
		panic(errNoHugePageSupport)
	}

	entry := &p1[pageIndex(page, 3)]
	frame := entry.Frame()
	entry.SetUnused()
	pt.mem.FlushTLBEntry(page.Address())

	return alloc.FreeFrame(frame)
}
