// Package pmm implements the physical memory allocators used while the
// kernel boots.
package pmm

import (
	"abos/kernel"
	"abos/kernel/mm"
	"abos/multiboot"
)

// maxRegions bounds the number of available memory regions tracked by an
// AreaFrameAllocator. Regions beyond this limit are ignored.
const maxRegions = 64

var (
	// ErrOutOfMemory is returned once every available region is exhausted.
	ErrOutOfMemory = &kernel.Error{Module: "frame_alloc", Message: "out of memory"}

	// ErrFreeUnsupported is returned by FreeFrame; the area allocator can
	// only hand frames out.
	ErrFreeUnsupported = &kernel.Error{Module: "frame_alloc", Message: "freeing frames is not supported"}
)

// frameRange is an inclusive range of frames.
type frameRange struct {
	first, last mm.Frame
	valid       bool
}

// exclusionRange converts the byte range [start, end) into the frames that
// contain it. An empty byte range excludes nothing.
func exclusionRange(start, end uintptr) frameRange {
	if end <= start {
		return frameRange{}
	}

	return frameRange{
		first: mm.FrameFromAddress(start),
		last:  mm.FrameFromAddress(end - 1),
		valid: true,
	}
}

// availableRange returns the frames that lie entirely inside a memory map
// entry; partially covered frames at either end are dropped.
func availableRange(entry multiboot.MemoryMapEntry) frameRange {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	start := (entry.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1
	end := entry.EndAddress() &^ pageSizeMinus1
	if entry.EndAddress() < entry.PhysAddress || end <= start {
		return frameRange{}
	}

	return frameRange{
		first: mm.Frame(start >> mm.PageShift),
		last:  mm.Frame(end>>mm.PageShift) - 1,
		valid: true,
	}
}

func (r frameRange) contains(f mm.Frame) bool {
	return r.valid && f >= r.first && f <= r.last
}

// AreaFrameAllocator is a bump allocator that walks the available memory
// regions in ascending address order handing out one frame at a time. Frames
// holding the kernel image or the boot information structure are skipped.
//
// The allocator never reuses frames: its cursor only moves forward and once
// the last region is exhausted every further allocation fails.
type AreaFrameAllocator struct {
	regions     [maxRegions]frameRange
	regionCount int

	// current indexes the region being consumed or is -1 once the
	// allocator is exhausted.
	current  int
	nextFree mm.Frame

	kernel   frameRange
	bootInfo frameRange

	allocCount     uint64
	ignoredRegions int
}

// NewAreaFrameAllocator returns an allocator over the available entries of
// regions that excludes the kernel image [kernelStart, kernelEnd) and the
// boot information structure [bootInfoStart, bootInfoEnd).
func NewAreaFrameAllocator(kernelStart, kernelEnd, bootInfoStart, bootInfoEnd uintptr, regions []multiboot.MemoryMapEntry) AreaFrameAllocator {
	alloc := AreaFrameAllocator{
		kernel:   exclusionRange(kernelStart, kernelEnd),
		bootInfo: exclusionRange(bootInfoStart, bootInfoEnd),
	}

	for _, entry := range regions {
		alloc.addRegion(entry)
	}

	alloc.chooseNextArea()
	return alloc
}

func (alloc *AreaFrameAllocator) addRegion(entry multiboot.MemoryMapEntry) {
	if entry.Type != multiboot.MemAvailable {
		return
	}

	r := availableRange(entry)
	if !r.valid {
		return
	}

	if alloc.regionCount == maxRegions {
		alloc.ignoredRegions++
		return
	}

	alloc.regions[alloc.regionCount] = r
	alloc.regionCount++
}

// chooseNextArea selects the lowest region that still has frames at or after
// the cursor and moves the cursor to its first frame if it lags behind.
func (alloc *AreaFrameAllocator) chooseNextArea() {
	alloc.current = -1
	for i := 0; i < alloc.regionCount; i++ {
		r := alloc.regions[i]
		if r.last < alloc.nextFree {
			continue
		}

		if alloc.current == -1 || r.first < alloc.regions[alloc.current].first {
			alloc.current = i
		}
	}

	if alloc.current != -1 && alloc.nextFree < alloc.regions[alloc.current].first {
		alloc.nextFree = alloc.regions[alloc.current].first
	}
}

// AllocFrame reserves the next free frame. Every pass through the loop
// either returns or moves the cursor past a region, the kernel image or the
// boot information structure, so it runs at most regionCount+3 times.
func (alloc *AreaFrameAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for alloc.current >= 0 {
		frame := alloc.nextFree

		switch {
		case frame > alloc.regions[alloc.current].last:
			alloc.chooseNextArea()
		case alloc.kernel.contains(frame):
			alloc.nextFree = alloc.kernel.last + 1
		case alloc.bootInfo.contains(frame):
			alloc.nextFree = alloc.bootInfo.last + 1
		default:
			alloc.nextFree++
			alloc.allocCount++
			return frame, nil
		}
	}

	return mm.InvalidFrame, ErrOutOfMemory
}

// FreeFrame always fails with ErrFreeUnsupported.
func (alloc *AreaFrameAllocator) FreeFrame(_ mm.Frame) *kernel.Error {
	return ErrFreeUnsupported
}

// AllocatedFrames returns the number of frames handed out so far.
func (alloc *AreaFrameAllocator) AllocatedFrames() uint64 {
	return alloc.allocCount
}

// Exhausted returns true once the allocator has no more frames to offer.
func (alloc *AreaFrameAllocator) Exhausted() bool {
	return alloc.current < 0
}

// IgnoredRegions returns the number of available regions that did not fit
// in the allocator's region table.
func (alloc *AreaFrameAllocator) IgnoredRegions() int {
	return alloc.ignoredRegions
}
