package pmm

import (
	"abos/kernel"
	"abos/kernel/kfmt"
	"abos/multiboot"
)

var (
	log = kfmt.Logger{Module: "frame_alloc"}

	// ErrNoKernelImage is returned when the boot information carries no
	// ELF sections to locate the kernel image with.
	ErrNoKernelImage = &kernel.Error{Module: "frame_alloc", Message: "boot information does not describe the kernel image"}
)

// NewFromBootInfo returns an AreaFrameAllocator over the memory map in info
// that excludes the kernel image (as described by its ELF sections) and the
// boot information structure itself.
func NewFromBootInfo(info multiboot.Info) (AreaFrameAllocator, *kernel.Error) {
	kernelStart, kernelEnd, ok := info.KernelBounds()
	if !ok {
		return AreaFrameAllocator{}, ErrNoKernelImage
	}

	alloc := AreaFrameAllocator{
		kernel:   exclusionRange(kernelStart, kernelEnd),
		bootInfo: exclusionRange(info.StartAddress(), info.EndAddress()),
	}

	info.VisitMemRegions(func(entry multiboot.MemoryMapEntry) bool {
		alloc.addRegion(entry)
		return true
	})

	alloc.chooseNextArea()

	if alloc.ignoredRegions != 0 {
		log.Printf("ignoring %d available regions past the first %d\n", alloc.ignoredRegions, maxRegions)
	}

	return alloc, nil
}

// PrintMemoryMap prints the memory map reported by the boot loader together
// with the ranges excluded from allocation.
func (alloc *AreaFrameAllocator) PrintMemoryMap(info multiboot.Info) {
	log.Printf("system memory map:\n")
	info.VisitMemRegions(func(region multiboot.MemoryMapEntry) bool {
		log.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.EndAddress(), region.Length, region.Type.String())
		return true
	})
	log.Printf("available memory: %dKb\n", info.TotalAvailableMemory()/1024)

	if alloc.kernel.valid {
		log.Printf("kernel image frames: [%d - %d]\n", uint64(alloc.kernel.first), uint64(alloc.kernel.last))
	}
	if alloc.bootInfo.valid {
		log.Printf("boot info frames: [%d - %d]\n", uint64(alloc.bootInfo.first), uint64(alloc.bootInfo.last))
	}
}
