package main

import (
	"abos/kernel"
	"abos/kernel/mm"
	"abos/kernel/mm/pmm"
	"abos/multiboot"
	"debug/elf"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errNoKernelBounds = errors.New("kernel image bounds unknown; pass --kernel-start/--kernel-end or --kernel-image")

// allocatorFlags locate the kernel image and the boot information so that
// the allocator can exclude them.
type allocatorFlags struct {
	kernelStart uint64
	kernelEnd   uint64
	kernelImage string
	infoAddr    uint64
}

func (f *allocatorFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&f.kernelStart, "kernel-start", 0, "Physical address of the first kernel image byte")
	cmd.Flags().Uint64Var(&f.kernelEnd, "kernel-end", 0, "Physical address past the last kernel image byte")
	cmd.Flags().StringVar(&f.kernelImage, "kernel-image", "", "Kernel ELF file to read the image bounds from")
	cmd.Flags().Uint64Var(&f.infoAddr, "info-addr", 0, "Physical address the dump was taken from")
}

// resolve fills in the values that were not set on the command line from
// the machine profile.
func (f *allocatorFlags) resolve(cmd *cobra.Command, p profile) {
	if !cmd.Flags().Changed("kernel-start") && !cmd.Flags().Changed("kernel-end") {
		f.kernelStart, f.kernelEnd = p.KernelStart, p.KernelEnd
	}
	if !cmd.Flags().Changed("kernel-image") {
		f.kernelImage = p.KernelImage
	}
	if !cmd.Flags().Changed("info-addr") {
		f.infoAddr = p.InfoAddr
	}
}

// kernelBounds returns the kernel image range. Explicit bounds win over the
// ELF image which wins over the sections recorded in the boot information.
func (f *allocatorFlags) kernelBounds(info multiboot.Info) (uintptr, uintptr, error) {
	if f.kernelEnd != 0 {
		if f.kernelEnd <= f.kernelStart {
			return 0, 0, fmt.Errorf("invalid kernel bounds [0x%x, 0x%x)", f.kernelStart, f.kernelEnd)
		}
		return uintptr(f.kernelStart), uintptr(f.kernelEnd), nil
	}

	if f.kernelImage != "" {
		return kernelImageBounds(f.kernelImage)
	}

	if start, end, ok := info.KernelBounds(); ok {
		return start, end, nil
	}

	return 0, 0, errNoKernelBounds
}

// kernelImageBounds returns the range covered by the allocated sections of
// the ELF file at path.
func kernelImageBounds(path string) (uintptr, uintptr, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var start, end uint64
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Size == 0 {
			continue
		}

		if end == 0 || s.Addr < start {
			start = s.Addr
		}
		if s.Addr+s.Size > end {
			end = s.Addr + s.Size
		}
	}

	if end == 0 {
		return 0, 0, fmt.Errorf("%s: no allocated sections", path)
	}

	return uintptr(start), uintptr(end), nil
}

// newAllocator builds the allocator the kernel would use for info.
func newAllocator(info multiboot.Info, f *allocatorFlags) (pmm.AreaFrameAllocator, error) {
	kernelStart, kernelEnd, err := f.kernelBounds(info)
	if err != nil {
		return pmm.AreaFrameAllocator{}, err
	}

	var regions []multiboot.MemoryMapEntry
	info.VisitMemRegions(func(entry multiboot.MemoryMapEntry) bool {
		regions = append(regions, entry)
		return true
	})

	var infoStart, infoEnd uintptr
	if f.infoAddr != 0 {
		infoStart, infoEnd = uintptr(f.infoAddr), uintptr(f.infoAddr)+info.TotalSize()
	}

	alloc := pmm.NewAreaFrameAllocator(kernelStart, kernelEnd, infoStart, infoEnd, regions)

	logger.WithFields(logrus.Fields{
		"kernel":    fmt.Sprintf("[0x%x, 0x%x)", kernelStart, kernelEnd),
		"boot_info": fmt.Sprintf("[0x%x, 0x%x)", infoStart, infoEnd),
		"regions":   len(regions),
	}).Debug("created frame allocator")

	if n := alloc.IgnoredRegions(); n != 0 {
		logger.WithField("ignored", n).Warn("memory map has more available regions than the allocator tracks")
	}

	return alloc, nil
}

// recyclingAllocator hands out frames returned through FreeFrame before
// falling back to the wrapped allocator.
type recyclingAllocator struct {
	mm.FrameAllocator
	free []mm.Frame
}

func (r *recyclingAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if n := len(r.free); n != 0 {
		frame := r.free[n-1]
		r.free = r.free[:n-1]
		return frame, nil
	}

	return r.FrameAllocator.AllocFrame()
}

func (r *recyclingAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	r.free = append(r.free, frame)
	return nil
}
