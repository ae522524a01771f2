package multiboot

import "abos/kernel"

const (
	// elfSymbolsHeaderSize covers the num, entsize and shndx fields.
	elfSymbolsHeaderSize = 12

	// elfSection64Size is the size of an Elf64_Shdr.
	elfSection64Size = 64
)

// Offsets of the Elf64_Shdr fields read by the kernel.
const (
	shNameOffset  = 0
	shFlagsOffset = 8
	shAddrOffset  = 16
	shSizeOffset  = 32
)

// ElfSectionFlag defines an OR-able flag associated with an ElfSection.
type ElfSectionFlag uint32

const (
	// ElfSectionWritable marks the section as writable.
	ElfSectionWritable ElfSectionFlag = 1 << iota

	// ElfSectionAllocated means that the section is allocated in memory
	// when the image is loaded (e.g .bss sections)
	ElfSectionAllocated

	// ElfSectionExecutable marks the section as executable.
	ElfSectionExecutable
)

// ElfSectionVisitor is invoked by VisitElfSections for each ELF section that
// belongs to the loaded kernel image.
type ElfSectionVisitor func(name string, flags ElfSectionFlag, address uintptr, size uint64)

// VisitElfSections invokes visitor for each non-empty ELF section of the
// loaded kernel image. Section names are only resolved for the Info returned
// by Load; otherwise an empty name is passed.
func (i Info) VisitElfSections(visitor ElfSectionVisitor) {
	tag, ok := i.findTag(tagElfSymbols)
	if !ok {
		return
	}

	numSections, _ := tag.Uint32(0)
	entSize, _ := tag.Uint32(4)
	strtabIndex, _ := tag.Uint32(8)
	if entSize < elfSection64Size {
		return
	}

	var strtab kernel.Region
	if i.resolveNames {
		if off := elfSymbolsHeaderSize + uintptr(strtabIndex)*uintptr(entSize); tag.Contains(off, elfSection64Size) {
			addr, _ := tag.Uint64(off + shAddrOffset)
			size, _ := tag.Uint64(off + shSizeOffset)
			strtab = kernel.UnsafeRegion(uintptr(addr), uintptr(size))
		}
	}

	for index := uint32(0); index < numSections; index++ {
		off := elfSymbolsHeaderSize + uintptr(index)*uintptr(entSize)
		if !tag.Contains(off, elfSection64Size) {
			return
		}

		size, _ := tag.Uint64(off + shSizeOffset)
		if size == 0 {
			continue
		}

		nameIndex, _ := tag.Uint32(off + shNameOffset)
		flags, _ := tag.Uint64(off + shFlagsOffset)
		addr, _ := tag.Uint64(off + shAddrOffset)

		var name string
		if nameOffset := uintptr(nameIndex); nameOffset < strtab.Size() {
			nameRegion, _ := strtab.Sub(nameOffset, strtab.Size()-nameOffset)
			name = cString(nameRegion)
		}

		visitor(name, ElfSectionFlag(flags), uintptr(addr), size)
	}
}

// KernelBounds returns the [start, end) physical address range spanned by
// the allocated ELF sections of the loaded kernel image. Sections that are
// not loaded, such as symbol tables, are ignored. The last result is false
// if the boot loader did not supply any non-empty allocated sections.
func (i Info) KernelBounds() (uintptr, uintptr, bool) {
	var (
		start, end uintptr
		found      bool
	)

	i.VisitElfSections(func(_ string, flags ElfSectionFlag, address uintptr, size uint64) {
		if flags&ElfSectionAllocated == 0 {
			return
		}

		secEnd := address + uintptr(size)
		if !found || address < start {
			start = address
		}
		if !found || secEnd > end {
			end = secEnd
		}
		found = true
	})

	return start, end, found
}
