// Package multiboot decodes the multiboot2 information structure that the
// boot loader hands to the kernel. Decoding never allocates: all accessors
// read straight out of the structure through visitor callbacks.
package multiboot

import (
	"abos/kernel"
	"abos/kernel/sync"
	"unsafe"
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

const (
	// infoHeaderSize covers the total_size and reserved fields.
	infoHeaderSize = 8

	// tagHeaderSize covers the type and size fields of each tag.
	tagHeaderSize = 8

	// minInfoSize is the size of a structure holding nothing but the end tag.
	minInfoSize = infoHeaderSize + tagHeaderSize
)

var (
	// ErrNullPointer is returned when the boot loader passes a nil pointer.
	ErrNullPointer = &kernel.Error{Module: "multiboot", Message: "boot information pointer is null"}

	// ErrUnaligned is returned when the structure is not 8-byte aligned.
	ErrUnaligned = &kernel.Error{Module: "multiboot", Message: "boot information structure is not 8-byte aligned"}

	// ErrBadTotalSize is returned when total_size is too small, not a
	// multiple of 8 or larger than the memory backing the structure.
	ErrBadTotalSize = &kernel.Error{Module: "multiboot", Message: "invalid boot information total size"}

	// ErrMalformedTag is returned when a tag header is truncated or extends
	// past the end of the structure.
	ErrMalformedTag = &kernel.Error{Module: "multiboot", Message: "malformed boot information tag"}

	// ErrMissingEndTag is returned when the tag list is not terminated by
	// an end tag.
	ErrMissingEndTag = &kernel.Error{Module: "multiboot", Message: "boot information end tag missing"}

	// bootInfo holds the structure passed to the kernel at boot.
	bootInfo sync.WriteOnce[Info]
)

// Info is a validated view of a multiboot2 information structure.
type Info struct {
	region kernel.Region

	// resolveNames is set when the ELF string table is reachable through
	// its recorded address, which only holds inside the booted kernel.
	resolveNames bool
}

// Load validates the multiboot2 structure at ptr and records it as the boot
// information for the running kernel. Only the first successful call has an
// effect; subsequent calls return the already loaded Info.
func Load(ptr uintptr) (Info, *kernel.Error) {
	if info, loaded := bootInfo.Get(); loaded {
		return info, nil
	}

	switch {
	case ptr == 0:
		return Info{}, ErrNullPointer
	case ptr&7 != 0:
		return Info{}, ErrUnaligned
	}

	totalSize, _ := kernel.UnsafeRegion(ptr, infoHeaderSize).Uint32(0)
	if totalSize < minInfoSize {
		return Info{}, ErrBadTotalSize
	}

	info, err := Parse(kernel.UnsafeRegion(ptr, uintptr(totalSize)))
	if err != nil {
		return Info{}, err
	}

	info.resolveNames = true
	if !bootInfo.Set(info) {
		info, _ = bootInfo.Get()
	}

	return info, nil
}

// BootInfo returns the Info recorded by Load.
func BootInfo() (Info, bool) {
	return bootInfo.Get()
}

// Parse validates the multiboot2 structure stored at the start of r.
func Parse(r kernel.Region) (Info, *kernel.Error) {
	if r.Base()&7 != 0 {
		return Info{}, ErrUnaligned
	}

	totalSize, ok := r.Uint32(0)
	if !ok || totalSize < minInfoSize || totalSize%8 != 0 || uintptr(totalSize) > r.Size() {
		return Info{}, ErrBadTotalSize
	}

	var (
		size   = uintptr(totalSize)
		offset = uintptr(infoHeaderSize)
	)

	for offset+tagHeaderSize <= size {
		typ, _ := r.Uint32(offset)
		tagSize, _ := r.Uint32(offset + 4)
		if tagSize < tagHeaderSize || uintptr(tagSize) > size-offset {
			return Info{}, ErrMalformedTag
		}

		if tagType(typ) == tagMbSectionEnd {
			if tagSize != tagHeaderSize {
				return Info{}, ErrMalformedTag
			}

			info, _ := r.Sub(0, size)
			return Info{region: info}, nil
		}

		// Tags start at 8-byte aligned offsets.
		offset += (uintptr(tagSize) + 7) &^ 7
	}

	return Info{}, ErrMissingEndTag
}

// StartAddress returns the address of the first byte of the structure.
func (i Info) StartAddress() uintptr { return i.region.Base() }

// EndAddress returns the address one past the last byte of the structure.
func (i Info) EndAddress() uintptr { return i.region.Base() + i.region.Size() }

// TotalSize returns the size of the structure in bytes.
func (i Info) TotalSize() uintptr { return i.region.Size() }

// findTag returns the payload of the first tag with the requested type. The
// tag list was validated by Parse so the walk cannot run off the structure.
func (i Info) findTag(typ tagType) (kernel.Region, bool) {
	for offset := uintptr(infoHeaderSize); ; {
		curType, _ := i.region.Uint32(offset)
		size, ok := i.region.Uint32(offset + 4)
		if !ok || tagType(curType) == tagMbSectionEnd {
			return kernel.Region{}, false
		}

		if tagType(curType) == typ {
			return i.region.Sub(offset+tagHeaderSize, uintptr(size)-tagHeaderSize)
		}

		offset += (uintptr(size) + 7) &^ 7
	}
}

// cString returns the NULL-terminated string stored in r without copying it.
func cString(r kernel.Region) string {
	data, _ := r.Bytes(0, r.Size())
	for n, ch := range data {
		if ch == 0 {
			data = data[:n]
			break
		}
	}

	if len(data) == 0 {
		return ""
	}
	return unsafe.String(&data[0], len(data))
}
