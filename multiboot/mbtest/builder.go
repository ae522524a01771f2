// Package mbtest assembles multiboot2 information structures in memory so
// that code consuming boot information can be exercised outside the kernel.
package mbtest

import (
	"encoding/binary"
	"unsafe"
)

// Tag types understood by Builder.
const (
	TagEnd            = 0
	TagCmdLine        = 1
	TagBootLoaderName = 2
	TagMemoryMap      = 6
	TagFramebuffer    = 8
	TagElfSections    = 9
)

// ELF section flags.
const (
	SectionWrite = 0x1
	SectionAlloc = 0x2
	SectionExec  = 0x4
)

// Memory map entry types.
const (
	MemAvailable = 1
	MemReserved  = 2
	MemACPI      = 3
	MemNVS       = 4
)

const (
	memEntrySize  = 24
	elfHeaderSize = 64
)

// MemoryEntry is a memory map entry.
type MemoryEntry struct {
	Addr   uint64
	Length uint64
	Type   uint32
}

// Section is an ELF64 section header. Only the fields that the kernel looks
// at are encoded.
type Section struct {
	NameIndex uint32
	Flags     uint64
	Addr      uint64
	Size      uint64
}

// Framebuffer describes a framebuffer tag. RGB holds the optional color
// layout (red position, red size, green position, green size, blue
// position, blue size) and is only encoded when Type is 1.
type Framebuffer struct {
	Addr          uint64
	Pitch         uint32
	Width, Height uint32
	Bpp           uint8
	Type          uint8
	RGB           [6]uint8
}

// Builder accumulates tags. The zero value is ready to use.
type Builder struct {
	tags []byte
}

// Tag appends a tag with the given payload followed by the padding needed
// to keep the next tag 8-byte aligned.
func (b *Builder) Tag(typ uint32, payload []byte) *Builder {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], typ)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)+8))
	b.tags = append(b.tags, hdr[:]...)
	b.tags = append(b.tags, payload...)
	for len(b.tags)%8 != 0 {
		b.tags = append(b.tags, 0)
	}
	return b
}

// RawTag appends a bare tag header with an arbitrary size field. It is used
// to produce malformed structures.
func (b *Builder) RawTag(typ, size uint32) *Builder {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], typ)
	binary.LittleEndian.PutUint32(hdr[4:], size)
	b.tags = append(b.tags, hdr[:]...)
	return b
}

// End appends the terminating tag.
func (b *Builder) End() *Builder {
	return b.Tag(TagEnd, nil)
}

// CmdLine appends a boot command line tag.
func (b *Builder) CmdLine(s string) *Builder {
	return b.Tag(TagCmdLine, append([]byte(s), 0))
}

// BootLoaderName appends a boot loader name tag.
func (b *Builder) BootLoaderName(s string) *Builder {
	return b.Tag(TagBootLoaderName, append([]byte(s), 0))
}

// MemoryMap appends a memory map tag.
func (b *Builder) MemoryMap(entries ...MemoryEntry) *Builder {
	payload := make([]byte, 8+memEntrySize*len(entries))
	binary.LittleEndian.PutUint32(payload[0:], memEntrySize)
	for i, e := range entries {
		off := 8 + memEntrySize*i
		binary.LittleEndian.PutUint64(payload[off:], e.Addr)
		binary.LittleEndian.PutUint64(payload[off+8:], e.Length)
		binary.LittleEndian.PutUint32(payload[off+16:], e.Type)
	}
	return b.Tag(TagMemoryMap, payload)
}

// ElfSections appends an ELF sections tag. strtabIndex selects the section
// holding the section names.
func (b *Builder) ElfSections(strtabIndex uint32, sections ...Section) *Builder {
	payload := make([]byte, 12+elfHeaderSize*len(sections))
	binary.LittleEndian.PutUint32(payload[0:], uint32(len(sections)))
	binary.LittleEndian.PutUint32(payload[4:], elfHeaderSize)
	binary.LittleEndian.PutUint32(payload[8:], strtabIndex)
	for i, s := range sections {
		off := 12 + elfHeaderSize*i
		binary.LittleEndian.PutUint32(payload[off:], s.NameIndex)
		binary.LittleEndian.PutUint64(payload[off+8:], s.Flags)
		binary.LittleEndian.PutUint64(payload[off+16:], s.Addr)
		binary.LittleEndian.PutUint64(payload[off+32:], s.Size)
	}
	return b.Tag(TagElfSections, payload)
}

// Framebuffer appends a framebuffer tag.
func (b *Builder) Framebuffer(fb Framebuffer) *Builder {
	size := 22
	if fb.Type == 1 {
		size = 30
	}

	payload := make([]byte, size)
	binary.LittleEndian.PutUint64(payload[0:], fb.Addr)
	binary.LittleEndian.PutUint32(payload[8:], fb.Pitch)
	binary.LittleEndian.PutUint32(payload[12:], fb.Width)
	binary.LittleEndian.PutUint32(payload[16:], fb.Height)
	payload[20] = fb.Bpp
	payload[21] = fb.Type
	if fb.Type == 1 {
		copy(payload[24:], fb.RGB[:])
	}
	return b.Tag(TagFramebuffer, payload)
}

// Bytes returns the encoded structure. The returned slice is backed by
// 8-byte aligned memory.
func (b *Builder) Bytes() []byte {
	total := 8 + len(b.tags)
	backing := make([]uint64, (total+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&backing[0])), total)
	binary.LittleEndian.PutUint32(buf[0:], uint32(total))
	copy(buf[8:], b.tags)
	return buf
}
