package gdt

// Access describes the access byte of a code or data segment descriptor.
type Access struct {
	// Present must be set for any valid segment.
	Present bool

	// Privilege is the ring (0-3) allowed to use the segment.
	Privilege uint8

	// DescriptorType is 1 for code and data segments and 0 for system
	// segments.
	DescriptorType uint8

	// Executable is set for code segments.
	Executable bool

	// Conforming selects grow-down data segments or code segments that
	// may be entered from lower privilege levels.
	Conforming bool

	// ReadWrite makes code segments readable and data segments writable.
	ReadWrite bool

	// Accessed is set by the CPU when the segment is loaded.
	Accessed bool
}

// Encode packs the access fields into the hardware access byte.
func (a Access) Encode() uint8 {
	var v uint8
	if a.Present {
		v |= 1 << 7
	}
	v |= (a.Privilege & 0x3) << 5
	v |= (a.DescriptorType & 0x1) << 4
	if a.Executable {
		v |= 1 << 3
	}
	if a.Conforming {
		v |= 1 << 2
	}
	if a.ReadWrite {
		v |= 1 << 1
	}
	if a.Accessed {
		v |= 1
	}
	return v
}

// DecodeAccess unpacks a hardware access byte.
func DecodeAccess(v uint8) Access {
	return Access{
		Present:        v&(1<<7) != 0,
		Privilege:      (v >> 5) & 0x3,
		DescriptorType: (v >> 4) & 0x1,
		Executable:     v&(1<<3) != 0,
		Conforming:     v&(1<<2) != 0,
		ReadWrite:      v&(1<<1) != 0,
		Accessed:       v&1 != 0,
	}
}

// SystemAccess describes the access byte of a system segment descriptor.
type SystemAccess struct {
	Present   bool
	Privilege uint8

	// SegmentType is 0x2 for an LDT, 0x9 for an available 64-bit TSS and
	// 0xB for a busy one.
	SegmentType uint8
}

// Encode packs the access fields into the hardware access byte. The
// descriptor type bit is always clear.
func (a SystemAccess) Encode() uint8 {
	var v uint8
	if a.Present {
		v |= 1 << 7
	}
	v |= (a.Privilege & 0x3) << 5
	v |= a.SegmentType & 0xf
	return v
}

// DecodeSystemAccess unpacks a system descriptor access byte.
func DecodeSystemAccess(v uint8) SystemAccess {
	return SystemAccess{
		Present:     v&(1<<7) != 0,
		Privilege:   (v >> 5) & 0x3,
		SegmentType: v & 0xf,
	}
}

// Flags is the 4-bit flag nibble shared by all descriptors.
type Flags struct {
	// Granularity scales the limit by 4KiB when set.
	Granularity bool

	// Size selects a 32-bit segment. It must be clear for long mode code.
	Size bool

	// LongMode marks a 64-bit code segment.
	LongMode bool
}

// Encode packs the flags into the low nibble of the result.
func (f Flags) Encode() uint8 {
	var v uint8
	if f.Granularity {
		v |= 1 << 3
	}
	if f.Size {
		v |= 1 << 2
	}
	if f.LongMode {
		v |= 1 << 1
	}
	return v
}

// DecodeFlags unpacks the low nibble of v.
func DecodeFlags(v uint8) Flags {
	return Flags{
		Granularity: v&(1<<3) != 0,
		Size:        v&(1<<2) != 0,
		LongMode:    v&(1<<1) != 0,
	}
}

// Descriptor is an 8-byte code or data segment descriptor.
type Descriptor uint64

// NewDescriptor encodes a code or data segment descriptor. Only the low 20
// bits of limit are used.
func NewDescriptor(base, limit uint32, access Access, flags Flags) Descriptor {
	return Descriptor(encodeLow(base, limit, access.Encode(), flags))
}

// Base returns the 32-bit segment base.
func (d Descriptor) Base() uint32 {
	return lowBase(uint64(d))
}

// Limit returns the 20-bit segment limit.
func (d Descriptor) Limit() uint32 {
	return lowLimit(uint64(d))
}

// Access returns the decoded access byte.
func (d Descriptor) Access() Access {
	return DecodeAccess(uint8(d >> 40))
}

// Flags returns the decoded flag nibble.
func (d Descriptor) Flags() Flags {
	return DecodeFlags(uint8(d>>52) & 0xf)
}

// SystemDescriptor is the 16-byte descriptor used for system segments in
// long mode. The second word holds bits 32-63 of the base.
type SystemDescriptor [2]uint64

// NewSystemDescriptor encodes a system segment descriptor.
func NewSystemDescriptor(base uint64, limit uint32, access SystemAccess, flags Flags) SystemDescriptor {
	var d SystemDescriptor
	d[0] = encodeLow(0, limit, access.Encode(), flags)
	d.SetBase(base)
	return d
}

// SetBase replaces the 64-bit base address while leaving every other field
// untouched.
func (d *SystemDescriptor) SetBase(base uint64) {
	d[0] = (d[0] &^ lowBaseMask) | encodeBase(uint32(base))
	d[1] = base >> 32
}

// Base returns the 64-bit segment base.
func (d SystemDescriptor) Base() uint64 {
	return uint64(lowBase(d[0])) | d[1]<<32
}

// Limit returns the 20-bit segment limit.
func (d SystemDescriptor) Limit() uint32 {
	return lowLimit(d[0])
}

// Access returns the decoded access byte.
func (d SystemDescriptor) Access() SystemAccess {
	return DecodeSystemAccess(uint8(d[0] >> 40))
}

// lowBaseMask selects the base bits of the first descriptor word: 16-39
// and 56-63.
const lowBaseMask = uint64(0xff0000ffffff0000)

func encodeBase(base uint32) uint64 {
	return uint64(base&0xffffff)<<16 | uint64(base>>24)<<56
}

func encodeLow(base, limit uint32, access uint8, flags Flags) uint64 {
	return uint64(limit&0xffff) |
		encodeBase(base) |
		uint64(access)<<40 |
		uint64((limit>>16)&0xf)<<48 |
		uint64(flags.Encode())<<52
}

func lowBase(v uint64) uint32 {
	return uint32((v>>16)&0xffffff) | uint32(v>>56)<<24
}

func lowLimit(v uint64) uint32 {
	return uint32(v&0xffff) | uint32((v>>48)&0xf)<<16
}
