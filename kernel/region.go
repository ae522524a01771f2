package kernel

import "unsafe"

// Region is a bounds-checked view over a block of memory that the kernel did
// not allocate itself (boot loader structures, framebuffers, page tables
// reached through the recursive mapping). All raw address arithmetic is
// confined to this type; callers only see offset-based accessors that refuse
// to read or write outside [0, Size()).
type Region struct {
	base uintptr
	size uintptr

	// backing keeps a Go-managed buffer reachable for regions created by
	// RegionFromBytes.
	backing []byte
}

// UnsafeRegion returns a Region covering size bytes starting at base. The
// caller asserts that the range is mapped, that nothing else mutates it
// while the Region is in use and that it stays valid for the lifetime of the
// returned value.
func UnsafeRegion(base, size uintptr) Region {
	return Region{base: base, size: size}
}

// RegionFromBytes returns a Region backed by b. It is used by host tools and
// tests that feed the kernel a captured memory image.
func RegionFromBytes(b []byte) Region {
	if len(b) == 0 {
		return Region{}
	}

	return Region{
		base:    uintptr(unsafe.Pointer(unsafe.SliceData(b))),
		size:    uintptr(len(b)),
		backing: b,
	}
}

// Base returns the address of the first byte in the region.
func (r Region) Base() uintptr { return r.base }

// Size returns the region length in bytes.
func (r Region) Size() uintptr { return r.size }

// Contains returns true if the n bytes starting at offset lie inside the
// region.
func (r Region) Contains(offset, n uintptr) bool {
	return offset <= r.size && n <= r.size-offset
}

// Sub returns a Region covering n bytes starting at offset.
func (r Region) Sub(offset, n uintptr) (Region, bool) {
	if !r.Contains(offset, n) {
		return Region{}, false
	}

	sub := Region{base: r.base + offset, size: n}
	if r.backing != nil {
		sub.backing = r.backing[offset : offset+n]
	}
	return sub, true
}

// Bytes returns a slice aliasing n bytes starting at offset.
func (r Region) Bytes(offset, n uintptr) ([]byte, bool) {
	if !r.Contains(offset, n) {
		return nil, false
	}
	if n == 0 {
		return nil, true
	}

	return unsafe.Slice((*byte)(r.ptr(offset)), n), true
}

// Uint8 reads the byte at offset.
func (r Region) Uint8(offset uintptr) (uint8, bool) {
	if !r.Contains(offset, 1) {
		return 0, false
	}
	return *(*uint8)(r.ptr(offset)), true
}

// Uint16 reads a native-endian uint16 at offset.
func (r Region) Uint16(offset uintptr) (uint16, bool) {
	if !r.Contains(offset, 2) {
		return 0, false
	}
	return *(*uint16)(r.ptr(offset)), true
}

// Uint32 reads a native-endian uint32 at offset.
func (r Region) Uint32(offset uintptr) (uint32, bool) {
	if !r.Contains(offset, 4) {
		return 0, false
	}
	return *(*uint32)(r.ptr(offset)), true
}

// Uint64 reads a native-endian uint64 at offset.
func (r Region) Uint64(offset uintptr) (uint64, bool) {
	if !r.Contains(offset, 8) {
		return 0, false
	}
	return *(*uint64)(r.ptr(offset)), true
}

// PutUint64 writes a native-endian uint64 at offset. It returns false if the
// write would fall outside the region.
func (r Region) PutUint64(offset uintptr, v uint64) bool {
	if !r.Contains(offset, 8) {
		return false
	}
	*(*uint64)(r.ptr(offset)) = v
	return true
}

func (r Region) ptr(offset uintptr) unsafe.Pointer {
	if r.backing != nil {
		return unsafe.Add(unsafe.Pointer(unsafe.SliceData(r.backing)), offset)
	}
	return unsafe.Pointer(r.base + offset)
}
