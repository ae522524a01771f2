package multiboot

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// memoryMapEntrySize is the size of the fields decoded from each entry.
// Boot loaders may report a larger entry size; the extra bytes are skipped.
const memoryMapEntrySize = 24

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// EndAddress returns the address one past the last byte of the region.
func (e MemoryMapEntry) EndAddress() uint64 {
	return e.PhysAddress + e.Length
}

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region
// reported by the boot loader. The visitor returns false to abort the scan.
type MemRegionVisitor func(MemoryMapEntry) bool

// VisitMemRegions invokes visitor for each memory map entry in the order the
// boot loader listed them. Unknown entry types are reported as MemReserved.
func (i Info) VisitMemRegions(visitor MemRegionVisitor) {
	tag, ok := i.findTag(tagMemoryMap)
	if !ok {
		return
	}

	// The payload starts with the entry size and entry version fields.
	entrySize, ok := tag.Uint32(0)
	if !ok || entrySize < memoryMapEntrySize {
		return
	}

	for offset := uintptr(8); tag.Contains(offset, uintptr(entrySize)); offset += uintptr(entrySize) {
		var entry MemoryMapEntry
		entry.PhysAddress, _ = tag.Uint64(offset)
		entry.Length, _ = tag.Uint64(offset + 8)
		typ, _ := tag.Uint32(offset + 16)
		entry.Type = MemoryEntryType(typ)

		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// TotalAvailableMemory returns the sum of the lengths of all available
// memory regions.
func (i Info) TotalAvailableMemory() uint64 {
	var total uint64
	i.VisitMemRegions(func(entry MemoryMapEntry) bool {
		if entry.Type == MemAvailable {
			total += entry.Length
		}
		return true
	})

	return total
}
