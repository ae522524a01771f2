package vmm

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// entriesPerTable is the number of entries in a table at every level.
	entriesPerTable = 512

	// pageLevelBits is the number of virtual address bits consumed by each
	// page level.
	pageLevelBits = 9

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-51 contain the physical memory address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// recursiveRootAddr is the virtual address of the level 4 table when its
	// last entry points back at the table itself. Setting every index bit to
	// 1 makes the MMU follow that entry at all four levels.
	recursiveRootAddr = uintptr(0xfffffffffffff000)

	// canonicalLowerEnd and canonicalUpperStart delimit the hole of
	// non-canonical addresses that can never be mapped.
	canonicalLowerEnd   = uintptr(0x0000800000000000)
	canonicalUpperStart = uintptr(0xffff800000000000)
)

var (
	// pageLevelShifts defines the shift required to access each page table
	// component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set for level 2 and level 3 entries that map a 2MiB
	// or 1GiB page directly instead of pointing to the next table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable
	// code. It is only honored once EFER.NXE is enabled.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
