package mm

const (
	// PageShift converts between addresses and frame or page numbers.
	PageShift = uintptr(12)

	// PageSize is the size of a frame and of a page mapped by a level 1
	// entry.
	PageSize = uintptr(1 << PageShift)

	// HugePageSize2M is the size of a page mapped by a level 2 entry.
	HugePageSize2M = uintptr(1 << 21)

	// HugePageSize1G is the size of a page mapped by a level 3 entry.
	HugePageSize1G = uintptr(1 << 30)
)
