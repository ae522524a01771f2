// Package mm defines the physical frame and virtual page types shared by the
// physical and virtual memory managers.
package mm

import (
	"abos/kernel"
	"math"
)

// Frame is the number of a 4KiB physical frame. Frame n covers the
// physical addresses [n*PageSize, (n+1)*PageSize).
type Frame uintptr

// InvalidFrame is returned alongside an error by allocators that have no
// frame to hand out.
const InvalidFrame = Frame(math.MaxUint64)

// Address returns the physical address of the first byte in f.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> PageShift)
}

// FrameAllocator hands out physical frames.
type FrameAllocator interface {
	// AllocFrame reserves a free frame. It returns InvalidFrame and an
	// error if no frame is available.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame returns a frame previously obtained from AllocFrame.
	FreeFrame(Frame) *kernel.Error
}

// Page is the number of a 4KiB virtual page.
type Page uintptr

// Address returns the virtual address of the first byte in p.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(virtAddr >> PageShift)
}

// PageOffset returns the offset of addr inside its 4KiB page or frame.
func PageOffset(addr uintptr) uintptr {
	return addr & (PageSize - 1)
}
