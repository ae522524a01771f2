package pmm

import (
	"abos/kernel"
	"abos/kernel/mm"
	"abos/kernel/sync"
)

// LockedAllocator serializes access to a FrameAllocator shared between
// normal execution and interrupt handlers. Lock should be a
// sync.IRQSpinlock so interrupts stay masked while the allocator state is
// being updated.
type LockedAllocator struct {
	Lock      sync.Locker
	Allocator mm.FrameAllocator
}

// AllocFrame implements mm.FrameAllocator.
func (l *LockedAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	l.Lock.Acquire()
	frame, err := l.Allocator.AllocFrame()
	l.Lock.Release()
	return frame, err
}

// FreeFrame implements mm.FrameAllocator.
func (l *LockedAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	l.Lock.Acquire()
	err := l.Allocator.FreeFrame(frame)
	l.Lock.Release()
	return err
}
