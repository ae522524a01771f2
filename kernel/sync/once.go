package sync

import "sync/atomic"

// WriteOnce holds a value that can be assigned exactly once. Later Set calls
// are rejected and leave the stored value untouched.
type WriteOnce[T any] struct {
	lock  Spinlock
	set   uint32
	value T
}

// Set stores v and returns true if the cell was still empty.
func (c *WriteOnce[T]) Set(v T) bool {
	c.lock.Acquire()
	defer c.lock.Release()

	if atomic.LoadUint32(&c.set) != 0 {
		return false
	}

	c.value = v
	atomic.StoreUint32(&c.set, 1)
	return true
}

// Get returns the stored value and whether Set has been called.
func (c *WriteOnce[T]) Get() (T, bool) {
	if atomic.LoadUint32(&c.set) == 0 {
		var zero T
		return zero, false
	}

	return c.value, true
}
