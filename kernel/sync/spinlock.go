// Package sync provides synchronization primitives that are safe to use
// before the Go scheduler exists.
package sync

import (
	"abos/kernel/cpu"
	"sync/atomic"
)

var (
	// yieldFn is invoked between failed acquisition attempts. There is no
	// scheduler to hand the CPU to yet so it stays nil in the kernel.
	yieldFn func()

	interruptsEnabledFn = cpu.InterruptsEnabled
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// IRQSpinlock is a Spinlock that also masks interrupts for as long as it is
// held. It guards state that interrupt handlers may touch; a handler firing
// while the lock is held would otherwise spin forever on the same CPU.
type IRQSpinlock struct {
	lock Spinlock

	// restoreIF records whether interrupts were enabled before Acquire.
	restoreIF bool
}

// Acquire disables interrupts and then acquires the lock.
func (l *IRQSpinlock) Acquire() {
	enabled := interruptsEnabledFn()
	disableInterruptsFn()
	l.lock.Acquire()
	l.restoreIF = enabled
}

// Release releases the lock and re-enables interrupts if they were enabled
// when Acquire was called.
func (l *IRQSpinlock) Release() {
	restore := l.restoreIF
	l.restoreIF = false
	l.lock.Release()
	if restore {
		enableInterruptsFn()
	}
}

// Locker is implemented by Spinlock and IRQSpinlock.
type Locker interface {
	Acquire()
	Release()
}
