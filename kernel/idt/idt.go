// Package idt builds and loads the interrupt descriptor table and routes CPU
// exceptions to Go handlers.
package idt

import (
	"abos/kernel/cpu"
	"abos/kernel/gdt"
	"abos/kernel/kfmt"
	"abos/kernel/sync"
	"unsafe"
)

var (
	// The following functions are used by tests to mock calls to privileged
	// instructions and to the assembly entry stubs.
	loadIDTFn   = cpu.LoadIDT
	stubAddrsFn = stubAddrs

	// lock masks interrupts while the table is rebuilt and loaded.
	lock sync.Locker = &sync.IRQSpinlock{}

	log = kfmt.Logger{Module: "idt"}

	stubs [exceptionCount]uintptr
	table Table
	idtr  cpu.DescriptorTablePointer
)

// stubAddrs stores the address of the entry stub for each exception vector
// in addrs. Reserved vectors get a zero address.
func stubAddrs(addrs *[exceptionCount]uintptr)

// NewTable returns a table with a ring 0 gate for every exception that has
// an entry stub. Breakpoints use a trap gate and every other exception an
// interrupt gate. The double fault gate switches to the dedicated double
// fault stack.
func NewTable(entryPoints *[exceptionCount]uintptr) Table {
	var t Table

	for v := Vector(0); v < exceptionCount; v++ {
		if v.reserved() || entryPoints[v] == 0 {
			continue
		}

		gateType := InterruptGate
		if v == Breakpoint {
			gateType = TrapGate
		}

		t[v] = NewGate(entryPoints[v], gdt.KernelCodeSelector, gateType, 0)
		if v == DoubleFault {
			t[v].SetStackIndex(gdt.DoubleFaultISTIndex)
		}
	}

	return t
}

// Init populates the exception gates and loads the table. gdt.Init must
// have been called before so that the code selector and the double fault
// stack are valid.
func Init() {
	lock.Acquire()
	defer lock.Release()

	stubAddrsFn(&stubs)
	table = NewTable(&stubs)

	idtr.Set(uintptr(unsafe.Pointer(&table)), unsafe.Sizeof(table))
	loadIDTFn(idtr.Addr())

	log.Printf("loaded %d byte table at 0x%x\n", uint32(idtr.Limit())+1, idtr.Base())
}
