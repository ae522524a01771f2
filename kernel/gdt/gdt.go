// Package gdt builds and loads the long mode global descriptor table and the
// task state segment that supplies the double fault stack.
package gdt

import (
	"abos/kernel/cpu"
	"abos/kernel/kfmt"
	"abos/kernel/mm"
	"abos/kernel/sync"
	"unsafe"
)

const (
	// KernelCodeSelector selects the ring 0 code segment.
	KernelCodeSelector = uint16(0x08)

	// KernelDataSelector selects the ring 0 data segment.
	KernelDataSelector = uint16(0x10)

	// TSSSelector selects the task state segment descriptor.
	TSSSelector = uint16(0x18)

	// DoubleFaultISTIndex is the interrupt stack table slot holding the
	// dedicated double fault stack.
	DoubleFaultISTIndex = 0

	doubleFaultStackSize = 5 * mm.PageSize
)

var (
	// The following functions are used by tests to mock calls to privileged
	// instructions.
	loadGDTFn          = cpu.LoadGDT
	reloadSegmentsFn   = cpu.ReloadSegments
	loadTaskRegisterFn = cpu.LoadTaskRegister

	// lock masks interrupts while the table is loaded.
	lock sync.Locker = &sync.IRQSpinlock{}

	log = kfmt.Logger{Module: "gdt"}

	tss              TaskStateSegment
	doubleFaultStack [doubleFaultStackSize]byte
	table            Table
	gdtr             cpu.DescriptorTablePointer
	loaded           bool
)

// Table is the in-memory layout of the descriptor table.
type Table struct {
	Null       Descriptor
	KernelCode Descriptor
	KernelData Descriptor
	TSS        SystemDescriptor
}

// NewTable returns a flat model table with ring 0 code and data segments
// spanning the whole address space and a descriptor for a TSS located at
// tssAddr.
func NewTable(tssAddr uintptr) Table {
	return Table{
		KernelCode: NewDescriptor(0, 0xfffff,
			Access{Present: true, DescriptorType: 1, Executable: true, ReadWrite: true},
			Flags{Granularity: true, LongMode: true},
		),
		KernelData: NewDescriptor(0, 0xfffff,
			Access{Present: true, DescriptorType: 1, ReadWrite: true},
			Flags{Granularity: true, Size: true},
		),
		TSS: NewSystemDescriptor(uint64(tssAddr), tssSize-1,
			SystemAccess{Present: true, SegmentType: 0x9},
			Flags{},
		),
	}
}

// stackTop returns the 16-byte aligned address just past the end of stack.
func stackTop(stack []byte) uintptr {
	return (uintptr(unsafe.Pointer(&stack[0])) + uintptr(len(stack))) &^ 15
}

// Init installs the descriptor table, reloads the segment registers and
// loads the task register. The TSS descriptor base is patched to the
// runtime address of the TSS before loading. Subsequent calls are no-ops
// as reloading a busy TSS faults.
func Init() {
	lock.Acquire()
	defer lock.Release()

	if loaded {
		return
	}

	tss = NewTaskStateSegment()
	tss.SetIST(DoubleFaultISTIndex, uint64(stackTop(doubleFaultStack[:])))

	table = NewTable(0)
	table.TSS.SetBase(uint64(uintptr(unsafe.Pointer(&tss))))

	gdtr.Set(uintptr(unsafe.Pointer(&table)), unsafe.Sizeof(table))
	loadGDTFn(gdtr.Addr())
	reloadSegmentsFn(KernelCodeSelector, KernelDataSelector)
	loadTaskRegisterFn(TSSSelector)

	loaded = true
	log.Printf("loaded %d byte table at 0x%x; double fault stack top 0x%x\n", gdtr.Limit()+1, gdtr.Base(), tss.IST(DoubleFaultISTIndex))
}

// DoubleFaultStack returns the bounds of the double fault stack.
func DoubleFaultStack() (bottom, top uintptr) {
	return uintptr(unsafe.Pointer(&doubleFaultStack[0])), stackTop(doubleFaultStack[:])
}
