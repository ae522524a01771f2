// Package kmain contains the kernel entry point and the boot sequence that
// brings up segmentation, exception handling and memory management.
package kmain

import (
	"abos/kernel"
	"abos/kernel/cpu"
	"abos/kernel/gdt"
	"abos/kernel/idt"
	"abos/kernel/kfmt"
	"abos/kernel/mm/pmm"
	"abos/kernel/mm/vmm"
	"abos/kernel/serial"
	"abos/kernel/sync"
	"abos/multiboot"
)

// Exit codes understood by the QEMU isa-debug-exit device.
const (
	qemuExitPort    = 0xf4
	qemuExitSuccess = 0x10
	qemuExitFailure = 0x11
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The following functions are used by tests to mock the boot steps
	// that execute privileged instructions.
	loadBootInfoFn    = multiboot.Load
	gdtInitFn         = gdt.Init
	idtInitFn         = idt.Init
	hasFeatureFn      = cpu.HasFeature
	writeMSRFieldFn   = cpu.WriteMSRField
	activePageTableFn = vmm.ActivePageTable
	portWriteByteFn   = cpu.PortWriteByte
	consoleInitFn     = initConsole
	panicFn           = kfmt.Panic

	// allocLock guards the frame allocator shared with exception handlers.
	allocLock sync.Locker = &sync.IRQSpinlock{}

	log = kfmt.Logger{Module: "kmain"}

	com1       = serial.Port{Base: serial.COM1Base}
	outputLock sync.IRQSpinlock

	kern Kernel
)

// Kernel holds the state set up by the boot sequence.
type Kernel struct {
	BootInfo multiboot.Info

	// Frames hands out physical frames. It is safe to use from exception
	// handlers.
	Frames pmm.LockedAllocator

	// Pages is the page table that was active when the kernel was entered.
	Pages vmm.PageTable

	// NX is set if EFER.NXE was enabled and FlagNoExecute may be used.
	NX bool

	area pmm.AreaFrameAllocator
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked by the rt0 assembly code after it
// switches to long mode, installs a recursive mapping in the active level 4
// table and sets up a minimal g0 struct. The rt0 code passes the physical
// address of the multiboot2 information structure.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr uintptr) {
	consoleInitFn()

	err := kern.Boot(multibootInfoPtr)

	// When running under QEMU with the isa-debug-exit device, report the
	// boot outcome to the host.
	if _, ok := kern.BootInfo.CmdLineOption("qemu_exit"); ok {
		code := uint8(qemuExitSuccess)
		if err != nil {
			code = qemuExitFailure
		}
		portWriteByteFn(qemuExitPort, code)
	}

	if err != nil {
		panicFn(err)
		return
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// initConsole routes kernel output to the first serial port. Output printed
// before this point is kept in the early ring buffer and replayed.
func initConsole() {
	com1.Init()
	kfmt.SetOutputLock(&outputLock)
	kfmt.SetOutputSink(&com1)
}

// Boot runs the boot sequence. Each step depends on the ones before it:
// the boot information is needed to size the frame allocator and the frame
// allocator is needed to grow the page tables.
func (k *Kernel) Boot(multibootInfoPtr uintptr) *kernel.Error {
	info, err := loadBootInfoFn(multibootInfoPtr)
	if err != nil {
		return err
	}
	k.BootInfo = info

	log.Printf("booted by %s; command line: %s\n", info.BootLoaderName(), info.CmdLine())

	gdtInitFn()
	idtInitFn()

	if k.area, err = pmm.NewFromBootInfo(info); err != nil {
		return err
	}
	k.Frames = pmm.LockedAllocator{Lock: allocLock, Allocator: &k.area}

	if _, quiet := info.CmdLineOption("quiet"); !quiet {
		k.area.PrintMemoryMap(info)
	}

	if err = k.enableNX(); err != nil {
		return err
	}

	k.Pages = activePageTableFn()

	return k.mapFramebuffer()
}

// enableNX sets EFER.NXE unless the CPU lacks support or the nonx command
// line option is present.
func (k *Kernel) enableNX() *kernel.Error {
	if _, disabled := k.BootInfo.CmdLineOption("nonx"); disabled || !hasFeatureFn(cpu.FeatureNX) {
		log.Printf("no-execute pages disabled\n")
		return nil
	}

	if err := writeMSRFieldFn(cpu.MSREFER, cpu.EFERNoExecuteEnable, cpu.EFERNoExecuteEnable, 1); err != nil {
		return err
	}

	k.NX = true
	return nil
}

// mapFramebuffer identity maps the framebuffer reported by the boot loader,
// if any, so it can be written to through its physical address.
func (k *Kernel) mapFramebuffer() *kernel.Error {
	fb, ok := k.BootInfo.Framebuffer()
	if !ok || fb.Type == multiboot.FramebufferTypeEGA {
		return nil
	}

	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagDoNotCache
	if k.NX {
		flags |= vmm.FlagNoExecute
	}

	before := k.area.AllocatedFrames()
	if err := k.Pages.IdentityMapRegion(uintptr(fb.PhysAddr), fb.Size(), flags, &k.Frames); err != nil {
		return err
	}

	log.Printf("mapped %dx%d framebuffer at 0x%x using %d new table frames\n",
		fb.Width, fb.Height, fb.PhysAddr, k.area.AllocatedFrames()-before)

	return nil
}
