package idt

import (
	"abos/kernel"
	"abos/kernel/gdt"
	"abos/kernel/kfmt"
	"abos/kernel/sync"
	"bytes"
	"strings"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func TestGateLayout(t *testing.T) {
	if got := unsafe.Sizeof(Gate{}); got != 16 {
		t.Fatalf("expected gate size to be 16; got %d", got)
	}
	if got := unsafe.Sizeof(Table{}); got != 4096 {
		t.Fatalf("expected table size to be 4096; got %d", got)
	}

	g := NewGate(0xffffffff8010abcd, 0x08, InterruptGate, 0)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&g)), 16)
	exp := []byte{
		0xcd, 0xab, // offset 0-15
		0x08, 0x00, // selector
		0x00,       // IST
		0x8e,       // present, DPL 0, interrupt gate
		0x10, 0x80, // offset 16-31
		0xff, 0xff, 0xff, 0xff, // offset 32-63
		0, 0, 0, 0,
	}
	if diff := cmp.Diff(exp, raw); diff != "" {
		t.Fatalf("unexpected gate encoding (-want +got):\n%s", diff)
	}
}

func TestGateAccessors(t *testing.T) {
	specs := []struct {
		handler  uintptr
		gateType GateType
		dpl      uint8
		ist      int
		useIST   bool
	}{
		{0x1234, InterruptGate, 0, 0, false},
		{0xffffffff80000000, TrapGate, 3, 0, true},
		{0x7fffdeadbeef, InterruptGate, 1, 6, true},
	}

	for specIndex, spec := range specs {
		g := NewGate(spec.handler, gdt.KernelCodeSelector, spec.gateType, spec.dpl)
		if spec.useIST {
			g.SetStackIndex(spec.ist)
		}

		if !g.Present() {
			t.Errorf("[spec %d] expected gate to be present", specIndex)
		}
		if got := g.Handler(); got != spec.handler {
			t.Errorf("[spec %d] expected handler 0x%x; got 0x%x", specIndex, spec.handler, got)
		}
		if got := g.Selector(); got != gdt.KernelCodeSelector {
			t.Errorf("[spec %d] expected selector 0x%x; got 0x%x", specIndex, gdt.KernelCodeSelector, got)
		}
		if got := g.Type(); got != spec.gateType {
			t.Errorf("[spec %d] expected gate type 0x%x; got 0x%x", specIndex, spec.gateType, got)
		}
		if got := g.PrivilegeLevel(); got != spec.dpl {
			t.Errorf("[spec %d] expected DPL %d; got %d", specIndex, spec.dpl, got)
		}
		if index, ok := g.StackIndex(); ok != spec.useIST || index != spec.ist {
			t.Errorf("[spec %d] expected stack index %d (%t); got %d (%t)", specIndex, spec.ist, spec.useIST, index, ok)
		}
	}

	if (Gate{}).Present() {
		t.Error("expected zero gate to be non-present")
	}
}

func fakeStubs() [exceptionCount]uintptr {
	var addrs [exceptionCount]uintptr
	for v := Vector(0); v < exceptionCount; v++ {
		if !v.reserved() {
			addrs[v] = 0xffffffff80100000 + uintptr(v)*16
		}
	}
	return addrs
}

func TestNewTable(t *testing.T) {
	addrs := fakeStubs()
	table := NewTable(&addrs)

	for v := 0; v < len(table); v++ {
		g := table[v]
		switch {
		case v >= exceptionCount || Vector(v).reserved():
			if g != (Gate{}) {
				t.Errorf("[vector %d] expected empty gate", v)
			}
			continue
		case !g.Present():
			t.Errorf("[vector %d] expected gate to be present", v)
			continue
		}

		if got := g.Handler(); got != addrs[v] {
			t.Errorf("[vector %d] expected handler 0x%x; got 0x%x", v, addrs[v], got)
		}

		expType := InterruptGate
		if Vector(v) == Breakpoint {
			expType = TrapGate
		}
		if got := g.Type(); got != expType {
			t.Errorf("[vector %d] expected gate type 0x%x; got 0x%x", v, expType, got)
		}

		index, ok := g.StackIndex()
		if Vector(v) == DoubleFault {
			if !ok || index != gdt.DoubleFaultISTIndex {
				t.Errorf("[vector %d] expected double fault to use IST slot %d; got %d (%t)", v, gdt.DoubleFaultISTIndex, index, ok)
			}
		} else if ok {
			t.Errorf("[vector %d] expected gate not to switch stacks", v)
		}
	}
}

func TestInit(t *testing.T) {
	defer func(origLoadIDT func(uintptr), origStubAddrs func(*[exceptionCount]uintptr), origLock sync.Locker) {
		loadIDTFn = origLoadIDT
		stubAddrsFn = origStubAddrs
		lock = origLock
	}(loadIDTFn, stubAddrsFn, lock)

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	defer kfmt.SetOutputSink(nil)

	lock = &sync.Spinlock{}
	stubAddrsFn = func(addrs *[exceptionCount]uintptr) { *addrs = fakeStubs() }

	var loadedPtr uintptr
	loadIDTFn = func(descPtr uintptr) { loadedPtr = descPtr }

	Init()

	if loadedPtr != idtr.Addr() {
		t.Fatalf("expected lidt operand at 0x%x; got 0x%x", idtr.Addr(), loadedPtr)
	}
	if got, exp := idtr.Base(), uintptr(unsafe.Pointer(&table)); got != exp {
		t.Errorf("expected IDTR base 0x%x; got 0x%x", exp, got)
	}
	if got := idtr.Limit(); got != 4095 {
		t.Errorf("expected IDTR limit 4095; got %d", got)
	}
	if !table[PageFault].Present() {
		t.Error("expected page fault gate to be installed")
	}
	if !strings.HasPrefix(buf.String(), "[idt] loaded 4096 byte table") {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestPushesErrorCode(t *testing.T) {
	var got []Vector
	for v := Vector(0); v < exceptionCount; v++ {
		if v.pushesErrorCode() {
			got = append(got, v)
		}
	}

	exp := []Vector{8, 10, 11, 12, 13, 14, 17, 21}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected error code vectors (-want +got):\n%s", diff)
	}

	if got := Vector(200).String(); got != "unknown" {
		t.Errorf("expected unknown vector name; got %q", got)
	}
	if got := PageFault.String(); got != "page fault" {
		t.Errorf("expected page fault name; got %q", got)
	}
}

func TestExceptionErrors(t *testing.T) {
	specs := []struct {
		vector Vector
		exp    string
	}{
		{DivideError, "divide error"},
		{DoubleFault, "double fault"},
		{GeneralProtectionFault, "general protection fault"},
		{PageFault, "page fault"},
		{Vector(exceptionCount - 1), "control protection exception"},
	}

	for specIndex, spec := range specs {
		if got := exceptionErrors[spec.vector].Message; got != spec.exp {
			t.Errorf("[spec %d] expected message %q; got %q", specIndex, spec.exp, got)
		}
	}

	// Every entry is a static value; none may be left for code to fill in.
	for v := Vector(0); v < exceptionCount; v++ {
		if err := exceptionErrors[v]; err.Module != "idt" || err.Message == "" {
			t.Errorf("expected populated idt error for vector %d; got %+v", v, err)
		}
	}
}

// mockHandlers captures exception output and panics.
func mockHandlers(t *testing.T) (*bytes.Buffer, *[]*kernel.Error) {
	origPanic, origCR2, origHandlers := panicFn, readCR2Fn, handlers
	t.Cleanup(func() {
		panicFn, readCR2Fn, handlers = origPanic, origCR2, origHandlers
		kfmt.SetOutputSink(nil)
	})

	var (
		buf    bytes.Buffer
		panics []*kernel.Error
	)
	kfmt.SetOutputSink(&buf)
	panicFn = func(e interface{}) {
		err, ok := e.(*kernel.Error)
		if !ok {
			t.Fatalf("expected panic with *kernel.Error; got %v", e)
		}
		panics = append(panics, err)
	}
	readCR2Fn = func() uint64 { return 0xdeadbeef }

	return &buf, &panics
}

func TestFrameDump(t *testing.T) {
	buf, _ := mockHandlers(t)

	frame := Frame{
		RAX: 1, RBX: 2, RCX: 3, RDX: 4, RSI: 5, RDI: 6, RBP: 7,
		R8: 8, R9: 9, R10: 10, R11: 11, R12: 12, R13: 13, R14: 14, R15: 15,
		RIP: 16, CS: 17, RFlags: 18, RSP: 19, SS: 20,
	}
	frame.DumpTo(buf)

	exp := "RAX = 0000000000000001 RBX = 0000000000000002\n" +
		"RCX = 0000000000000003 RDX = 0000000000000004\n" +
		"RSI = 0000000000000005 RDI = 0000000000000006\n" +
		"RBP = 0000000000000007\n" +
		"R8  = 0000000000000008 R9  = 0000000000000009\n" +
		"R10 = 000000000000000a R11 = 000000000000000b\n" +
		"R12 = 000000000000000c R13 = 000000000000000d\n" +
		"R14 = 000000000000000e R15 = 000000000000000f\n" +
		"RIP = 0000000000000010 CS  = 0000000000000011\n" +
		"RSP = 0000000000000013 SS  = 0000000000000014\n" +
		"RFL = 0000000000000012\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFrameLayout(t *testing.T) {
	var f Frame
	specs := []struct {
		field uintptr
		exp   uintptr
	}{
		{unsafe.Offsetof(f.RAX), 0},
		{unsafe.Offsetof(f.R15), 14 * 8},
		{unsafe.Offsetof(f.Vector), 15 * 8},
		{unsafe.Offsetof(f.ErrorCode), 16 * 8},
		{unsafe.Offsetof(f.RIP), 17 * 8},
		{unsafe.Offsetof(f.SS), 21 * 8},
	}

	for specIndex, spec := range specs {
		if spec.field != spec.exp {
			t.Errorf("[spec %d] expected field offset %d; got %d", specIndex, spec.exp, spec.field)
		}
	}
}

func TestBreakpointResumes(t *testing.T) {
	buf, panics := mockHandlers(t)

	frame := Frame{Vector: uint64(Breakpoint), RIP: 0x1000}
	dispatchException(&frame)

	if len(*panics) != 0 {
		t.Fatalf("expected breakpoint not to halt; got %v", *panics)
	}
	if frame.RIP != 0x1000 {
		t.Fatalf("expected RIP to be preserved; got 0x%x", frame.RIP)
	}
	if !strings.HasPrefix(buf.String(), "[idt] breakpoint at RIP 0x1000\n[idt] RAX = ") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestFatalExceptions(t *testing.T) {
	specs := []struct {
		vector    Vector
		errorCode uint64
		expLines  []string
	}{
		{
			DivideError, 0,
			[]string{"[idt] divide error at RIP 0xc0de\n"},
		},
		{
			GeneralProtectionFault, 0x18,
			[]string{"[idt] general protection fault at RIP 0xc0de\n", "[idt] error code: 0x18\n"},
		},
		{
			DoubleFault, 0,
			[]string{"[idt] double fault at RIP 0xc0de\n", "[idt] error code: 0x0\n"},
		},
		{
			PageFault, pfWrite,
			[]string{
				"[idt] page fault while accessing address: 0x00000000deadbeef\n",
				"[idt] reason: write to non-present page\n",
				"[idt] page fault at RIP 0xc0de\n",
				"[idt] error code: 0x2\n",
			},
		},
	}

	for specIndex, spec := range specs {
		buf, panics := mockHandlers(t)

		dispatchException(&Frame{Vector: uint64(spec.vector), ErrorCode: spec.errorCode, RIP: 0xc0de})

		if len(*panics) != 1 || (*panics)[0] != &exceptionErrors[spec.vector] {
			t.Errorf("[spec %d] expected a single panic with the %s error; got %v", specIndex, spec.vector.String(), *panics)
			continue
		}
		if got := (*panics)[0].Message; got != spec.vector.String() {
			t.Errorf("[spec %d] expected panic message %q; got %q", specIndex, spec.vector.String(), got)
		}

		out := buf.String()
		if !strings.HasPrefix(out, strings.Join(spec.expLines, "")) {
			t.Errorf("[spec %d] expected output to start with:\n%q\ngot:\n%q", specIndex, strings.Join(spec.expLines, ""), out)
		}
		if !strings.Contains(out, "[idt] RIP = 000000000000c0de") {
			t.Errorf("[spec %d] expected a register dump; got:\n%q", specIndex, out)
		}
	}
}

func TestUnexpectedVector(t *testing.T) {
	_, panics := mockHandlers(t)

	dispatchException(&Frame{Vector: 99})
	if len(*panics) != 1 || (*panics)[0] != errUnexpectedVector {
		t.Fatalf("expected errUnexpectedVector; got %v", *panics)
	}
}

func TestHandleException(t *testing.T) {
	_, panics := mockHandlers(t)

	var handled *Frame
	HandleException(InvalidOpcode, func(f *Frame) { handled = f })
	HandleException(Vector(200), func(*Frame) { t.Fatal("unexpected call") })

	frame := Frame{Vector: uint64(InvalidOpcode)}
	dispatchException(&frame)
	if handled != &frame || len(*panics) != 0 {
		t.Fatalf("expected custom handler to run without halting")
	}

	HandleException(InvalidOpcode, nil)
	dispatchException(&frame)
	if len(*panics) != 1 {
		t.Fatalf("expected nil handler to restore the fatal default")
	}
}

func TestPageFaultReason(t *testing.T) {
	specs := []struct {
		code uint64
		exp  string
	}{
		{0, "read from non-present page"},
		{pfProtection, "page protection violation (read)"},
		{pfWrite, "write to non-present page"},
		{pfProtection | pfWrite, "page protection violation (write)"},
		{pfUserMode | pfWrite, "page-fault in user-mode"},
		{pfReservedBit | pfProtection, "page table has reserved bit set"},
		{pfInstructionFetch | pfProtection, "instruction fetch"},
	}

	for specIndex, spec := range specs {
		if got := pageFaultReason(spec.code); got != spec.exp {
			t.Errorf("[spec %d] expected reason %q; got %q", specIndex, spec.exp, got)
		}
	}
}
