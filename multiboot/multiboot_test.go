package multiboot

import (
	"abos/kernel"
	"abos/kernel/sync"
	"abos/multiboot/mbtest"
	"encoding/binary"
	"runtime"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
)

func memEntries(entries []MemoryMapEntry) []mbtest.MemoryEntry {
	out := make([]mbtest.MemoryEntry, len(entries))
	for i, e := range entries {
		out[i] = mbtest.MemoryEntry{Addr: e.PhysAddress, Length: e.Length, Type: uint32(e.Type)}
	}
	return out
}

func mustParse(t *testing.T, buf []byte) Info {
	t.Helper()
	info, err := Parse(kernel.RegionFromBytes(buf))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return info
}

func TestParseErrors(t *testing.T) {
	valid := new(mbtest.Builder).CmdLine("quiet").End().Bytes()

	withTotalSize := func(buf []byte, size uint32) []byte {
		binary.LittleEndian.PutUint32(buf, size)
		return buf
	}

	specs := []struct {
		name   string
		region kernel.Region
		expErr *kernel.Error
	}{
		{
			"unaligned",
			func() kernel.Region {
				r, _ := kernel.RegionFromBytes(make([]byte, 64)).Sub(4, 32)
				return r
			}(),
			ErrUnaligned,
		},
		{
			"empty region",
			kernel.Region{},
			ErrBadTotalSize,
		},
		{
			"total size too small",
			kernel.RegionFromBytes(withTotalSize(new(mbtest.Builder).End().Bytes(), 8)),
			ErrBadTotalSize,
		},
		{
			"total size not a multiple of 8",
			kernel.RegionFromBytes(withTotalSize(new(mbtest.Builder).End().Bytes(), 17)),
			ErrBadTotalSize,
		},
		{
			"total size exceeds region",
			kernel.RegionFromBytes(withTotalSize(new(mbtest.Builder).End().Bytes(), 64)),
			ErrBadTotalSize,
		},
		{
			"tag smaller than its header",
			kernel.RegionFromBytes(new(mbtest.Builder).RawTag(mbtest.TagCmdLine, 4).End().Bytes()),
			ErrMalformedTag,
		},
		{
			"tag past end of structure",
			kernel.RegionFromBytes(new(mbtest.Builder).RawTag(mbtest.TagCmdLine, 64).End().Bytes()),
			ErrMalformedTag,
		},
		{
			"end tag with payload",
			kernel.RegionFromBytes(new(mbtest.Builder).Tag(mbtest.TagEnd, []byte{1, 2, 3, 4}).Bytes()),
			ErrMalformedTag,
		},
		{
			"missing end tag",
			kernel.RegionFromBytes(new(mbtest.Builder).CmdLine("quiet").Bytes()),
			ErrMissingEndTag,
		},
		{
			"valid",
			kernel.RegionFromBytes(valid),
			nil,
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			if _, err := Parse(spec.region); err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
		})
	}
}

func TestVisitMemRegions(t *testing.T) {
	entries := []MemoryMapEntry{
		{PhysAddress: 0, Length: 0x9fc00, Type: MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x400, Type: MemReserved},
		{PhysAddress: 0x100000, Length: 0x7ee0000, Type: MemAvailable},
		{PhysAddress: 0x7fe0000, Length: 0x20000, Type: MemAcpiReclaimable},
		{PhysAddress: 0xfffc0000, Length: 0x40000, Type: MemoryEntryType(42)},
	}

	info := mustParse(t, new(mbtest.Builder).CmdLine("").MemoryMap(memEntries(entries)...).End().Bytes())

	var got []MemoryMapEntry
	info.VisitMemRegions(func(e MemoryMapEntry) bool {
		got = append(got, e)
		return true
	})

	exp := append([]MemoryMapEntry(nil), entries...)
	exp[4].Type = MemReserved
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("memory map mismatch (-want +got):\n%s", diff)
	}

	var visited int
	info.VisitMemRegions(func(MemoryMapEntry) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("expected visitor to be aborted after 1 entry; visited %d", visited)
	}

	if exp, got := uint64(0x9fc00+0x7ee0000), info.TotalAvailableMemory(); got != exp {
		t.Errorf("expected total available memory 0x%x; got 0x%x", exp, got)
	}

	if exp, got := "ACPI (reclaimable)", MemAcpiReclaimable.String(); got != exp {
		t.Errorf("expected %q; got %q", exp, got)
	}
}

func TestVisitMemRegionsWithoutTag(t *testing.T) {
	info := mustParse(t, new(mbtest.Builder).End().Bytes())
	info.VisitMemRegions(func(MemoryMapEntry) bool {
		t.Fatal("unexpected memory region")
		return true
	})

	if got := info.TotalAvailableMemory(); got != 0 {
		t.Fatalf("expected no available memory; got %d", got)
	}
}

func TestVisitElfSections(t *testing.T) {
	strtab := []byte("\x00.text\x00.rodata\x00.bss\x00.shstrtab\x00")

	sections := []mbtest.Section{
		{},
		{NameIndex: 1, Flags: uint64(ElfSectionAllocated | ElfSectionExecutable), Addr: 0x100000, Size: 0x3000},
		{NameIndex: 7, Flags: uint64(ElfSectionAllocated), Addr: 0x103000, Size: 0x800},
		{NameIndex: 15, Flags: uint64(ElfSectionAllocated | ElfSectionWritable), Addr: 0x104000, Size: 0x2100},
		{NameIndex: 20, Addr: uint64(uintptr(unsafe.Pointer(&strtab[0]))), Size: uint64(len(strtab))},
	}
	info := mustParse(t, new(mbtest.Builder).ElfSections(4, sections...).End().Bytes())

	type visited struct {
		Name  string
		Flags ElfSectionFlag
		Addr  uintptr
		Size  uint64
	}

	collect := func(info Info) []visited {
		var out []visited
		info.VisitElfSections(func(name string, flags ElfSectionFlag, address uintptr, size uint64) {
			out = append(out, visited{name, flags, address, size})
		})
		return out
	}

	t.Run("without names", func(t *testing.T) {
		got := collect(info)
		if len(got) != 4 {
			t.Fatalf("expected 4 non-empty sections; got %d", len(got))
		}
		for _, sec := range got {
			if sec.Name != "" {
				t.Errorf("expected unresolved section name; got %q", sec.Name)
			}
		}
	})

	t.Run("with names", func(t *testing.T) {
		info.resolveNames = true
		got := collect(info)
		runtime.KeepAlive(strtab)

		exp := []visited{
			{".text", ElfSectionAllocated | ElfSectionExecutable, 0x100000, 0x3000},
			{".rodata", ElfSectionAllocated, 0x103000, 0x800},
			{".bss", ElfSectionAllocated | ElfSectionWritable, 0x104000, 0x2100},
			{".shstrtab", 0, uintptr(sections[4].Addr), uint64(len(strtab))},
		}
		if diff := cmp.Diff(exp, got); diff != "" {
			t.Fatalf("section mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestKernelBounds(t *testing.T) {
	alloc := uint64(mbtest.SectionAlloc)
	sections := []mbtest.Section{
		{Flags: alloc | mbtest.SectionWrite, Addr: 0x104000, Size: 0x2100},
		{Flags: alloc | mbtest.SectionExec, Addr: 0x100000, Size: 0x3000},
		{Flags: alloc, Addr: 0x200000, Size: 0},
		{Flags: alloc, Addr: 0x103000, Size: 0x800},
		// Symbol tables and debug info are not loaded and report address 0.
		{Addr: 0, Size: 0x5000},
		{Addr: 0x300000, Size: 0x1000},
	}

	info := mustParse(t, new(mbtest.Builder).ElfSections(0, sections...).End().Bytes())
	start, end, ok := info.KernelBounds()
	if !ok {
		t.Fatal("expected kernel bounds to be available")
	}
	if start != 0x100000 || end != 0x106100 {
		t.Fatalf("expected kernel bounds [0x100000, 0x106100); got [0x%x, 0x%x)", start, end)
	}

	if _, _, ok = mustParse(t, new(mbtest.Builder).End().Bytes()).KernelBounds(); ok {
		t.Fatal("expected no kernel bounds without an ELF sections tag")
	}

	unloaded := new(mbtest.Builder).ElfSections(0, mbtest.Section{Addr: 0, Size: 0x5000}).End().Bytes()
	if _, _, ok = mustParse(t, unloaded).KernelBounds(); ok {
		t.Fatal("expected no kernel bounds without allocated sections")
	}
}

func TestFramebuffer(t *testing.T) {
	payload := make([]byte, 30)
	binary.LittleEndian.PutUint64(payload[0:], 0xfd000000)
	binary.LittleEndian.PutUint32(payload[8:], 4096)
	binary.LittleEndian.PutUint32(payload[12:], 1024)
	binary.LittleEndian.PutUint32(payload[16:], 768)
	payload[20] = 32
	payload[21] = uint8(FramebufferTypeRGB)
	copy(payload[24:], []byte{16, 8, 8, 8, 0, 8})

	info := mustParse(t, new(mbtest.Builder).Tag(mbtest.TagFramebuffer, payload).End().Bytes())
	fb, ok := info.Framebuffer()
	if !ok {
		t.Fatal("expected framebuffer info to be available")
	}

	exp := FramebufferInfo{
		PhysAddr: 0xfd000000,
		Pitch:    4096,
		Width:    1024,
		Height:   768,
		Bpp:      32,
		Type:     FramebufferTypeRGB,
		RGB: FramebufferRGBColorInfo{
			RedPosition: 16, RedMaskSize: 8,
			GreenPosition: 8, GreenMaskSize: 8,
			BluePosition: 0, BlueMaskSize: 8,
		},
	}
	if diff := cmp.Diff(exp, fb); diff != "" {
		t.Fatalf("framebuffer mismatch (-want +got):\n%s", diff)
	}

	if exp, got := uintptr(4096*768), fb.Size(); got != exp {
		t.Errorf("expected framebuffer size %d; got %d", exp, got)
	}

	payload[21] = uint8(FramebufferTypeEGA)
	info = mustParse(t, new(mbtest.Builder).Tag(mbtest.TagFramebuffer, payload[:22]).End().Bytes())
	if fb, ok = info.Framebuffer(); !ok || fb.RGB != (FramebufferRGBColorInfo{}) {
		t.Fatalf("expected EGA framebuffer without color info; got %+v (ok: %t)", fb, ok)
	}

	if _, ok = mustParse(t, new(mbtest.Builder).End().Bytes()).Framebuffer(); ok {
		t.Fatal("expected no framebuffer info")
	}
}

func TestCmdLine(t *testing.T) {
	info := mustParse(t, new(mbtest.Builder).
		BootLoaderName("GRUB 2.06").
		CmdLine("  quiet consoleLogo=off\tmem=512M  ").
		End().Bytes())

	if exp, got := "GRUB 2.06", info.BootLoaderName(); got != exp {
		t.Errorf("expected boot loader name %q; got %q", exp, got)
	}

	type kv struct{ Key, Value string }
	var got []kv
	info.VisitCmdLine(func(key, value string) bool {
		got = append(got, kv{key, value})
		return true
	})

	exp := []kv{{"quiet", "quiet"}, {"consoleLogo", "off"}, {"mem", "512M"}}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("command line mismatch (-want +got):\n%s", diff)
	}

	if v, ok := info.CmdLineOption("mem"); !ok || v != "512M" {
		t.Errorf("expected mem option to be 512M; got %q (ok: %t)", v, ok)
	}
	if _, ok := info.CmdLineOption("nonx"); ok {
		t.Error("expected nonx option to be missing")
	}

	empty := mustParse(t, new(mbtest.Builder).End().Bytes())
	if empty.CmdLine() != "" || empty.BootLoaderName() != "" {
		t.Error("expected empty strings when tags are missing")
	}
}

func TestLoad(t *testing.T) {
	defer func() {
		bootInfo = sync.WriteOnce[Info]{}
	}()

	bootInfo = sync.WriteOnce[Info]{}

	if _, err := Load(0); err != ErrNullPointer {
		t.Fatalf("expected ErrNullPointer; got %v", err)
	}

	if _, err := Load(0x1004); err != ErrUnaligned {
		t.Fatalf("expected ErrUnaligned; got %v", err)
	}

	bad := new(mbtest.Builder).CmdLine("quiet").Bytes()
	if _, err := Load(uintptr(unsafe.Pointer(&bad[0]))); err != ErrMissingEndTag {
		t.Fatalf("expected ErrMissingEndTag; got %v", err)
	}
	if _, loaded := BootInfo(); loaded {
		t.Fatal("expected failed Load to leave the boot info unset")
	}

	first := new(mbtest.Builder).CmdLine("first").End().Bytes()
	second := new(mbtest.Builder).CmdLine("second").End().Bytes()

	info, err := Load(uintptr(unsafe.Pointer(&first[0])))
	if err != nil {
		t.Fatal(err)
	}
	if exp := uintptr(unsafe.Pointer(&first[0])); info.StartAddress() != exp || info.EndAddress() != exp+uintptr(len(first)) {
		t.Fatalf("expected info to span [0x%x, 0x%x); got [0x%x, 0x%x)", exp, exp+uintptr(len(first)), info.StartAddress(), info.EndAddress())
	}

	// A second Load is a no-op that returns the original structure.
	again, err := Load(uintptr(unsafe.Pointer(&second[0])))
	if err != nil {
		t.Fatal(err)
	}
	if got := again.CmdLine(); got != "first" {
		t.Fatalf("expected second Load to return the first structure; got cmdline %q", got)
	}

	stored, loaded := BootInfo()
	if !loaded || stored.StartAddress() != info.StartAddress() {
		t.Fatal("expected BootInfo to return the loaded structure")
	}

	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
	runtime.KeepAlive(bad)
}
