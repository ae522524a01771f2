package pmm

import (
	"abos/kernel"
	"abos/kernel/kfmt"
	"abos/kernel/mm"
	"abos/multiboot"
	"abos/multiboot/mbtest"
	"bytes"
	"strings"
	"testing"
)

// encodeBootInfo builds a multiboot2 structure holding a memory map tag and,
// if sections is not empty, an ELF sections tag.
func encodeBootInfo(t *testing.T, regions []multiboot.MemoryMapEntry, sections [][2]uint64) multiboot.Info {
	t.Helper()

	var b mbtest.Builder
	entries := make([]mbtest.MemoryEntry, len(regions))
	for i, r := range regions {
		entries[i] = mbtest.MemoryEntry{Addr: r.PhysAddress, Length: r.Length, Type: uint32(r.Type)}
	}
	b.MemoryMap(entries...)

	if len(sections) != 0 {
		elf := make([]mbtest.Section, len(sections))
		for i, s := range sections {
			elf[i] = mbtest.Section{Flags: mbtest.SectionAlloc, Addr: s[0], Size: s[1]}
		}
		b.ElfSections(0, elf...)
	}

	info, err := multiboot.Parse(kernel.RegionFromBytes(b.End().Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestNewFromBootInfo(t *testing.T) {
	defer kfmt.SetOutputSink(nil)
	var out bytes.Buffer
	kfmt.SetOutputSink(&out)

	regions := []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: 0x9fc00, Type: multiboot.MemAvailable},
		{PhysAddress: 0x9fc00, Length: 0x400, Type: multiboot.MemReserved},
		{PhysAddress: 0x100000, Length: 0x7ee0000, Type: multiboot.MemAvailable},
	}

	t.Run("missing kernel sections", func(t *testing.T) {
		info := encodeBootInfo(t, regions, nil)
		if _, err := NewFromBootInfo(info); err != ErrNoKernelImage {
			t.Fatalf("expected ErrNoKernelImage; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		// kernel image spans [0x100000, 0x180000) -> frames 256-383
		info := encodeBootInfo(t, regions, [][2]uint64{{0x100000, 0x60000}, {0x160000, 0x20000}})

		alloc, err := NewFromBootInfo(info)
		if err != nil {
			t.Fatal(err)
		}

		// The boot info lives in Go heap memory which may overlap the
		// simulated regions; account for it when counting frames.
		bootInfoFrames := exclusionRange(info.StartAddress(), info.EndAddress())
		kernelFrames := exclusionRange(0x100000, 0x180000)

		var count uint64
		for {
			frame, err := alloc.AllocFrame()
			if err != nil {
				break
			}
			if kernelFrames.contains(frame) || bootInfoFrames.contains(frame) {
				t.Fatalf("allocator returned excluded frame %d", frame)
			}
			count++
		}

		var exp uint64
		for _, r := range [][2]mm.Frame{{0, 0x9e}, {0x100, 0x7fdf}} {
			for frame := r[0]; frame <= r[1]; frame++ {
				if !kernelFrames.contains(frame) && !bootInfoFrames.contains(frame) {
					exp++
				}
			}
		}
		if count != exp {
			t.Fatalf("expected %d frames; got %d", exp, count)
		}

		out.Reset()
		alloc.PrintMemoryMap(info)
		for _, exp := range []string{
			"[frame_alloc] system memory map:\n",
			"type: available\n",
			"type: reserved\n",
			"[frame_alloc] available memory: 130559Kb\n",
			"[frame_alloc] kernel image frames: [256 - 383]\n",
		} {
			if !strings.Contains(out.String(), exp) {
				t.Errorf("expected memory map dump to contain %q; got:\n%s", exp, out.String())
			}
		}
	})
}
