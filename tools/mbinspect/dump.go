package main

import (
	"abos/multiboot"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type memRegion struct {
	Start  uint64 `yaml:"start"`
	End    uint64 `yaml:"end"`
	Length uint64 `yaml:"length"`
	Type   string `yaml:"type"`
}

type elfSection struct {
	Name    string `yaml:"name,omitempty"`
	Address uint64 `yaml:"address"`
	Size    uint64 `yaml:"size"`
	Flags   string `yaml:"flags"`
}

type addrRange struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

type framebuffer struct {
	Address uint64 `yaml:"address"`
	Pitch   uint32 `yaml:"pitch"`
	Width   uint32 `yaml:"width"`
	Height  uint32 `yaml:"height"`
	Bpp     uint8  `yaml:"bpp"`
	Type    string `yaml:"type"`
	Size    uint64 `yaml:"size"`
}

// report is the decoded content of a dump.
type report struct {
	BootLoader      string       `yaml:"boot_loader,omitempty"`
	CmdLine         string       `yaml:"cmdline,omitempty"`
	TotalSize       uint64       `yaml:"total_size"`
	AvailableMemory uint64       `yaml:"available_memory"`
	MemoryMap       []memRegion  `yaml:"memory_map"`
	ElfSections     []elfSection `yaml:"elf_sections,omitempty"`
	Kernel          *addrRange   `yaml:"kernel,omitempty"`
	Framebuffer     *framebuffer `yaml:"framebuffer,omitempty"`
}

func newReport(info multiboot.Info) report {
	r := report{
		BootLoader:      info.BootLoaderName(),
		CmdLine:         info.CmdLine(),
		TotalSize:       uint64(info.TotalSize()),
		AvailableMemory: info.TotalAvailableMemory(),
	}

	info.VisitMemRegions(func(e multiboot.MemoryMapEntry) bool {
		r.MemoryMap = append(r.MemoryMap, memRegion{
			Start:  e.PhysAddress,
			End:    e.EndAddress(),
			Length: e.Length,
			Type:   e.Type.String(),
		})
		return true
	})

	info.VisitElfSections(func(name string, flags multiboot.ElfSectionFlag, address uintptr, size uint64) {
		r.ElfSections = append(r.ElfSections, elfSection{
			Name:    name,
			Address: uint64(address),
			Size:    size,
			Flags:   sectionFlags(flags),
		})
	})

	if start, end, ok := info.KernelBounds(); ok {
		r.Kernel = &addrRange{Start: uint64(start), End: uint64(end)}
	}

	if fb, ok := info.Framebuffer(); ok {
		r.Framebuffer = &framebuffer{
			Address: fb.PhysAddr,
			Pitch:   fb.Pitch,
			Width:   fb.Width,
			Height:  fb.Height,
			Bpp:     fb.Bpp,
			Type:    framebufferType(fb.Type),
			Size:    uint64(fb.Size()),
		}
	}

	return r
}

func sectionFlags(flags multiboot.ElfSectionFlag) string {
	out := []byte("---")
	if flags&multiboot.ElfSectionAllocated != 0 {
		out[0] = 'a'
	}
	if flags&multiboot.ElfSectionWritable != 0 {
		out[1] = 'w'
	}
	if flags&multiboot.ElfSectionExecutable != 0 {
		out[2] = 'x'
	}
	return string(out)
}

func framebufferType(t multiboot.FramebufferType) string {
	switch t {
	case multiboot.FramebufferTypeIndexed:
		return "indexed"
	case multiboot.FramebufferTypeRGB:
		return "rgb"
	case multiboot.FramebufferTypeEGA:
		return "ega"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

func (r report) writeText(w io.Writer) {
	fmt.Fprintf(w, "boot loader: %s\n", r.BootLoader)
	fmt.Fprintf(w, "command line: %s\n", r.CmdLine)
	fmt.Fprintf(w, "total size: %d bytes\n", r.TotalSize)

	fmt.Fprintf(w, "memory map:\n")
	for _, m := range r.MemoryMap {
		fmt.Fprintf(w, "  [0x%010x - 0x%010x] %12d bytes  %s\n", m.Start, m.End, m.Length, m.Type)
	}
	fmt.Fprintf(w, "available memory: %d KiB\n", r.AvailableMemory/1024)

	if len(r.ElfSections) != 0 {
		fmt.Fprintf(w, "elf sections:\n")
		for _, s := range r.ElfSections {
			name := s.Name
			if name == "" {
				name = "?"
			}
			fmt.Fprintf(w, "  %-16s 0x%010x %10d %s\n", name, s.Address, s.Size, s.Flags)
		}
	}

	if r.Kernel != nil {
		fmt.Fprintf(w, "kernel image: [0x%x - 0x%x)\n", r.Kernel.Start, r.Kernel.End)
	}

	if fb := r.Framebuffer; fb != nil {
		fmt.Fprintf(w, "framebuffer: %dx%d %s, %d bpp, pitch %d at 0x%x\n", fb.Width, fb.Height, fb.Type, fb.Bpp, fb.Pitch, fb.Address)
	}
}

func newDumpCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the tags of a boot information dump.",
		Long:  "Print the tags of a boot information dump. Use - to read the dump from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "yaml" {
				return fmt.Errorf("unsupported format %q", format)
			}

			img, err := openImage(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer img.Close()

			info, err := img.Info()
			if err != nil {
				return err
			}

			r := newReport(info)
			if format == "text" {
				r.writeText(cmd.OutOrStdout())
				return nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(r); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or yaml")
	return cmd
}
