package main

import (
	"abos/kernel/mm"
	"abos/kernel/mm/vmm"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultMapBase = 0x0000100000000000

// mapResult summarizes a mapping run.
type mapResult struct {
	mapped, unmapped int
	tables           int
	flushes          int
}

func newMapCmd(opts *options) *cobra.Command {
	var (
		flags allocatorFlags
		pages int
		base  uint64
		unmap bool
	)

	cmd := &cobra.Command{
		Use:   "map FILE",
		Short: "Map pages through a simulated page table backed by the dump's memory.",
		Long: `Create an empty page table hierarchy in host memory and map ` +
			`consecutive pages starting at --base to frames taken from the ` +
			`allocator the kernel would create for the dump. Every mapping is ` +
			`translated back and checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.resolve(cmd, opts.profile)

			if pages <= 0 {
				return fmt.Errorf("--map-pages must be positive; got %d", pages)
			}
			if mm.PageOffset(uintptr(base)) != 0 {
				return fmt.Errorf("base address 0x%x is not page aligned", base)
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

			area, err := newAllocator(info, &flags)
			if err != nil {
				return err
			}

			res, err := mapPages(&recyclingAllocator{FrameAllocator: &area}, uintptr(base), pages, unmap)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mapped %d pages at 0x%x\n", res.mapped, base)
			fmt.Fprintf(out, "page tables: %d\n", res.tables)
			fmt.Fprintf(out, "frames allocated: %d\n", area.AllocatedFrames())
			if unmap {
				fmt.Fprintf(out, "unmapped %d pages (%d TLB flushes)\n", res.unmapped, res.flushes)
			}

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&pages, "map-pages", "n", 1, "Number of pages to map")
	cmd.Flags().Uint64Var(&base, "base", defaultMapBase, "Virtual address of the first page")
	cmd.Flags().BoolVar(&unmap, "unmap", false, "Unmap every page again and check that the frames are released")

	return cmd
}

// mapPages maps count pages starting at base using frames from alloc and
// verifies each translation. The page table code reports misuse by
// panicking; such panics are returned as errors.
func mapPages(alloc *recyclingAllocator, base uintptr, count int, unmap bool) (res mapResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page table walker: %v", r)
		}
	}()

	tables := vmm.NewSimulatedTables()
	pt := vmm.NewPageTable(tables)
	first := mm.PageFromAddress(base)

	for i := 0; i < count; i++ {
		page := first + mm.Page(i)
		if kerr := pt.Map(page, vmm.FlagRW|vmm.FlagNoExecute, alloc); kerr != nil {
			return res, fmt.Errorf("mapping page 0x%x: %w", page.Address(), kerr)
		}

		if _, kerr := pt.Translate(page.Address()); kerr != nil {
			return res, fmt.Errorf("translating page 0x%x: %w", page.Address(), kerr)
		}
		res.mapped++
	}

	res.tables = tables.TableCount()
	logger.WithFields(logrus.Fields{
		"pages":  res.mapped,
		"tables": res.tables,
	}).Debug("mapped pages")

	if !unmap {
		return res, nil
	}

	for i := 0; i < count; i++ {
		page := first + mm.Page(i)
		if kerr := pt.Unmap(page, alloc); kerr != nil {
			return res, fmt.Errorf("unmapping page 0x%x: %w", page.Address(), kerr)
		}

		if _, kerr := pt.Translate(page.Address()); kerr != vmm.ErrInvalidMapping {
			return res, fmt.Errorf("page 0x%x still mapped after unmap", page.Address())
		}
		res.unmapped++
	}

	res.flushes = len(tables.Flushed())
	if len(alloc.free) != count {
		return res, fmt.Errorf("expected %d frames to be released; got %d", count, len(alloc.free))
	}

	return res, nil
}
