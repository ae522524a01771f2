package main

import (
	"abos/kernel/kfmt"
	"abos/kernel/mm"
	"abos/kernel/mm/pmm"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newAllocCmd(opts *options) *cobra.Command {
	var (
		flags     allocatorFlags
		trace     bool
		tracePath string
	)

	cmd := &cobra.Command{
		Use:   "alloc FILE",
		Short: "Run the frame allocator over a dump until it is exhausted.",
		Long: `Run the frame allocator the kernel would create for the dump until ` +
			`it runs out of memory and compare the number of frames it handed ` +
			`out with the memory reported as available.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.resolve(cmd, opts.profile)

			img, err := openImage(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer img.Close()

			info, err := img.Info()
			if err != nil {
				return err
			}

			alloc, err := newAllocator(info, &flags)
			if err != nil {
				return err
			}

			if opts.verbose {
				kfmt.SetOutputSink(cmd.OutOrStdout())
				alloc.PrintMemoryMap(info)
				kfmt.SetOutputSink(nil)
			}

			var ft *frameTrace
			if trace {
				ft = newFrameTrace(tracePath)
				if err := ft.Init(); err != nil {
					return err
				}
				defer ft.Close()
			}

			var (
				count uint64
				last  mm.Frame
			)
			for {
				frame, kerr := alloc.AllocFrame()
				if kerr == pmm.ErrOutOfMemory {
					break
				} else if kerr != nil {
					return kerr
				}

				if count != 0 && frame <= last {
					return fmt.Errorf("allocator returned frame %d after frame %d", frame, last)
				}
				last = frame
				count++

				if ft != nil {
					ft.Write(frame)
				}
			}

			available := info.TotalAvailableMemory() / uint64(mm.PageSize)
			if count > available {
				return fmt.Errorf("allocator returned %d frames but only %d are available", count, available)
			}

			logger.WithFields(logrus.Fields{
				"allocated": count,
				"available": available,
			}).Debug("allocator exhausted")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "allocated %d frames (%d KiB)\n", count, count*uint64(mm.PageSize)/1024)
			fmt.Fprintf(out, "available memory: %d frames\n", available)
			fmt.Fprintf(out, "excluded or unaligned: %d frames\n", available-count)
			if ft != nil {
				fmt.Fprintf(out, "trace: %s\n", ft.path)
			}

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&trace, "trace", false, "Record every allocated frame to a CSV file")
	cmd.Flags().StringVar(&tracePath, "trace-file", "", "Trace file path (default: a unique name in the working directory)")

	return cmd
}
