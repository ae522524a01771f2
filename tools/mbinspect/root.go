package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logger = logrus.New()

// options holds the flags shared by every command.
type options struct {
	verbose bool
	config  string
	profile profile
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "mbinspect",
		Short: "Inspect multiboot2 boot information dumps.",
		Long: `mbinspect decodes a multiboot2 boot information dump and runs ` +
			`the kernel's frame allocator and page table code against it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(logrus.InfoLevel)
			if opts.verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			opts.profile = profile{}
			if opts.config == "" {
				return nil
			}
			return loadProfile(opts.config, &opts.profile)
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug output")
	root.PersistentFlags().StringVar(&opts.config, "config", "", "TOML machine profile supplying defaults for the kernel flags")

	root.AddCommand(
		newDumpCmd(),
		newAllocCmd(opts),
		newMapCmd(opts),
	)

	return root
}
