// Command redirects wires Go runtime functions to kernel replacements.
//
// A kernel function annotated with
//
//	//go:redirect-from runtime.gopanic
//
// replaces the named runtime function in the linked kernel image. The rt0
// code patches each source function with a jump to its target using the
// address pairs that populate-table writes into the .goredirectstbl section.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/mod/modfile"
)

var logger = logrus.New()

func newRootCmd() *cobra.Command {
	var (
		moduleDir string
		srcDir    string
		verbose   bool
	)

	root := &cobra.Command{
		Use:          "redirects",
		Short:        "Collect and apply go:redirect-from annotations.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetLevel(logrus.InfoLevel)
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&moduleDir, "module", ".", "Directory holding the kernel go.mod")
	root.PersistentFlags().StringVar(&srcDir, "src", "kernel", "Directory to scan, relative to the module directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")

	collect := func() ([]*redirect, error) {
		modulePath, err := readModulePath(moduleDir)
		if err != nil {
			return nil, err
		}
		return findRedirects(modulePath, moduleDir, srcDir)
	}

	root.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of redirects; the linker script sizes the table with it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			redirects, err := collect()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d", len(redirects))
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "populate-table IMAGE",
		Short: "Resolve the redirect addresses and write them into the kernel image.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			redirects, err := collect()
			if err != nil {
				return err
			}

			if err := resolveSymbols(redirects, args[0]); err != nil {
				return err
			}

			return writeTable(redirects, args[0])
		},
	})

	return root
}

// readModulePath returns the module path declared in dir/go.mod.
func readModulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", err
	}

	modulePath := modfile.ModulePath(data)
	if modulePath == "" {
		return "", fmt.Errorf("%s: no module directive", filepath.Join(dir, "go.mod"))
	}

	return modulePath, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
