package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// profile describes the machine a dump was captured on. Values given on the
// command line take precedence.
type profile struct {
	// KernelImage is the path to the kernel ELF file.
	KernelImage string `toml:"kernel_image"`

	// KernelStart and KernelEnd bound the loaded kernel image.
	KernelStart uint64 `toml:"kernel_start"`
	KernelEnd   uint64 `toml:"kernel_end"`

	// InfoAddr is the physical address the dump was taken from.
	InfoAddr uint64 `toml:"info_addr"`
}

func loadProfile(path string, p *profile) error {
	md, err := toml.DecodeFile(path, p)
	if err != nil {
		return fmt.Errorf("loading profile %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return fmt.Errorf("profile %s: unknown keys %v", path, undecoded)
	}

	logger.WithField("profile", path).Debug("loaded machine profile")
	return nil
}
