// Command mbinspect decodes multiboot2 boot information dumps and replays
// the kernel's early memory management against them on the host.
//
// A dump is the raw structure the boot loader hands to the kernel, for
// instance captured from QEMU with
//
//	(qemu) pmemsave <addr> <total_size> boot.info
package main

import "github.com/tebeka/atexit"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
