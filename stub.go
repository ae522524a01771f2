package main

import "abos/kernel/kmain"

// multibootInfoPtr is a global so that the compiler cannot inline the call
// below and drop Kmain from the generated object file.
var multibootInfoPtr uintptr

// main keeps the kernel code reachable for the Go linker. The rt0 code never
// calls it; it jumps to kmain.Kmain directly.
func main() {
	kmain.Kmain(multibootInfoPtr)
}
