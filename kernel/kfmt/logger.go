package kfmt

// Logger prints lines tagged with the name of the kernel module that
// produced them, e.g. "[frame_alloc] out of memory".
type Logger struct {
	Module string
}

// logWriter is shared by all loggers and only used while outputLock is held.
var logWriter PrefixWriter

// Printf formats its arguments like Printf and writes the result to the
// active output sink prefixing every line with the logger's module tag.
func (l Logger) Printf(format string, args ...interface{}) {
	outputLock.Acquire()
	logWriter.Module = l.Module
	logWriter.bytesAfterPrefix = 0
	Fprintf(&logWriter, format, args...)
	outputLock.Release()
}
