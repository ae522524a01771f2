package main

import (
	"abos/kernel/mm"
	"fmt"
	"os"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// frameTrace records allocated frames to a CSV file.
type frameTrace struct {
	path string
	file *os.File

	frames     []mm.Frame
	written    int
	bufferSize int
	closed     bool
}

func newFrameTrace(path string) *frameTrace {
	return &frameTrace{
		path:       path,
		bufferSize: 1000,
	}
}

// Init creates the trace file. An empty path selects a unique file name in
// the working directory. Existing files are never overwritten.
func (t *frameTrace) Init() error {
	if t.path == "" {
		t.path = "mbinspect_trace_" + xid.New().String() + ".csv"
	}

	file, err := os.OpenFile(t.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	t.file = file

	fmt.Fprintf(file, "index, frame, address\n")

	// Flush whatever was recorded if the tool exits early.
	atexit.Register(func() {
		if err := t.Close(); err != nil {
			logger.WithError(err).Error("closing frame trace")
		}
	})

	return nil
}

// Write records an allocated frame.
func (t *frameTrace) Write(frame mm.Frame) {
	t.frames = append(t.frames, frame)
	if len(t.frames) >= t.bufferSize {
		t.Flush()
	}
}

// Flush writes the buffered frames to the trace file.
func (t *frameTrace) Flush() {
	for _, frame := range t.frames {
		fmt.Fprintf(t.file, "%d, %d, 0x%x\n", t.written, uint64(frame), frame.Address())
		t.written++
	}

	t.frames = t.frames[:0]
}

// Close flushes the trace and closes the file. It is safe to call more than
// once.
func (t *frameTrace) Close() error {
	if t.closed || t.file == nil {
		return nil
	}
	t.closed = true

	t.Flush()
	return t.file.Close()
}
