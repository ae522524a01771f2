package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and tags the
// beginning of each line with "[Module] ". A nil Sink selects the active
// output sink (or the early ring buffer if none is installed).
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The module name injected at the beginning of each line.
	Module string

	bytesAfterPrefix int
}

// Write writes len(p) bytes from p to the underlying data stream and returns
// back the number of bytes written. The injected prefix is not included in
// the number of written bytes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var (
		written              int
		startIndex, curIndex int
	)

	if w.bytesAfterPrefix == 0 && len(p) != 0 {
		w.writePrefix()
	}

	for ; curIndex < len(p); curIndex++ {
		if p[curIndex] != '\n' {
			continue
		}

		n, err := w.sink().Write(p[startIndex : curIndex+1])
		written += n
		if err != nil {
			return written, err
		}
		if curIndex+1 != len(p) {
			w.writePrefix()
		}
		w.bytesAfterPrefix = 0
		startIndex = curIndex + 1
	}

	if startIndex < curIndex {
		n, err := w.sink().Write(p[startIndex:curIndex])
		written += n
		w.bytesAfterPrefix += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

func (w *PrefixWriter) writePrefix() {
	sink := w.sink()
	writeByte(sink, '[')
	writeString(sink, w.Module)
	writeByte(sink, ']')
	writeByte(sink, ' ')
}

func (w *PrefixWriter) sink() io.Writer {
	if w.Sink != nil {
		return w.Sink
	}
	return activeSink{}
}

// activeSink forwards writes to outputSink or, if no sink is installed yet,
// to the early ring buffer.
type activeSink struct{}

func (activeSink) Write(p []byte) (int, error) {
	if outputSink != nil {
		return outputSink.Write(p)
	}
	return earlyPrintBuffer.Write(p)
}
