package main

import (
	"abos/kernel"
	"abos/multiboot"
	"fmt"
	"io"
	"os"
	"unsafe"
)

// bootImage is a boot information dump loaded into memory.
type bootImage struct {
	data    []byte
	release func() error
}

// openImage loads the dump at path. A path of "-" reads the dump from in.
// Regular files are mapped read-only where the platform allows it.
func openImage(path string, in io.Reader) (*bootImage, error) {
	if path == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("reading dump: %w", err)
		}
		return &bootImage{data: alignedCopy(data), release: func() error { return nil }}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%s: empty dump", path)
	}

	data, release, err := mapFile(f, int(st.Size()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logger.WithField("file", path).WithField("size", len(data)).Debug("loaded dump")
	return &bootImage{data: data, release: release}, nil
}

// alignedCopy copies data into 8-byte aligned memory as required by the
// multiboot2 structure.
func alignedCopy(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	backing := make([]uint64, (len(data)+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&backing[0])), len(data))
	copy(buf, data)
	return buf
}

// Info validates the dump.
func (img *bootImage) Info() (multiboot.Info, error) {
	info, err := multiboot.Parse(kernel.RegionFromBytes(img.data))
	if err != nil {
		return multiboot.Info{}, err
	}
	return info, nil
}

// Close releases the memory backing the dump.
func (img *bootImage) Close() error {
	return img.release()
}
