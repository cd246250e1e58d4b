// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides a memory-mapped window onto a device file,
// such as the A32 window of a VME bridge or /dev/mem.
package mmap // import "github.com/go-lpc/mca/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Handle is a read/write memory-mapped window.
type Handle struct {
	f    *os.File
	data []byte
	mmap bool // whether data has been obtained from unix.Mmap
}

// Open memory-maps size bytes of the named file, starting at offset off.
// The offset must be a multiple of the system page size.
func Open(fname string, off int64, size int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid window size %d", size)
	}
	if off%int64(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("mmap: offset 0x%x is not page aligned", off)
	}

	f, err := os.OpenFile(fname, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not open %q: %w", fname, err)
	}

	data, err := unix.Mmap(
		int(f.Fd()), off, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: could not mmap %q (off=0x%x, size=0x%x): %w",
			fname, off, size, err,
		)
	}

	h := &Handle{f: f, data: data, mmap: true}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// HandleFrom wraps an in-memory buffer.
func HandleFrom(data []byte) *Handle {
	return &Handle{data: data}
}

// Close closes the mmap handle.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)

	var err error
	if h.mmap {
		err = unix.Munmap(data)
	}
	if h.f != nil {
		if e := h.f.Close(); e != nil && err == nil {
			err = e
		}
		h.f = nil
	}
	return err
}

// Len returns the length of the underlying memory-mapped file.
func (h *Handle) Len() int {
	return len(h.data)
}

// At returns the byte at index i.
func (h *Handle) At(i int) byte {
	return h.data[i]
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
