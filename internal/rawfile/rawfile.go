// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawfile reads and writes recordings of raw digitizer readout buffers.
//
// A recording is a sequence of records:
//
//	'R' 'A' 'W' '\x00'  record marker
//	u32                  payload size (little-endian)
//	[size]byte           payload
//	u16                  CRC-16 of marker, size and payload (big-endian)
package rawfile // import "github.com/go-lpc/mca/internal/rawfile"

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-lpc/mca/internal/crc16"
	"golang.org/x/xerrors"
)

const (
	nHdr = 8 // 'RAW\0'+u32
	nCRC = 2

	// MaxRecordSize is the maximum payload size of a record.
	MaxRecordSize = 64 << 20
)

var magic = [4]byte{'R', 'A', 'W', 0}

// Writer writes raw buffers as CRC-protected records.
type Writer struct {
	w   io.Writer
	hdr [nHdr]byte
	crc crc16.Hash16
}

// NewWriter returns a new recording writer, writing to w.
func NewWriter(w io.Writer) *Writer {
	wrt := &Writer{w: w, crc: crc16.New(nil)}
	copy(wrt.hdr[:4], magic[:])
	return wrt
}

// Write writes p as a single record.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) > MaxRecordSize {
		return 0, xerrors.Errorf("rawfile: record too big (%d bytes)", len(p))
	}

	binary.LittleEndian.PutUint32(w.hdr[4:], uint32(len(p)))
	w.crc.Reset()
	_, _ = w.crc.Write(w.hdr[:])
	_, _ = w.crc.Write(p)

	_, err := w.w.Write(w.hdr[:])
	if err != nil {
		return 0, xerrors.Errorf("rawfile: could not write record header: %w", err)
	}

	n, err := w.w.Write(p)
	if err != nil {
		return n, xerrors.Errorf("rawfile: could not write record payload: %w", err)
	}

	var sum [nCRC]byte
	binary.BigEndian.PutUint16(sum[:], w.crc.Sum16())
	_, err = w.w.Write(sum[:])
	if err != nil {
		return n, xerrors.Errorf("rawfile: could not write record CRC-16: %w", err)
	}

	return n, nil
}

// Reader reads records written by a Writer.
type Reader struct {
	r   io.Reader
	hdr [nHdr]byte
	buf []byte
	crc crc16.Hash16
}

// NewReader returns a new recording reader, reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, crc: crc16.New(nil)}
}

// Next returns the payload of the next record.
// The returned slice is only valid until the next call to Next.
// Next returns io.EOF at the end of the recording.
func (r *Reader) Next() ([]byte, error) {
	_, err := io.ReadFull(r.r, r.hdr[:])
	switch {
	case err == nil:
		// ok.
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return nil, xerrors.Errorf("rawfile: could not read record header: %w", err)
	}

	if [4]byte{r.hdr[0], r.hdr[1], r.hdr[2], r.hdr[3]} != magic {
		return nil, xerrors.Errorf("rawfile: invalid record marker (got=%q)", r.hdr[:4])
	}

	size := binary.LittleEndian.Uint32(r.hdr[4:])
	if size > MaxRecordSize {
		return nil, xerrors.Errorf("rawfile: invalid record size %d", size)
	}
	if cap(r.buf) < int(size)+nCRC {
		r.buf = make([]byte, int(size)+nCRC)
	}
	r.buf = r.buf[:int(size)+nCRC]

	_, err = io.ReadFull(r.r, r.buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, xerrors.Errorf("rawfile: could not read record payload: %w", err)
	}

	p := r.buf[:size]
	r.crc.Reset()
	_, _ = r.crc.Write(r.hdr[:])
	_, _ = r.crc.Write(p)

	var (
		comp = r.crc.Sum16()
		recv = binary.BigEndian.Uint16(r.buf[size:])
	)
	if comp != recv {
		return nil, xerrors.Errorf("rawfile: inconsistent CRC: recv=0x%04x comp=0x%04x", recv, comp)
	}

	return p, nil
}
