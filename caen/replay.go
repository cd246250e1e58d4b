// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"errors"
	"io"

	"github.com/go-lpc/mca/caen/internal/regs"
	"github.com/go-lpc/mca/internal/rawfile"
)

// Replay is a digitizer replaying raw buffers recorded with WithRecorder.
//
// Each read of the raw buffer returns the next recorded buffer while the
// acquisition is running. Once the recording is exhausted, reads return
// empty buffers.
type Replay struct {
	info BoardInfo
	r    io.Reader
	rec  *rawfile.Reader
	eof  bool

	running bool
	regs    map[uint32]uint32
}

// NewReplay returns a digitizer replaying the recording read from r.
func NewReplay(r io.Reader, info BoardInfo) (*Replay, error) {
	err := info.validate()
	if err != nil {
		return nil, err
	}
	return &Replay{
		info: info,
		r:    r,
		rec:  rawfile.NewReader(r),
		regs: make(map[uint32]uint32),
	}, nil
}

// Done reports whether the whole recording has been replayed.
func (rpl *Replay) Done() bool { return rpl.eof }

func (rpl *Replay) Info() (BoardInfo, error) {
	return rpl.info, nil
}

func (rpl *Replay) Start() error {
	rpl.running = true
	return nil
}

func (rpl *Replay) Stop() error {
	rpl.running = false
	return nil
}

func (rpl *Replay) ReadRawBuffer() ([]byte, error) {
	if !rpl.running || rpl.eof {
		return nil, nil
	}

	raw, err := rpl.rec.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			rpl.eof = true
			return nil, nil
		}
		return nil, &Error{Op: "read-raw-buffer", Code: CommError, Err: err}
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (rpl *Replay) DecodeEvents(raw []byte) ([]Event, error) {
	return decodeDPP(raw)
}

func (rpl *Replay) ReadTemperature(ch int) (float64, error) {
	return 0, &Error{Op: "read-temperature", Code: FunctionNotAllowed}
}

func (rpl *Replay) ReadRegister(addr uint32) (uint32, error) {
	if addr >= regs.WindowSize {
		return 0, &Error{Op: "read-register", Code: ReadDeviceRegisterFail}
	}
	return rpl.regs[addr], nil
}

func (rpl *Replay) WriteRegister(addr, v uint32) error {
	if addr >= regs.WindowSize {
		return &Error{Op: "write-register", Code: WriteDeviceRegisterFail}
	}
	rpl.regs[addr] = v
	return nil
}

func (rpl *Replay) Close() error {
	rpl.running = false
	if c, ok := rpl.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ Transport = (*Replay)(nil)
)
