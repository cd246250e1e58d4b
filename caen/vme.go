// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-lpc/mca/caen/internal/regs"
	"github.com/go-lpc/mca/internal/dpp"
	"github.com/go-lpc/mca/internal/mmap"
	"go.uber.org/multierr"
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// VME is a digitizer accessed through a memory-mapped VME window.
type VME struct {
	rw    rwer
	close []io.Closer

	nchans int
	buf    []byte
	err    error
}

// NewVME maps the register window of the digitizer at the base address
// base of the devmem device file.
func NewVME(devmem string, base int64) (*VME, error) {
	mem, err := mmap.Open(devmem, base, regs.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("caen: could not map VME window 0x%x of %q: %w", base, devmem, err)
	}
	return newVME(mem, mem), nil
}

func newVME(rw rwer, closers ...io.Closer) *VME {
	return &VME{
		rw:    rw,
		close: closers,
		buf:   make([]byte, 4),
	}
}

func (vme *VME) readU32(addr uint32) uint32 {
	if vme.err != nil {
		return 0
	}
	_, vme.err = vme.rw.ReadAt(vme.buf[:4], int64(addr))
	if vme.err != nil {
		vme.err = fmt.Errorf("could not read register 0x%04x: %w", addr, vme.err)
		return 0
	}
	return binary.LittleEndian.Uint32(vme.buf[:4])
}

func (vme *VME) writeU32(addr, v uint32) {
	if vme.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(vme.buf[:4], v)
	_, vme.err = vme.rw.WriteAt(vme.buf[:4], int64(addr))
	if vme.err != nil {
		vme.err = fmt.Errorf("could not write register 0x%04x: %w", addr, vme.err)
	}
}

// flush returns the accumulated I/O error as a transport error,
// and resets it.
func (vme *VME) flush(op string, code ErrCode) error {
	err := vme.err
	vme.err = nil
	if err == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Err: err}
}

func (vme *VME) Info() (BoardInfo, error) {
	var (
		v   = vme.readU32(regs.BoardInfo)
		msb = vme.readU32(regs.SerialMSB)
		lsb = vme.readU32(regs.SerialLSB)
	)
	if err := vme.flush("info", CommError); err != nil {
		return BoardInfo{}, err
	}

	name, bits, ok := regs.Family(uint8(v & 0xff))
	if !ok {
		return BoardInfo{}, &Error{
			Op:   "info",
			Code: BadBoardType,
			Err:  fmt.Errorf("unknown digitizer family 0x%02x", v&0xff),
		}
	}

	vme.nchans = int((v >> 16) & 0xff)
	return BoardInfo{
		Model:    name,
		Serial:   (msb&0xff)<<8 | lsb&0xff,
		Channels: vme.nchans,
		ADCBits:  bits,
	}, nil
}

func (vme *VME) Start() error {
	v := vme.readU32(regs.AcqControl)
	vme.writeU32(regs.AcqControl, v|regs.AcqRun)
	return vme.flush("start", CommError)
}

func (vme *VME) Stop() error {
	v := vme.readU32(regs.AcqControl)
	vme.writeU32(regs.AcqControl, v&^regs.AcqRun)
	return vme.flush("stop", CommError)
}

// ReadRawBuffer reads the readout buffer, as announced by the
// event size register.
func (vme *VME) ReadRawBuffer() ([]byte, error) {
	n := int(vme.readU32(regs.EventSize)) * 4
	if err := vme.flush("read-raw-buffer", CommError); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	raw := make([]byte, n)
	for beg := 0; beg < n; beg += regs.ReadoutSpan {
		end := beg + regs.ReadoutSpan
		if end > n {
			end = n
		}
		_, err := vme.rw.ReadAt(raw[beg:end], int64(regs.ReadoutBuffer+beg%regs.ReadoutSpan))
		if err != nil {
			return nil, &Error{
				Op:   "read-raw-buffer",
				Code: CommError,
				Err:  fmt.Errorf("could not read block [%d:%d]: %w", beg, end, err),
			}
		}
	}
	return raw, nil
}

func (vme *VME) DecodeEvents(raw []byte) ([]Event, error) {
	return decodeDPP(raw)
}

func (vme *VME) ReadTemperature(ch int) (float64, error) {
	if vme.nchans > 0 && (ch < 0 || ch >= vme.nchans) {
		return 0, &Error{Op: "read-temperature", Code: InvalidChannelNumber}
	}
	v := vme.readU32(regs.Chan(ch, regs.ADCTemperature))
	if err := vme.flush("read-temperature", ReadDeviceRegisterFail); err != nil {
		return 0, err
	}
	return float64(v & 0xff), nil
}

func (vme *VME) ReadRegister(addr uint32) (uint32, error) {
	v := vme.readU32(addr)
	return v, vme.flush("read-register", ReadDeviceRegisterFail)
}

func (vme *VME) WriteRegister(addr, v uint32) error {
	vme.writeU32(addr, v)
	return vme.flush("write-register", WriteDeviceRegisterFail)
}

func (vme *VME) Close() error {
	var err error
	for _, c := range vme.close {
		err = multierr.Append(err, c.Close())
	}
	vme.close = nil
	return err
}

// decodeDPP decodes a DPP-PHA readout buffer.
func decodeDPP(raw []byte) ([]Event, error) {
	evts, err := dpp.Events(raw)
	if err != nil {
		return nil, &Error{Op: "decode-events", Code: InvalidEvent, Err: err}
	}
	out := make([]Event, len(evts))
	for i, evt := range evts {
		out[i] = Event{
			Channel:   int(evt.Channel),
			Timestamp: evt.TimeTag,
			Energy:    evt.Energy,
		}
	}
	return out, nil
}

var (
	_ Transport = (*VME)(nil)
)
