// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package caen runs CAEN DPP digitizers as multi-channel analyzers.
//
// A Device owns the acquisition state of one digitizer.
// Callers start, stop and erase the acquisition, read the status of a
// channel (which also evaluates its presets) and read its energy and
// timing spectra.
// A background poller, one per device, reads the raw DPP buffers from the
// hardware while the device is acquiring and accumulates them into per-channel
// histograms.
//
// The hardware is accessed through the Transport interface.
package caen // import "github.com/go-lpc/mca/caen"

import (
	"errors"
	"fmt"
)

// MaxChannels is the maximum number of channels of a digitizer.
const MaxChannels = 16

var (
	// ErrDisconnected is returned by operations on a device that has been
	// disconnected after too many consecutive hardware failures.
	ErrDisconnected = errors.New("caen: device disconnected")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("caen: device closed")
)

// Event is a DPP event, as decoded from a raw readout buffer.
type Event struct {
	Channel   int
	Timestamp uint64 // hardware trigger time tag
	Energy    int32  // negative or invalid energies flag a pile-up
}

// BoardInfo describes a digitizer.
type BoardInfo struct {
	Model    string
	Serial   uint32
	Channels int // number of input channels
	ADCBits  int // ADC resolution, in bits
}

func (info BoardInfo) validate() error {
	switch {
	case info.Channels <= 0 || info.Channels > MaxChannels:
		return fmt.Errorf("caen: invalid number of channels %d", info.Channels)
	case info.ADCBits <= 0 || info.ADCBits > 16:
		return fmt.Errorf("caen: invalid ADC resolution %d", info.ADCBits)
	}
	return nil
}

// Transport is the hardware interface of a digitizer.
//
// Failures of the vendor layer are reported as errors wrapping an *Error.
type Transport interface {
	// Info reports the digitizer characteristics.
	Info() (BoardInfo, error)

	// Start starts the acquisition.
	Start() error
	// Stop stops the acquisition.
	Stop() error

	// ReadRawBuffer reads the data acquired since the last read.
	ReadRawBuffer() ([]byte, error)
	// DecodeEvents decodes a raw buffer into DPP events,
	// in the order the hardware returned them.
	DecodeEvents(raw []byte) ([]Event, error)

	// ReadTemperature reads the ADC temperature of a channel, in Celsius.
	ReadTemperature(ch int) (float64, error)

	ReadRegister(addr uint32) (uint32, error)
	WriteRegister(addr, v uint32) error

	Close() error
}

// Error is a hardware transport error.
type Error struct {
	Op   string
	Code ErrCode
	Err  error // underlying error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("caen: %s: %v (code=%d): %+v", e.Op, e.Code, int(e.Code), e.Err)
	}
	return fmt.Sprintf("caen: %s: %v (code=%d)", e.Op, e.Code, int(e.Code))
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Op == "" || t.Op == e.Op)
}

// errorf wraps a vendor error code into an error.
// errorf returns nil for a successful code.
func errorf(op string, code ErrCode) error {
	if code == Success {
		return nil
	}
	return &Error{Op: op, Code: code}
}
