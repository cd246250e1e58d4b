// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of CAEN digitizers running
// the DPP-PHA firmware.
package regs // import "github.com/go-lpc/mca/caen/internal/regs"

// VME window
const (
	WindowSize = 0x10000

	ReadoutBuffer = 0x0000 // multi-event readout buffer
	ReadoutSpan   = 0x1000 // size of the readout buffer window
)

// per-channel registers, at 0x1n00 + offset.
const (
	ChanBase   = 0x1000
	ChanStride = 0x0100

	RecordLength     = 0x20
	PreTrigger       = 0x38
	InputRiseTime    = 0x58
	TrapRiseTime     = 0x5c
	TrapFlatTop      = 0x60
	PeakingTime      = 0x64
	DecayTime        = 0x68
	TriggerThreshold = 0x6c
	TriggerHoldOff   = 0x74
	DPPAlgoCtrl      = 0x80
	DCOffset         = 0x98
	ADCTemperature   = 0xa8 // [7:0] ADC temperature in Celsius
)

// board registers
const (
	BoardConfig       = 0x8000
	AcqControl        = 0x8100
	AcqStatus         = 0x8104
	SWTrigger         = 0x8108
	ChannelEnableMask = 0x8120
	ROCFirmware       = 0x8124
	BoardInfo         = 0x8140 // [7:0] family code, [15:8] memory, [23:16] number of channels
	EventSize         = 0x814c // number of 32-bit words of the next readout
	ReadoutControl    = 0xef00
	ReadoutStatus     = 0xef04
	BoardID           = 0xef08
	SWReset           = 0xef24
	SWClear           = 0xef28
	SerialMSB         = 0xf080 // configuration ROM, [7:0]
	SerialLSB         = 0xf084 // configuration ROM, [7:0]
)

// acquisition control/status bits
const (
	AcqRun        = 1 << 2 // AcqControl: start(1)/stop(0)
	AcqStatusRun  = 1 << 2 // AcqStatus: board is running
	AcqEventReady = 1 << 3 // AcqStatus: at least one event is available
	AcqPLLLock    = 1 << 7 // AcqStatus: PLL locked
)

// Chan returns the address of the per-channel register reg of channel ch.
func Chan(ch int, reg uint32) uint32 {
	return ChanBase + uint32(ch)*ChanStride + reg
}

// Family returns the model name and ADC resolution of a digitizer family,
// as reported by the BoardInfo register.
func Family(code uint8) (name string, bits int, ok bool) {
	f, ok := families[code]
	return f.name, f.bits, ok
}

var families = map[uint8]struct {
	name string
	bits int
}{
	0x00: {"x724", 14},
	0x01: {"x721", 8},
	0x02: {"x731", 10},
	0x03: {"x720", 12},
	0x04: {"x740", 12},
	0x05: {"x751", 10},
	0x06: {"x742", 12},
	0x07: {"x780", 14},
	0x08: {"x761", 10},
	0x0b: {"x781", 14},
	0x0c: {"x730", 14},
	0x0e: {"x725", 14},
}
