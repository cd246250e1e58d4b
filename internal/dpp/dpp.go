// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dpp describes and handles data in the CAEN DPP-PHA readout format.
//
// A readout buffer is a sequence of board aggregates. Each board aggregate
// holds a 4-words header followed by one aggregate per enabled channel pair:
//
//	board aggregate header:
//	  w0 [31:28] 0xA, [27:0] aggregate size (32-bit words, header included)
//	  w1 [31:27] board ID, [26] board fail, [7:0] channel-pair mask
//	  w2 [22:0]  board aggregate counter
//	  w3 [31:0]  board time tag
//	channel-pair aggregate header:
//	  w0 [31] 1, [30:0] aggregate size (32-bit words, header included)
//	  w1 [31] DT, [30] EE, [29] ET, [28] E2, [27] ES, [15:0] samples/8
//	event:
//	  w0 [31] odd channel of the pair, [30:0] trigger time tag
//	  waveform (ES): samples/2 words
//	  extras (E2): [31:16] extended time stamp, [15:0] fine time stamp
//	  energy (EE): [15] pile-up, [14:0] energy
//
// All words are little-endian.
package dpp // import "github.com/go-lpc/mca/internal/dpp"

const (
	boardMarker = 0xa
	pairMarker  = 1 << 31

	nBoardHdr = 4 // number of words in a board aggregate header
	nPairHdr  = 2 // number of words in a channel-pair aggregate header

	MaxPairs    = 8
	MaxChannels = 2 * MaxPairs
)

// format flags of a channel-pair aggregate.
const (
	fmtDT = 1 << 31 // dual trace
	fmtEE = 1 << 30 // energy enabled
	fmtET = 1 << 29 // time tag enabled
	fmtE2 = 1 << 28 // extras enabled
	fmtES = 1 << 27 // waveform samples enabled

	fmtSamples = 0xffff
)

const (
	ttMask      = 0x7fffffff
	energyMask  = 0x7fff
	pileUpFlag  = 1 << 15
	extTimeBits = 31
)

// Event is a single DPP event.
type Event struct {
	Channel uint8
	TimeTag uint64 // trigger time tag, extended with the extras word when present
	Energy  int32  // negative when the event is flagged as pile-up
	Fine    uint16 // fine time stamp, when extras are enabled
}

// PileUp returns whether the event was flagged as a pile-up.
func (evt Event) PileUp() bool { return evt.Energy < 0 }

// Aggregate is a board aggregate.
type Aggregate struct {
	BoardID   uint8
	BoardFail bool
	Counter   uint32
	TimeTag   uint32
	Events    []Event
}
