// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dpp

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// Encoder writes board aggregates to an output stream.
//
// Events are grouped by channel pair, keeping the relative order of
// the events of a given channel.
// Aggregates are written with energy, time tag and extras enabled and
// without waveforms.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the board aggregate to the stream.
func (enc *Encoder) Encode(agg *Aggregate) error {
	var pairs [MaxPairs][]Event
	for _, evt := range agg.Events {
		if int(evt.Channel) >= MaxChannels {
			return xerrors.Errorf("dpp: invalid channel %d", evt.Channel)
		}
		pair := evt.Channel / 2
		pairs[pair] = append(pairs[pair], evt)
	}

	const evtsz = 3 // time tag, extras, energy
	var (
		mask uint32
		size = nBoardHdr
	)
	for i, evts := range pairs {
		if len(evts) == 0 {
			continue
		}
		mask |= 1 << i
		size += nPairHdr + evtsz*len(evts)
	}
	if size > 0x0fffffff {
		return xerrors.Errorf("dpp: board aggregate too big (%d words)", size)
	}

	enc.buf = enc.buf[:0]
	enc.writeU32(boardMarker<<28 | uint32(size))
	w1 := uint32(agg.BoardID&0x1f)<<27 | mask
	if agg.BoardFail {
		w1 |= 1 << 26
	}
	enc.writeU32(w1)
	enc.writeU32(agg.Counter & 0x7fffff)
	enc.writeU32(agg.TimeTag)

	for _, evts := range pairs {
		if len(evts) == 0 {
			continue
		}
		enc.writeU32(pairMarker | uint32(nPairHdr+evtsz*len(evts)))
		enc.writeU32(fmtEE | fmtET | fmtE2)
		for _, evt := range evts {
			enc.writeU32(uint32(evt.Channel&1)<<31 | uint32(evt.TimeTag&ttMask))
			enc.writeU32(uint32(evt.TimeTag>>extTimeBits)<<16 | uint32(evt.Fine))
			switch {
			case evt.Energy < 0:
				enc.writeU32(pileUpFlag)
			default:
				enc.writeU32(uint32(evt.Energy) & energyMask)
			}
		}
	}

	_, err := enc.w.Write(enc.buf)
	if err != nil {
		return xerrors.Errorf("dpp: could not write board aggregate: %w", err)
	}
	return nil
}

func (enc *Encoder) writeU32(v uint32) {
	enc.buf = binary.LittleEndian.AppendUint32(enc.buf, v)
}
