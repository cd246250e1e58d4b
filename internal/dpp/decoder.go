// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dpp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/xerrors"
)

// Decoder reads board aggregates from an input stream.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 4),
	}
}

// Decode reads the next board aggregate from the stream.
// Decode returns io.EOF when the stream is exhausted.
func (dec *Decoder) Decode(agg *Aggregate) error {
	if dec.err != nil {
		return dec.err
	}

	w0 := dec.readU32()
	if dec.err != nil {
		if errors.Is(dec.err, io.EOF) {
			return dec.err
		}
		return xerrors.Errorf("dpp: could not read board aggregate header: %w", dec.err)
	}
	if w0>>28 != boardMarker {
		dec.err = xerrors.Errorf("dpp: invalid board aggregate marker (got=0x%x)", w0>>28)
		return dec.err
	}
	size := int(w0 & 0x0fffffff)
	if size < nBoardHdr {
		dec.err = xerrors.Errorf("dpp: invalid board aggregate size %d", size)
		return dec.err
	}

	var (
		w1 = dec.readU32()
		w2 = dec.readU32()
		w3 = dec.readU32()
	)
	if dec.err != nil {
		dec.err = xerrors.Errorf("dpp: could not read board aggregate header: %w", noEOF(dec.err))
		return dec.err
	}

	agg.BoardID = uint8(w1 >> 27)
	agg.BoardFail = (w1>>26)&1 == 1
	agg.Counter = w2 & 0x7fffff
	agg.TimeTag = w3
	agg.Events = agg.Events[:0]

	mask := uint8(w1 & 0xff)
	left := size - nBoardHdr
	for pair := 0; pair < MaxPairs; pair++ {
		if (mask>>pair)&1 == 0 {
			continue
		}
		n, err := dec.decodePair(agg, pair)
		if err != nil {
			dec.err = xerrors.Errorf("dpp: could not decode channel-pair %d aggregate: %w", pair, err)
			return dec.err
		}
		left -= n
		if left < 0 {
			dec.err = xerrors.Errorf("dpp: board aggregate overflow (size=%d)", size)
			return dec.err
		}
	}

	if left != 0 {
		dec.err = xerrors.Errorf("dpp: inconsistent board aggregate size (size=%d, left=%d)", size, left)
		return dec.err
	}

	return nil
}

func (dec *Decoder) decodePair(agg *Aggregate, pair int) (int, error) {
	w0 := dec.readU32()
	w1 := dec.readU32()
	if dec.err != nil {
		return 0, xerrors.Errorf("could not read header: %w", noEOF(dec.err))
	}
	if w0&pairMarker == 0 {
		return 0, xerrors.Errorf("invalid marker (got=0x%08x)", w0)
	}

	size := int(w0 &^ pairMarker)
	if size < nPairHdr {
		return 0, xerrors.Errorf("invalid size %d", size)
	}

	var (
		samples = 0
		evtsz   = 1
	)
	if w1&fmtES != 0 {
		samples = 8 * int(w1&fmtSamples)
		if w1&fmtDT != 0 {
			samples *= 2
		}
		evtsz += samples / 2
	}
	if w1&fmtE2 != 0 {
		evtsz++
	}
	if w1&fmtEE != 0 {
		evtsz++
	}

	body := size - nPairHdr
	if body%evtsz != 0 {
		return 0, xerrors.Errorf("size %d is not a multiple of the event size %d", body, evtsz)
	}

	for i := 0; i < body/evtsz; i++ {
		tt := dec.readU32()
		evt := Event{
			Channel: uint8(2*pair) + uint8(tt>>31),
			TimeTag: uint64(tt & ttMask),
		}
		for j := 0; j < samples/2; j++ {
			_ = dec.readU32()
		}
		if w1&fmtE2 != 0 {
			ext := dec.readU32()
			evt.TimeTag |= uint64(ext>>16) << extTimeBits
			evt.Fine = uint16(ext & 0xffff)
		}
		if w1&fmtEE != 0 {
			e := dec.readU32()
			switch {
			case e&pileUpFlag != 0:
				evt.Energy = -1
			default:
				evt.Energy = int32(e & energyMask)
			}
		}
		if dec.err != nil {
			return 0, xerrors.Errorf("could not read event %d: %w", i, noEOF(dec.err))
		}
		agg.Events = append(agg.Events, evt)
	}

	return size, nil
}

func (dec *Decoder) readU32() uint32 {
	if dec.err != nil {
		return 0
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:4])
	return binary.LittleEndian.Uint32(dec.buf[:4])
}

// Events decodes all the board aggregates held in raw and returns
// their events, in readout order.
func Events(raw []byte) ([]Event, error) {
	var (
		dec  = NewDecoder(bytes.NewReader(raw))
		agg  Aggregate
		evts []Event
	)
	for {
		err := dec.Decode(&agg)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return evts, nil
			}
			return evts, err
		}
		evts = append(evts, agg.Events...)
	}
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
