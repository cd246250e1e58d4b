// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dpp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func words(vs ...uint32) []byte {
	raw := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		raw = binary.LittleEndian.AppendUint32(raw, v)
	}
	return raw
}

func TestDecode(t *testing.T) {
	raw := words(
		0xa0000000|(4+6+8), // board header, size
		3<<27|0x3,          // board-id=3, pairs 0 and 1
		42,                 // counter
		0xcafe,             // board time tag
		// pair 0: energy + time tag
		pairMarker|(2+2*2),
		fmtEE|fmtET,
		0<<31|100, 1200,          // ch=0
		1<<31|150, pileUpFlag|33, // ch=1, pile-up
		// pair 1: energy + time tag + waveform (8 samples)
		pairMarker|(2+1+4+1),
		fmtEE|fmtET|fmtES|1,
		1<<31|7, 0, 0, 0, 0, 0x7fff, // ch=3
	)

	var agg Aggregate
	dec := NewDecoder(bytes.NewReader(raw))
	err := dec.Decode(&agg)
	if err != nil {
		t.Fatalf("could not decode aggregate: %+v", err)
	}

	want := Aggregate{
		BoardID: 3,
		Counter: 42,
		TimeTag: 0xcafe,
		Events: []Event{
			{Channel: 0, TimeTag: 100, Energy: 1200},
			{Channel: 1, TimeTag: 150, Energy: -1},
			{Channel: 3, TimeTag: 7, Energy: 0x7fff},
		},
	}
	if !reflect.DeepEqual(agg, want) {
		t.Fatalf("invalid aggregate:\ngot= %+v\nwant=%+v", agg, want)
	}

	if !agg.Events[1].PileUp() {
		t.Fatalf("event should be flagged as pile-up")
	}

	err = dec.Decode(&agg)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid end of stream error: %+v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "invalid-marker",
			raw:  words(0xb0000004, 0, 0, 0),
			want: "dpp: invalid board aggregate marker (got=0xb)",
		},
		{
			name: "invalid-size",
			raw:  words(0xa0000002, 0, 0, 0),
			want: "dpp: invalid board aggregate size 2",
		},
		{
			name: "short-header",
			raw:  words(0xa0000004, 0),
			want: "dpp: could not read board aggregate header: unexpected EOF",
		},
		{
			name: "invalid-pair-marker",
			raw:  words(0xa0000006, 1, 0, 0, 2, fmtEE),
			want: "dpp: could not decode channel-pair 0 aggregate: invalid marker (got=0x00000002)",
		},
		{
			name: "invalid-pair-size",
			raw:  words(0xa0000007, 1, 0, 0, pairMarker|3, fmtEE|fmtET, 0),
			want: "dpp: could not decode channel-pair 0 aggregate: size 1 is not a multiple of the event size 2",
		},
		{
			name: "short-event",
			raw:  words(0xa0000008, 1, 0, 0, pairMarker|4, fmtEE|fmtET, 0),
			want: "dpp: could not decode channel-pair 0 aggregate: could not read event 0: unexpected EOF",
		},
		{
			name: "inconsistent-size",
			raw:  words(0xa0000009, 1, 0, 0, pairMarker|4, fmtEE|fmtET, 0, 1),
			want: "dpp: inconsistent board aggregate size (size=9, left=1)",
		},
		{
			name: "overflow",
			raw:  words(0xa0000005, 1, 0, 0, pairMarker|4, fmtEE|fmtET, 0, 1),
			want: "dpp: board aggregate overflow (size=5)",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var agg Aggregate
			err := NewDecoder(bytes.NewReader(tc.raw)).Decode(&agg)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	aggs := []Aggregate{
		{
			BoardID: 1,
			Counter: 1,
			TimeTag: 0x1234,
			Events: []Event{
				{Channel: 0, TimeTag: 10, Energy: 100},
				{Channel: 5, TimeTag: 11, Energy: -1},
				{Channel: 0, TimeTag: 1<<31 | 12, Energy: 4200, Fine: 3},
				{Channel: 4, TimeTag: 13, Energy: 0},
			},
		},
		{
			BoardID:   1,
			BoardFail: true,
			Counter:   2,
		},
	}

	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	for i := range aggs {
		err := enc.Encode(&aggs[i])
		if err != nil {
			t.Fatalf("could not encode aggregate %d: %+v", i, err)
		}
	}

	evts, err := Events(buf.Bytes())
	if err != nil {
		t.Fatalf("could not decode events: %+v", err)
	}

	// events are regrouped per channel pair.
	want := []Event{
		{Channel: 0, TimeTag: 10, Energy: 100},
		{Channel: 0, TimeTag: 1<<31 | 12, Energy: 4200, Fine: 3},
		{Channel: 5, TimeTag: 11, Energy: -1},
		{Channel: 4, TimeTag: 13, Energy: 0},
	}
	if !reflect.DeepEqual(evts, want) {
		t.Fatalf("invalid events:\ngot= %+v\nwant=%+v", evts, want)
	}
}

func TestEncodeInvalidChannel(t *testing.T) {
	err := NewEncoder(io.Discard).Encode(&Aggregate{
		Events: []Event{{Channel: MaxChannels}},
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
