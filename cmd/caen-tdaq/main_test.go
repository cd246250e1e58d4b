// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/mca/caen"
)

func TestOpen(t *testing.T) {
	raw := filepath.Join(t.TempDir(), "run.raw")
	err := os.WriteFile(raw, nil, 0644)
	if err != nil {
		t.Fatalf("could not create raw file: %+v", err)
	}

	for _, tc := range []struct {
		uri  string
		want caen.BoardInfo
		err  string
	}{
		{
			uri:  "sim:4",
			want: caen.BoardInfo{Model: "sim", Serial: 1, Channels: 4, ADCBits: 14},
		},
		{
			uri:  "replay:" + raw,
			want: caen.BoardInfo{Model: "replay", Channels: caen.MaxChannels, ADCBits: 14},
		},
		{uri: "sim", err: `invalid digitizer description "sim"`},
		{uri: "sim:x", err: `invalid number of channels in "sim:x"`},
		{uri: "sim:64", err: "caen: invalid number of channels 64"},
		{uri: "vme:/dev/mem", err: `missing base address in "vme:/dev/mem"`},
		{uri: "vme:/dev/mem@xyz", err: `invalid base address in "vme:/dev/mem@xyz"`},
		{uri: "replay:" + raw + ".nope", err: "could not open raw file"},
		{uri: "usb:0", err: `unknown digitizer kind "usb"`},
	} {
		t.Run(tc.uri, func(t *testing.T) {
			hw, err := open(tc.uri)
			if tc.err != "" {
				if err == nil {
					_ = hw.Close()
					t.Fatalf("expected an error")
				}
				if !strings.HasPrefix(err.Error(), tc.err) {
					t.Fatalf("invalid error:\ngot= %q\nwant=%q", err.Error(), tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("could not open %q: %+v", tc.uri, err)
			}
			defer hw.Close()

			info, err := hw.Info()
			if err != nil {
				t.Fatalf("could not get board info: %+v", err)
			}
			if info != tc.want {
				t.Fatalf("invalid board info:\ngot= %+v\nwant=%+v", info, tc.want)
			}
		})
	}
}

func TestDBOptions(t *testing.T) {
	t.Setenv("CONDDB_HOST", "")
	t.Setenv("CONDDB_USER", "")
	if got := len(dbOptions()); got != 0 {
		t.Fatalf("invalid number of options: got=%d, want=0", got)
	}

	t.Setenv("CONDDB_HOST", "db:3306")
	t.Setenv("CONDDB_USER", "daq")
	t.Setenv("CONDDB_PASSWORD", "pass")
	if got := len(dbOptions()); got != 2 {
		t.Fatalf("invalid number of options: got=%d, want=2", got)
	}
}
