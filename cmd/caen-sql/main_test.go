// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"testing"

	"github.com/go-lpc/mca/conddb"
	"github.com/go-lpc/mca/internal/fakedb"
)

var (
	lastConfig = fakedb.Rows{
		Names:  []string{"name"},
		Values: [][]driver.Value{{"LPC2021_MCA_3"}},
	}
	boards = fakedb.Rows{
		Names: []string{"identifier", "serial", "model", "addr"},
		Values: [][]driver.Value{
			{uint32(1), uint32(291), "x725", "vme-01:8877"},
			{uint32(2), uint32(292), "x730", "vme-02:8877"},
		},
	}
)

func channels(rows ...[]driver.Value) fakedb.Rows {
	return fakedb.Rows{
		Names: []string{
			"identifier", "serial", "channel", "enabled",
			"threshold", "input_rise",
			"trap_rise", "trap_flat", "peaking", "decay",
			"holdoff", "dc_offset",
			"preset_counts", "preset_real", "preset_live",
		},
		Values: rows,
	}
}

func TestQuery(t *testing.T) {
	db, err := conddb.Open("caendb", conddb.WithDriver("fakedb"))
	if err != nil {
		t.Fatalf("could not open db: %+v", err)
	}
	defer db.Close()

	ch0 := []driver.Value{
		int32(10), uint32(291), uint8(0), true,
		uint32(100), uint32(2),
		uint32(5), uint32(1), uint32(3), uint32(50),
		uint32(8), uint32(0x8000),
		uint64(100000), 60.0, 0.0,
	}
	ch1 := []driver.Value{
		int32(11), uint32(291), uint8(1), false,
		uint32(0), uint32(0),
		uint32(0), uint32(0), uint32(0), uint32(0),
		uint32(0), uint32(0),
		uint64(0), 0.0, 0.0,
	}
	ch3 := []driver.Value{
		int32(20), uint32(292), uint8(3), true,
		uint32(200), uint32(1),
		uint32(4), uint32(2), uint32(2), uint32(40),
		uint32(6), uint32(0x1000),
		uint64(0), 0.0, 2.5,
	}

	for _, tc := range []struct {
		name   string
		cfg    string
		serial uint32
		rows   []fakedb.Rows
		want   string
	}{
		{
			name: "last-config",
			rows: []fakedb.Rows{lastConfig, boards, channels(ch0, ch1), channels(ch3)},
			want: `config: "LPC2021_MCA_3"
=== board 1: model=x725 serial=291 addr="vme-01:8877"
  ch=00 thresh=100 rise=2 trap=(5, 1) peak=3 decay=50 holdoff=8 offset=0x8000 presets=(100000, 1m0s, 0s)
  ch=01 disabled
=== board 2: model=x730 serial=292 addr="vme-02:8877"
  ch=03 thresh=200 rise=1 trap=(4, 2) peak=2 decay=40 holdoff=6 offset=0x1000 presets=(0, 0s, 2.5s)
`,
		},
		{
			name:   "one-board",
			cfg:    "LPC2021_MCA_1",
			serial: 292,
			rows:   []fakedb.Rows{boards, channels(ch3)},
			want: `config: "LPC2021_MCA_1"
=== board 2: model=x730 serial=292 addr="vme-02:8877"
  ch=03 thresh=200 rise=1 trap=(4, 2) peak=2 decay=40 holdoff=6 offset=0x1000 presets=(0, 0s, 2.5s)
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out := new(strings.Builder)
			err := fakedb.RunSeq(context.Background(), tc.rows, func(ctx context.Context) error {
				return doQuery(out, db, tc.cfg, tc.serial)
			})
			if err != nil {
				t.Fatalf("could not run query: %+v", err)
			}
			if got, want := out.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

func TestQueryError(t *testing.T) {
	db, err := conddb.Open("caendb", conddb.WithDriver("fakedb"))
	if err != nil {
		t.Fatalf("could not open db: %+v", err)
	}
	defer db.Close()

	err = fakedb.Fail(context.Background(), fmt.Errorf("boom"), func(ctx context.Context) error {
		return doQuery(new(strings.Builder), db, "", 0)
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "could not get last config: "; !strings.HasPrefix(got, want) {
		t.Fatalf("invalid error: got=%q, want prefix %q", got, want)
	}
}
