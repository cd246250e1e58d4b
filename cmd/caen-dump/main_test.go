// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/mca/internal/dpp"
	"github.com/go-lpc/mca/internal/rawfile"
)

func TestDump(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "run.raw")

	f, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := rawfile.NewWriter(f)
	for _, agg := range []dpp.Aggregate{
		{
			BoardID: 1, Counter: 1, TimeTag: 42,
			Events: []dpp.Event{
				{Channel: 0, TimeTag: 100, Energy: 1234},
				{Channel: 0, TimeTag: 164, Energy: -1},
				{Channel: 1, TimeTag: 120, Energy: 812},
			},
		},
		{
			BoardID: 1, Counter: 2, TimeTag: 43,
			Events: []dpp.Event{
				{Channel: 0, TimeTag: 300, Energy: 1000},
			},
		},
	} {
		agg := agg
		buf := new(bytes.Buffer)
		err = dpp.NewEncoder(buf).Encode(&agg)
		if err != nil {
			t.Fatalf("could not encode aggregate: %+v", err)
		}
		_, err = w.Write(buf.Bytes())
		if err != nil {
			t.Fatalf("could not write record: %+v", err)
		}
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("could not close raw file: %+v", err)
	}

	out := new(bytes.Buffer)
	err = process(out, fname, true)
	if err != nil {
		t.Fatalf("could not dump file: %+v", err)
	}

	for _, want := range []string{
		"=== record 1 ===\n",
		"=== aggregate: board=0x01 counter=2 time=0x0000002b events=1\n",
		"  ch=00 ttag=         164 energy= pile-up\n",
		"  ch=01 ttag=         120 energy=  812\n",
		"records:        2\n",
		"ch=00 events=        3 pile-up=        1\n",
		"ch=01 events=        1 pile-up=        0\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}

	out.Reset()
	err = process(out, fname, false)
	if err != nil {
		t.Fatalf("could not dump file: %+v", err)
	}
	if strings.Contains(out.String(), "ttag=") {
		t.Fatalf("events should not be displayed:\n%s", out.String())
	}

	err = process(out, fname+".nope", false)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
