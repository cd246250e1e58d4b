// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// caen-dump decodes and displays raw files recorded by caen-srv.
//
// Usage: caen-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> caen-dump -evts ./run-001.raw
//	=== record 0 ===
//	=== aggregate: board=0x01 counter=1 time=0x0000002a events=3
//	  ch=00 ttag=         100 energy= 1234
//	  ch=00 ttag=         164 energy= pile-up
//	  ch=01 ttag=         120 energy=  812
//	[...]
//	=== summary ===
//	records:       12
//	aggregates:    12
//	ch=00 events=      103 pile-up=        2
//	ch=01 events=       99 pile-up=        1
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/mca/internal/dpp"
	"github.com/go-lpc/mca/internal/rawfile"
)

func main() {
	log.SetPrefix("caen-dump: ")
	log.SetFlags(0)

	evts := flag.Bool("evts", false, "display all events")

	flag.Usage = func() {
		fmt.Printf(`caen-dump decodes and displays raw files recorded by caen-srv.

Usage: caen-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> caen-dump -evts ./run-001.raw

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input raw file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *evts)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, evts bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		r      = rawfile.NewReader(f)
		nrecs  int
		naggs  int
		counts [256]struct{ n, pileup int }
	)

loop:
	for {
		raw, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not read record %d: %w", nrecs, err)
		}
		if evts {
			fmt.Fprintf(wbuf, "=== record %d ===\n", nrecs)
		}

		dec := dpp.NewDecoder(bytes.NewReader(raw))
		for {
			var agg dpp.Aggregate
			err := dec.Decode(&agg)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return fmt.Errorf("could not decode record %d: %w", nrecs, err)
			}
			naggs++

			if evts {
				fmt.Fprintf(wbuf, "=== aggregate: board=0x%02x counter=%d time=0x%08x events=%d\n",
					agg.BoardID, agg.Counter, agg.TimeTag, len(agg.Events),
				)
			}
			for _, evt := range agg.Events {
				c := &counts[evt.Channel]
				c.n++
				if evt.PileUp() {
					c.pileup++
				}
				if !evts {
					continue
				}
				switch {
				case evt.PileUp():
					fmt.Fprintf(wbuf, "  ch=%02d ttag=% 12d energy= pile-up\n", evt.Channel, evt.TimeTag)
				default:
					fmt.Fprintf(wbuf, "  ch=%02d ttag=% 12d energy=% 5d\n", evt.Channel, evt.TimeTag, evt.Energy)
				}
			}
		}
		nrecs++
	}

	fmt.Fprintf(wbuf, "=== summary ===\n")
	fmt.Fprintf(wbuf, "records:    % 5d\n", nrecs)
	fmt.Fprintf(wbuf, "aggregates: % 5d\n", naggs)
	for ch, c := range counts {
		if c.n == 0 {
			continue
		}
		fmt.Fprintf(wbuf, "ch=%02d events=% 9d pile-up=% 9d\n", ch, c.n, c.pileup)
	}

	return nil
}
