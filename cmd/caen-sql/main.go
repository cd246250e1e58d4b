// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command caen-sql inspects the condition database of the CAEN digitizers.
package main // import "github.com/go-lpc/mca/cmd/caen-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/mca/conddb"
)

func main() {
	log.SetPrefix("caen-sql: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "caendb", "name of the condition database")
		cfg    = flag.String("cfg", "", "configuration to inspect (default: last one)")
		serial = flag.Uint("serial", 0, "serial number of the digitizer to inspect (default: all)")
		host   = flag.String("host", "", "address of the database server")
		usr    = flag.String("usr", os.Getenv("CONDDB_USER"), "user name for the database")
		pwd    = flag.String("pwd", os.Getenv("CONDDB_PASSWORD"), "password for the database")
	)

	flag.Parse()

	var opts []conddb.Option
	if *host != "" {
		opts = append(opts, conddb.WithHost(*host))
	}
	if *usr != "" {
		opts = append(opts, conddb.WithCredentials(*usr, *pwd))
	}

	db, err := conddb.Open(*dbname, opts...)
	if err != nil {
		log.Fatalf("could not open condition db: %+v", err)
	}
	defer db.Close()

	err = doQuery(os.Stdout, db, *cfg, uint32(*serial))
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(w io.Writer, db *conddb.DB, cfg string, serial uint32) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg == "" {
		v, err := db.LastConfig(ctx)
		if err != nil {
			return fmt.Errorf("could not get last config: %w", err)
		}
		cfg = v
	}
	fmt.Fprintf(w, "config: %q\n", cfg)

	boards, err := db.Boards(ctx)
	if err != nil {
		return fmt.Errorf("could not get boards: %w", err)
	}

	for _, b := range boards {
		if serial != 0 && b.Serial != serial {
			continue
		}
		fmt.Fprintf(w, "=== board %d: model=%s serial=%d addr=%q\n",
			b.ID, b.Model, b.Serial, b.Addr,
		)

		chs, err := db.Channels(ctx, cfg, b.Serial)
		if err != nil {
			return fmt.Errorf("could not get channels cfg (cfg=%q, serial=%d): %w",
				cfg, b.Serial, err,
			)
		}
		for _, ch := range chs {
			if !ch.Enabled {
				fmt.Fprintf(w, "  ch=%02d disabled\n", ch.Channel)
				continue
			}
			fmt.Fprintf(w,
				"  ch=%02d thresh=%d rise=%d trap=(%d, %d) peak=%d decay=%d holdoff=%d offset=0x%04x presets=(%d, %v, %v)\n",
				ch.Channel, ch.Threshold, ch.InputRise,
				ch.TrapRise, ch.TrapFlat, ch.Peaking, ch.Decay,
				ch.HoldOff, ch.DCOffset,
				ch.PresetCounts, ch.RealTime(), ch.LiveTime(),
			)
		}
	}

	return nil
}
