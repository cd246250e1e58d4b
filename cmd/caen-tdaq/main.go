// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command caen-tdaq runs a CAEN digitizer as a TDAQ process.
//
// Usage: caen-tdaq [TDAQ-OPTIONS] DIGITIZER [CONDDB]
//
// DIGITIZER describes the hardware to drive:
//
//	vme:/dev/mem@0x32100000    digitizer mapped at the provided address
//	sim:8                      simulated 8-channels digitizer
//	replay:run-001.raw         replay of a recorded raw file
//
// CONDDB is the optional name of the condition database from which the
// channels configuration is loaded on /config.
//
// The process publishes the energy spectra of all the enabled channels on
// its "/spectra" output.
package main // import "github.com/go-lpc/mca/cmd/caen-tdaq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/mca/caen"
	"github.com/go-lpc/mca/conddb"
)

func main() {
	cmd := flags.New()
	if len(cmd.Args) < 1 {
		log.Fatalf("missing digitizer description")
	}

	hw, err := open(cmd.Args[0])
	if err != nil {
		log.Fatalf("could not open digitizer %q: %+v", cmd.Args[0], err)
	}

	dev, err := caen.Open(hw,
		caen.WithMsgStream(tlog.NewMsgStream("caen", cmd.Level, os.Stdout)),
	)
	if err != nil {
		_ = hw.Close()
		log.Fatalf("could not open device: %+v", err)
	}
	defer dev.Close()

	var db caen.ConfigDB
	if len(cmd.Args) > 1 {
		cdb, err := conddb.Open(cmd.Args[1], dbOptions()...)
		if err != nil {
			log.Fatalf("could not open condition db: %+v", err)
		}
		defer cdb.Close()
		db = cdb
	}

	proc := caen.NewProcess(dev, db, 1*time.Second)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", proc.OnConfig)
	srv.CmdHandle("/init", proc.OnInit)
	srv.CmdHandle("/reset", proc.OnReset)
	srv.CmdHandle("/start", proc.OnStart)
	srv.CmdHandle("/stop", proc.OnStop)
	srv.CmdHandle("/quit", proc.OnQuit)

	srv.OutputHandle("/spectra", proc.Spectra)

	srv.RunHandle(proc.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func open(uri string) (caen.Transport, error) {
	i := strings.Index(uri, ":")
	if i < 0 {
		return nil, fmt.Errorf("invalid digitizer description %q", uri)
	}
	kind, arg := uri[:i], uri[i+1:]

	switch kind {
	case "vme":
		j := strings.LastIndex(arg, "@")
		if j < 0 {
			return nil, fmt.Errorf("missing base address in %q", uri)
		}
		base, err := strconv.ParseInt(arg[j+1:], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid base address in %q: %w", uri, err)
		}
		return caen.NewVME(arg[:j], base)

	case "sim":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid number of channels in %q: %w", uri, err)
		}
		return caen.NewSimulator(caen.BoardInfo{
			Model:    "sim",
			Serial:   1,
			Channels: n,
			ADCBits:  14,
		}, 1234, 100)

	case "replay":
		f, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("could not open raw file: %w", err)
		}
		rpl, err := caen.NewReplay(f, caen.BoardInfo{
			Model:    "replay",
			Channels: caen.MaxChannels,
			ADCBits:  14,
		})
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return rpl, nil
	}

	return nil, fmt.Errorf("unknown digitizer kind %q", kind)
}

// dbOptions returns the condition database connection options set
// through the CONDDB_HOST, CONDDB_USER and CONDDB_PASSWORD environment
// variables.
func dbOptions() []conddb.Option {
	var opts []conddb.Option
	if v := os.Getenv("CONDDB_HOST"); v != "" {
		opts = append(opts, conddb.WithHost(v))
	}
	if v := os.Getenv("CONDDB_USER"); v != "" {
		opts = append(opts, conddb.WithCredentials(v, os.Getenv("CONDDB_PASSWORD")))
	}
	return opts
}
