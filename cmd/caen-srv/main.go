// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command caen-srv serves a CAEN digitizer over TCP.
//
// Usage: caen-srv [OPTIONS]
//
// Example:
//
//	$> caen-srv -addr=:8877 -dev=/dev/mem -base=0x32100000
//	$> caen-srv -sim -sim-chans=4 -rec=run-001.raw
//	$> caen-srv -replay=run-001.raw
//
// The server reads JSON requests {"name": "...", "args": {...}} and replies
// with {"msg": "ok", "data": ...}.
//
// When the digitizer gets disconnected, an alert mail is sent to the
// addresses listed in $MAIL_TGTS, using the $MAIL_USERNAME,
// $MAIL_PASSWORD, $MAIL_SERVER and $MAIL_PORT credentials.
package main // import "github.com/go-lpc/mca/cmd/caen-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/mca/caen"
	"github.com/go-lpc/mca/internal/alert"
)

type options struct {
	addr string

	dev  string
	base int64

	sim      bool
	simSeed  int64
	simRate  float64
	simChans int
	simBits  int

	replay string
	rec    string

	poll  time.Duration
	fails int
	mask  uint
	lvl   int
}

func main() {
	log.SetPrefix("caen-srv: ")
	log.SetFlags(0)

	var opts options
	flag.StringVar(&opts.addr, "addr", ":8877", "[ip]:port to listen on")
	flag.StringVar(&opts.dev, "dev", "/dev/mem", "path to the memory device of the VME bridge")
	flag.Int64Var(&opts.base, "base", 0x32100000, "base address of the digitizer registers")
	flag.BoolVar(&opts.sim, "sim", false, "serve a simulated digitizer")
	flag.Int64Var(&opts.simSeed, "sim-seed", 1234, "seed of the simulated digitizer")
	flag.Float64Var(&opts.simRate, "sim-rate", 100, "mean number of events per channel and readout")
	flag.IntVar(&opts.simChans, "sim-chans", 8, "number of channels of the simulated digitizer")
	flag.IntVar(&opts.simBits, "sim-bits", 14, "ADC resolution of the simulated digitizer")
	flag.StringVar(&opts.replay, "replay", "", "replay a recorded raw file")
	flag.StringVar(&opts.rec, "rec", "", "record raw buffers into file")
	flag.DurationVar(&opts.poll, "poll", 5*time.Millisecond, "polling period")
	flag.IntVar(&opts.fails, "max-fails", 5, "consecutive failures before disconnection")
	flag.UintVar(&opts.mask, "mask", 0, "mask of enabled channels (0: all)")
	flag.IntVar(&opts.lvl, "lvl", int(tlog.LvlInfo), "message level")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, opts)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, opts options) error {
	msg := tlog.NewMsgStream("caen-srv", tlog.Level(opts.lvl), os.Stdout)

	hw, err := open(opts)
	if err != nil {
		return fmt.Errorf("could not open digitizer: %w", err)
	}

	mailer := alert.FromEnv(msg)
	devopts := []caen.Option{
		caen.WithMsgStream(msg),
		caen.WithPollPeriod(opts.poll),
		caen.WithMaxFailures(opts.fails),
		caen.WithChannelMask(uint32(opts.mask)),
		caen.WithOnDisconnect(func(info caen.BoardInfo, err error) {
			err = mailer.Alert(
				fmt.Sprintf("board %d disconnected", info.Serial),
				fmt.Sprintf("model: %s\nserial: %d\naddr: %s\nerror: %+v\n",
					info.Model, info.Serial, opts.addr, err,
				),
			)
			if err != nil {
				log.Printf("could not send alert: %+v", err)
			}
		}),
	}

	if opts.rec != "" {
		f, err := os.Create(opts.rec)
		if err != nil {
			_ = hw.Close()
			return fmt.Errorf("could not create raw file: %w", err)
		}
		defer f.Close()
		devopts = append(devopts, caen.WithRecorder(f))
	}

	dev, err := caen.Open(hw, devopts...)
	if err != nil {
		_ = hw.Close()
		return fmt.Errorf("could not open device: %w", err)
	}
	defer dev.Close()

	info := dev.Info()
	log.Printf("serving %s digitizer (serial=%d, channels=%d, bins=%d) on %q...",
		info.Model, info.Serial, info.Channels, dev.Bins(), opts.addr,
	)

	err = caen.Serve(ctx, opts.addr, dev)
	if err != nil {
		return fmt.Errorf("could not serve device: %w", err)
	}

	st := dev.Stats()
	log.Printf("polls=%d events=%d bytes=%d read-errors=%d decode-errors=%d",
		st.Polls, st.Events, st.Bytes, st.ReadErrors, st.DecodeErrors,
	)

	err = dev.Close()
	if err != nil {
		return fmt.Errorf("could not close device: %w", err)
	}
	return nil
}

func open(opts options) (caen.Transport, error) {
	switch {
	case opts.replay != "":
		f, err := os.Open(opts.replay)
		if err != nil {
			return nil, fmt.Errorf("could not open raw file: %w", err)
		}
		rpl, err := caen.NewReplay(f, caen.BoardInfo{
			Model:    "replay",
			Channels: opts.simChans,
			ADCBits:  opts.simBits,
		})
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return rpl, nil

	case opts.sim:
		return caen.NewSimulator(
			caen.BoardInfo{
				Model:    "sim",
				Serial:   uint32(opts.simSeed),
				Channels: opts.simChans,
				ADCBits:  opts.simBits,
			},
			opts.simSeed, opts.simRate,
		)

	default:
		return caen.NewVME(opts.dev, opts.base)
	}
}
