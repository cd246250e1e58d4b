// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/mca/conddb"
)

// ConfigDB provides the channels configuration of digitizers.
type ConfigDB interface {
	LastConfig(ctx context.Context) (string, error)
	Channels(ctx context.Context, cfg string, serial uint32) ([]conddb.Channel, error)
}

var _ ConfigDB = (*conddb.DB)(nil)

// Process runs a device as a TDAQ process.
//
// While running, the process periodically reads the status of every
// enabled channel, which stops the acquisition once a preset is reached,
// and publishes snapshots of the energy spectra on its output.
type Process struct {
	dev *Device
	db  ConfigDB // optional

	period  time.Duration
	spectra chan []byte
}

// NewProcess returns a TDAQ process driving dev.
// db may be nil, in which case /config leaves the device configuration
// untouched.
func NewProcess(dev *Device, db ConfigDB, period time.Duration) *Process {
	if period <= 0 {
		period = time.Second
	}
	return &Process{
		dev:     dev,
		db:      db,
		period:  period,
		spectra: make(chan []byte, 16),
	}
}

// OnConfig loads the channels configuration from the condition database.
// The request body may hold the name of the configuration, the last
// configuration is used otherwise.
func (proc *Process) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	if proc.db == nil {
		return nil
	}

	var name string
	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		name = dec.ReadStr()
	}

	if name == "" {
		var err error
		name, err = proc.db.LastConfig(ctx.Ctx)
		if err != nil {
			ctx.Msg.Errorf("could not retrieve last configuration: %+v", err)
			return fmt.Errorf("could not retrieve last configuration: %w", err)
		}
	}

	info := proc.dev.Info()
	cfgs, err := proc.db.Channels(ctx.Ctx, name, info.Serial)
	if err != nil {
		ctx.Msg.Errorf("could not retrieve configuration %q: %+v", name, err)
		return fmt.Errorf("could not retrieve configuration %q for board %d: %w", name, info.Serial, err)
	}

	err = proc.dev.Configure(cfgs)
	if err != nil {
		ctx.Msg.Errorf("could not configure device: %+v", err)
		return fmt.Errorf("could not configure device with %q: %w", name, err)
	}
	ctx.Msg.Infof("configured board %d with %q", info.Serial, name)
	return nil
}

func (proc *Process) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := proc.dev.EraseAll()
	if err != nil {
		return fmt.Errorf("could not erase device: %w", err)
	}
	return nil
}

func (proc *Process) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := proc.dev.Stop()
	if err != nil {
		return fmt.Errorf("could not stop device: %w", err)
	}
	err = proc.dev.EraseAll()
	if err != nil {
		return fmt.Errorf("could not erase device: %w", err)
	}
	return nil
}

func (proc *Process) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	err := proc.dev.Start()
	if err != nil {
		return fmt.Errorf("could not start device: %w", err)
	}
	return nil
}

func (proc *Process) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	err := proc.dev.Stop()
	if err != nil {
		return fmt.Errorf("could not stop device: %w", err)
	}
	return nil
}

func (proc *Process) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if !proc.dev.Acquiring() {
		return nil
	}
	err := proc.dev.Stop()
	if err != nil {
		return fmt.Errorf("could not stop device: %w", err)
	}
	return nil
}

// Spectra publishes the snapshots of the energy spectra.
func (proc *Process) Spectra(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-proc.spectra:
		dst.Body = data
	}
	return nil
}

// Run checks the presets of the enabled channels and takes snapshots of
// their spectra, until ctx is done.
func (proc *Process) Run(ctx tdaq.Context) error {
	tick := time.NewTicker(proc.period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tick.C:
			raw, err := proc.snapshot()
			if err != nil {
				ctx.Msg.Errorf("could not take spectra snapshot: %+v", err)
				continue
			}
			select {
			case proc.spectra <- raw:
			default:
				ctx.Msg.Warnf("spectra output full, dropping snapshot")
			}
		}
	}
}

// snapshot reads the status and energy spectrum of every enabled channel
// and encodes them as:
//
//	u32 serial
//	u32 number of channels
//	per channel:
//	  u32 channel, u64 triggers, u64 valid, u64 pile-up
//	  u32 number of bins, [n]u32 bins
func (proc *Process) snapshot() ([]byte, error) {
	var (
		info = proc.dev.Info()
		chs  []int
		sts  []Status
		hs   [][]uint32
	)
	for ch := 0; ch < info.Channels; ch++ {
		if !proc.dev.Enabled(ch) {
			continue
		}
		st, err := proc.dev.ReadStatus(ch)
		if err != nil {
			return nil, fmt.Errorf("could not read status of channel %d: %w", ch, err)
		}
		h := make([]uint32, proc.dev.Bins())
		n, err := proc.dev.ReadEnergyHistogram(ch, h)
		if err != nil {
			return nil, fmt.Errorf("could not read spectrum of channel %d: %w", ch, err)
		}
		chs = append(chs, ch)
		sts = append(sts, st)
		hs = append(hs, h[:n])
	}

	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(info.Serial)
	enc.WriteU32(uint32(len(chs)))
	for i, ch := range chs {
		enc.WriteU32(uint32(ch))
		enc.WriteU64(sts[i].Triggers)
		enc.WriteU64(sts[i].Valid)
		enc.WriteU64(sts[i].PileUp)
		enc.WriteU32(uint32(len(hs[i])))
		for _, v := range hs[i] {
			enc.WriteU32(v)
		}
	}
	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("could not encode spectra: %w", err)
	}
	return buf.Bytes(), nil
}
