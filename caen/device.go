// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/mca/caen/internal/regs"
	"github.com/go-lpc/mca/conddb"
	"github.com/go-lpc/mca/internal/rawfile"
	"go.uber.org/multierr"
)

// Stats holds counters about the background polling of a device.
type Stats struct {
	Polls        uint64 `json:"polls"`
	ReadErrors   uint64 `json:"read_errors"`
	DecodeErrors uint64 `json:"decode_errors"`
	Truncations  uint64 `json:"truncations"`
	Events       uint64 `json:"events"`
	Bytes        uint64 `json:"bytes"`
}

// Device is a CAEN digitizer operated as a multi-channel analyzer.
//
// All the methods of a Device are safe for concurrent use.
type Device struct {
	mu  sync.Mutex
	hw  Transport
	cfg config
	msg log.MsgStream
	rec *rawfile.Writer

	info  BoardInfo
	bins  int
	mask  uint64 // bin index mask
	chans []channel

	acquiring bool
	lastRead  time.Time // time of the last hardware read
	fails     int       // consecutive hardware failures
	discon    bool
	closed    bool
	stats     Stats

	wake chan struct{} // wakes up the poller
	quit chan struct{} // closed to stop the poller
	done chan struct{} // closed when the poller exits
}

// Open connects to the digitizer behind hw and starts its poller.
// The histograms are sized after the ADC resolution reported by hw.
func Open(hw Transport, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	info, err := hw.Info()
	if err != nil {
		return nil, fmt.Errorf("caen: could not retrieve board info: %w", err)
	}
	err = info.validate()
	if err != nil {
		return nil, err
	}

	all := uint32(1<<uint(info.Channels) - 1)
	mask := cfg.mask
	if mask == 0 {
		mask = all
	}
	if extra := mask &^ all; extra != 0 {
		cfg.msg.Warnf(
			"channel mask 0x%x has bits outside the %d channels of the board (ignored=0x%x)",
			mask, info.Channels, extra,
		)
		mask &= all
	}

	dev := &Device{
		hw:    hw,
		cfg:   cfg,
		msg:   cfg.msg,
		info:  info,
		bins:  1 << uint(info.ADCBits),
		chans: make([]channel, info.Channels),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	dev.mask = uint64(dev.bins - 1)
	for i := range dev.chans {
		dev.chans[i] = newChannel(dev.bins, (mask>>uint(i))&1 == 1)
	}
	if cfg.rec != nil {
		dev.rec = rawfile.NewWriter(cfg.rec)
	}

	dev.msg.Infof(
		"connected to %s (serial=%d, channels=%d, adc=%d bits, mask=0x%x)",
		info.Model, info.Serial, info.Channels, info.ADCBits, mask,
	)

	go dev.loop()
	return dev, nil
}

// Info returns the characteristics of the digitizer.
func (dev *Device) Info() BoardInfo {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.info
}

// Bins returns the number of bins of the histograms.
func (dev *Device) Bins() int {
	return dev.bins
}

// Close stops the poller, stops the acquisition if needed and closes
// the hardware transport.
func (dev *Device) Close() error {
	dev.mu.Lock()
	if dev.closed {
		dev.mu.Unlock()
		return nil
	}
	dev.closed = true
	close(dev.quit)
	dev.mu.Unlock()

	<-dev.done

	dev.mu.Lock()
	defer dev.mu.Unlock()

	var err error
	if dev.acquiring {
		dev.acquiring = false
		if e := dev.hw.Stop(); e != nil {
			err = multierr.Append(err, fmt.Errorf("caen: could not stop acquisition: %w", e))
		}
	}
	if e := dev.hw.Close(); e != nil {
		err = multierr.Append(err, fmt.Errorf("caen: could not close transport: %w", e))
	}
	return err
}

// usable reports whether the device can be operated.
func (dev *Device) usable() error {
	switch {
	case dev.closed:
		return ErrClosed
	case dev.discon:
		return ErrDisconnected
	}
	return nil
}

func (dev *Device) channel(ch int) (*channel, error) {
	if ch < 0 || ch >= len(dev.chans) {
		return nil, fmt.Errorf("caen: invalid channel %d (channels=%d)", ch, len(dev.chans))
	}
	return &dev.chans[ch], nil
}

// failed records a hardware failure and disconnects the device when too
// many of them happened in a row.
func (dev *Device) failed(err error) {
	dev.fails++
	if dev.cfg.maxFails <= 0 || dev.fails <= dev.cfg.maxFails || dev.discon {
		return
	}
	dev.discon = true
	dev.acquiring = false
	dev.msg.Errorf("device disconnected after %d consecutive failures: %+v", dev.fails, err)
	if f := dev.cfg.onDisconnect; f != nil {
		go f(dev.info, err)
	}
}

func (dev *Device) notify() {
	select {
	case dev.wake <- struct{}{}:
	default:
	}
}

// Start starts the acquisition.
// Start is a no-op if the device is already acquiring.
func (dev *Device) Start() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.start()
}

func (dev *Device) start() error {
	if err := dev.usable(); err != nil {
		return err
	}
	if dev.acquiring {
		return nil
	}

	err := dev.hw.Start()
	if err != nil {
		dev.msg.Errorf("could not start acquisition: %+v", err)
		dev.failed(err)
		return fmt.Errorf("caen: could not start acquisition: %w", err)
	}
	dev.fails = 0
	dev.acquiring = true

	now := dev.cfg.now()
	for i := range dev.chans {
		c := &dev.chans[i]
		if !c.enabled {
			continue
		}
		c.start = now
	}

	dev.notify()
	return nil
}

// Stop stops the acquisition.
// The hardware is always told to stop, even if the device is not
// acquiring.
func (dev *Device) Stop() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.stop()
}

func (dev *Device) stop() error {
	if err := dev.usable(); err != nil {
		return err
	}

	err := dev.hw.Stop()
	dev.acquiring = false
	if err != nil {
		dev.msg.Errorf("could not stop acquisition: %+v", err)
		dev.failed(err)
		return fmt.Errorf("caen: could not stop acquisition: %w", err)
	}
	dev.fails = 0
	return nil
}

// Acquiring reports whether the device is acquiring data.
func (dev *Device) Acquiring() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.acquiring
}

// Erase clears the histograms and counters of channel ch, and resets
// its acquisition start time.
// Erasing a disabled channel has no effect.
func (dev *Device) Erase(ch int) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.erase(ch)
}

func (dev *Device) erase(ch int) error {
	if err := dev.usable(); err != nil {
		return err
	}
	c, err := dev.channel(ch)
	if err != nil {
		return err
	}
	if !c.enabled {
		return nil
	}
	c.reset(dev.cfg.now())
	return nil
}

// EraseAll erases all the enabled channels.
func (dev *Device) EraseAll() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return err
	}
	now := dev.cfg.now()
	for i := range dev.chans {
		c := &dev.chans[i]
		if !c.enabled {
			continue
		}
		c.reset(now)
	}
	return nil
}

// Enabled reports whether channel ch is enabled.
func (dev *Device) Enabled(ch int) bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if ch < 0 || ch >= len(dev.chans) {
		return false
	}
	return dev.chans[ch].enabled
}

// ReadStatus returns the acquisition status of channel ch.
// ReadStatus stops the acquisition when one of the presets of ch has been
// reached.
func (dev *Device) ReadStatus(ch int) (Status, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return Status{}, err
	}
	c, err := dev.channel(ch)
	if err != nil {
		return Status{}, err
	}
	if !c.enabled {
		return Status{Acquiring: dev.acquiring}, nil
	}

	reached := dev.checkPresets(c)
	if reached && dev.acquiring {
		dev.msg.Infof("channel %d: preset reached, stopping acquisition", ch)
		err = dev.stop()
	}

	st := c.status(dev.acquiring, dev.lastRead)
	st.Reached = reached
	return st, err
}

func (dev *Device) checkPresets(c *channel) bool {
	return c.reached(dev.lastRead)
}

// SetPresets sets the acquisition presets of channel ch.
func (dev *Device) SetPresets(ch int, p Presets) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return err
	}
	c, err := dev.channel(ch)
	if err != nil {
		return err
	}
	c.presets = p
	return nil
}

// Presets returns the acquisition presets of channel ch.
func (dev *Device) Presets(ch int) (Presets, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return Presets{}, err
	}
	c, err := dev.channel(ch)
	if err != nil {
		return Presets{}, err
	}
	return c.presets, nil
}

// SetParam writes the value v of the DPP parameter p of channel ch.
func (dev *Device) SetParam(ch int, p Param, v uint32) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.setParam(ch, p, v)
}

func (dev *Device) setParam(ch int, p Param, v uint32) error {
	if err := dev.usable(); err != nil {
		return err
	}
	if _, err := dev.channel(ch); err != nil {
		return err
	}
	if !p.valid() {
		return fmt.Errorf("caen: invalid parameter %v", p)
	}
	return dev.writeReg(p.addr(ch), v)
}

func (dev *Device) writeReg(addr, v uint32) error {
	err := dev.hw.WriteRegister(addr, v)
	if err != nil {
		dev.msg.Errorf("could not write register 0x%04x: %+v", addr, err)
		dev.failed(err)
		return fmt.Errorf("caen: could not write register 0x%04x: %w", addr, err)
	}
	dev.fails = 0
	return nil
}

// Param reads the value of the DPP parameter p of channel ch.
func (dev *Device) Param(ch int, p Param) (uint32, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return 0, err
	}
	if _, err := dev.channel(ch); err != nil {
		return 0, err
	}
	if !p.valid() {
		return 0, fmt.Errorf("caen: invalid parameter %v", p)
	}
	v, err := dev.hw.ReadRegister(p.addr(ch))
	if err != nil {
		return 0, fmt.Errorf("caen: could not read %v of channel %d: %w", p, ch, err)
	}
	return v, nil
}

// Temperature returns the ADC temperature of channel ch, in Celsius.
func (dev *Device) Temperature(ch int) (float64, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return 0, err
	}
	if _, err := dev.channel(ch); err != nil {
		return 0, err
	}
	v, err := dev.hw.ReadTemperature(ch)
	if err != nil {
		return 0, fmt.Errorf("caen: could not read temperature of channel %d: %w", ch, err)
	}
	return v, nil
}

// Configure applies the provided channels configuration.
// Channels listed with Enabled=false are disabled, channels not listed
// are left untouched.
// Configure can not be used while acquiring.
func (dev *Device) Configure(cfgs []conddb.Channel) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return err
	}
	if dev.acquiring {
		return fmt.Errorf("caen: could not configure device while acquiring")
	}

	enabled := make([]bool, len(dev.chans))
	for i := range dev.chans {
		enabled[i] = dev.chans[i].enabled
	}
	for _, cfg := range cfgs {
		ch := int(cfg.Channel)
		if _, err := dev.channel(ch); err != nil {
			return fmt.Errorf("caen: could not configure channel: %w", err)
		}
		enabled[ch] = cfg.Enabled
	}

	var mask uint32
	for i, v := range enabled {
		if v {
			mask |= 1 << uint(i)
		}
	}
	err := dev.writeReg(regs.ChannelEnableMask, mask)
	if err != nil {
		return fmt.Errorf("caen: could not set channel mask: %w", err)
	}
	for i, v := range enabled {
		dev.chans[i].enabled = v
	}

	for _, cfg := range cfgs {
		ch := int(cfg.Channel)
		c := &dev.chans[ch]
		if !cfg.Enabled {
			continue
		}
		for _, v := range []struct {
			p Param
			v uint32
		}{
			{ParamThreshold, cfg.Threshold},
			{ParamInputRise, cfg.InputRise},
			{ParamTrapRise, cfg.TrapRise},
			{ParamTrapFlat, cfg.TrapFlat},
			{ParamPeaking, cfg.Peaking},
			{ParamDecay, cfg.Decay},
			{ParamHoldOff, cfg.HoldOff},
			{ParamDCOffset, cfg.DCOffset},
		} {
			err := dev.setParam(ch, v.p, v.v)
			if err != nil {
				return fmt.Errorf("caen: could not configure channel %d: %w", ch, err)
			}
		}
		c.presets = Presets{
			Counts: cfg.PresetCounts,
			Real:   cfg.RealTime(),
			Live:   cfg.LiveTime(),
		}
	}
	dev.msg.Infof("configured %d channels (mask=0x%x)", len(cfgs), mask)
	return nil
}

// Reconnect checks the digitizer is reachable again and clears the
// disconnected state of the device.
// Reconnect fails if the characteristics of the digitizer changed.
func (dev *Device) Reconnect() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.closed {
		return ErrClosed
	}

	info, err := dev.hw.Info()
	if err != nil {
		return fmt.Errorf("caen: could not retrieve board info: %w", err)
	}
	if info.ADCBits != dev.info.ADCBits || info.Channels != dev.info.Channels {
		return fmt.Errorf(
			"caen: board changed (channels=%d->%d, adc=%d->%d bits)",
			dev.info.Channels, info.Channels, dev.info.ADCBits, info.ADCBits,
		)
	}
	dev.info = info
	dev.fails = 0
	dev.discon = false
	dev.msg.Infof("reconnected to %s (serial=%d)", info.Model, info.Serial)
	return nil
}

// Stats returns the polling statistics of the device.
func (dev *Device) Stats() Stats {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.stats
}
