// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import "time"

// Presets holds the acquisition presets of a channel.
// A zero value disables the corresponding preset.
type Presets struct {
	Counts uint64        `json:"counts"`
	Real   time.Duration `json:"real"`
	Live   time.Duration `json:"live"`
}

// Status is the acquisition status of a channel.
type Status struct {
	Acquiring bool          `json:"acquiring"`
	Real      time.Duration `json:"real"`
	Live      time.Duration `json:"live"`
	Triggers  uint64        `json:"triggers"`
	Valid     uint64        `json:"valid"`
	PileUp    uint64        `json:"pileup"`
	Rollovers uint64        `json:"rollovers"`
	Reached   bool          `json:"reached"` // whether a preset was reached
}

type channel struct {
	enabled bool

	energy []uint32
	timing []uint32

	triggers uint64
	valid    uint64
	pileUp   uint64

	prev      uint64 // timestamp of the previous event
	rollovers uint64
	start     time.Time

	presets Presets
}

func newChannel(bins int, enabled bool) channel {
	return channel{
		enabled: enabled,
		energy:  make([]uint32, bins),
		timing:  make([]uint32, bins),
	}
}

func (c *channel) reset(now time.Time) {
	for i := range c.energy {
		c.energy[i] = 0
	}
	for i := range c.timing {
		c.timing[i] = 0
	}
	c.triggers = 0
	c.valid = 0
	c.pileUp = 0
	c.prev = 0
	c.rollovers = 0
	c.start = now
}

// fill accumulates evt into the histograms.
// Bin indices wrap around the histogram size.
func (c *channel) fill(evt Event, mask uint64) {
	c.triggers++
	if evt.Timestamp < c.prev {
		c.rollovers++
	}
	switch {
	case evt.Energy >= 0:
		c.energy[uint64(evt.Energy)&mask]++
		c.timing[(evt.Timestamp-c.prev)&mask]++
		c.valid++
	default:
		c.pileUp++
	}
	c.prev = evt.Timestamp
}

// elapsed returns the acquisition time of the channel, as of the last
// read of the hardware.
func (c *channel) elapsed(last time.Time) time.Duration {
	if c.start.IsZero() || last.Before(c.start) {
		return 0
	}
	return last.Sub(c.start)
}

// reached reports whether one of the presets has been exceeded.
func (c *channel) reached(last time.Time) bool {
	var (
		p  = c.presets
		dt = c.elapsed(last)
	)
	switch {
	case p.Counts > 0 && c.triggers > p.Counts:
		return true
	case p.Real > 0 && dt > p.Real:
		return true
	case p.Live > 0 && dt > p.Live:
		return true
	}
	return false
}

func (c *channel) status(acq bool, last time.Time) Status {
	dt := c.elapsed(last)
	return Status{
		Acquiring: acq,
		Real:      dt,
		Live:      dt,
		Triggers:  c.triggers,
		Valid:     c.valid,
		PileUp:    c.pileUp,
		Rollovers: c.rollovers,
	}
}
