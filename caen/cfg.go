// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"io"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
)

type config struct {
	poll     time.Duration // wait between two polls while acquiring
	mask     uint32        // enabled channels. zero means all of them.
	maxFails int

	msg log.MsgStream
	rec io.Writer // optional raw buffers recorder

	onDisconnect func(info BoardInfo, err error)
	now          func() time.Time
}

func newConfig() config {
	return config{
		poll:     5 * time.Millisecond,
		maxFails: 5,
		msg:      log.NewMsgStream("caen", log.LvlInfo, os.Stdout),
		now:      time.Now,
	}
}

// Option configures a Device.
type Option func(*config)

// WithPollPeriod sets the period at which the digitizer is polled
// while acquiring.
func WithPollPeriod(p time.Duration) Option {
	return func(cfg *config) {
		if p > 0 {
			cfg.poll = p
		}
	}
}

// WithChannelMask sets the initial set of enabled channels.
// A zero mask enables all the channels of the board.
func WithChannelMask(mask uint32) Option {
	return func(cfg *config) {
		cfg.mask = mask
	}
}

// WithMaxFailures sets the number of consecutive hardware failures
// tolerated before the device is declared disconnected.
func WithMaxFailures(n int) Option {
	return func(cfg *config) {
		cfg.maxFails = n
	}
}

// WithMsgStream sets the logger of the device.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithRecorder records every raw buffer read from the hardware into w.
func WithRecorder(w io.Writer) Option {
	return func(cfg *config) {
		cfg.rec = w
	}
}

// WithOnDisconnect registers a function invoked, in its own goroutine,
// when the device gets disconnected.
func WithOnDisconnect(f func(info BoardInfo, err error)) Option {
	return func(cfg *config) {
		cfg.onDisconnect = f
	}
}

// WithClock sets the clock used to timestamp acquisitions.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}
