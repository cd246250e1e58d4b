// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import "time"

// loop is the background poller of the device.
// It sleeps until the acquisition is started, then reads the hardware
// every poll period until the acquisition is stopped or the device closed.
func (dev *Device) loop() {
	defer close(dev.done)

	for {
		dev.mu.Lock()
		acq := dev.acquiring
		dev.mu.Unlock()

		switch {
		case acq:
			tick := time.NewTimer(dev.cfg.poll)
			select {
			case <-dev.quit:
				tick.Stop()
				return
			case <-dev.wake:
				tick.Stop()
			case <-tick.C:
			}
		default:
			select {
			case <-dev.quit:
				return
			case <-dev.wake:
			}
		}

		dev.mu.Lock()
		select {
		case <-dev.quit:
			dev.mu.Unlock()
			return
		default:
		}
		if dev.acquiring {
			dev.poll()
		}
		dev.mu.Unlock()
	}
}

// poll reads the hardware once and fills the histograms of the enabled
// channels. poll must be called with the device lock held.
func (dev *Device) poll() {
	dev.stats.Polls++

	raw, err := dev.hw.ReadRawBuffer()
	dev.lastRead = dev.cfg.now()
	if err != nil {
		dev.stats.ReadErrors++
		dev.msg.Errorf("could not read raw buffer: %+v", err)
		return
	}
	if len(raw) == 0 {
		return
	}
	dev.stats.Bytes += uint64(len(raw))

	if dev.rec != nil {
		_, err = dev.rec.Write(raw)
		if err != nil {
			dev.msg.Errorf("could not record raw buffer, recording disabled: %+v", err)
			dev.rec = nil
		}
	}

	evts, err := dev.hw.DecodeEvents(raw)
	if err != nil {
		dev.stats.DecodeErrors++
		dev.msg.Errorf("could not decode %d bytes raw buffer: %+v", len(raw), err)
		return
	}
	dev.stats.Events += uint64(len(evts))

	for i := range dev.chans {
		c := &dev.chans[i]
		if !c.enabled {
			continue
		}
		for _, evt := range evts {
			if evt.Channel != i {
				continue
			}
			c.fill(evt, dev.mask)
		}
	}
}
