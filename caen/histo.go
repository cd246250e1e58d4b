// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"fmt"
	"io"
	"strings"

	"go-hep.org/x/hep/hbook"
)

// Kind selects one of the histograms of a channel.
type Kind int

const (
	Energy Kind = iota // energy spectrum
	Timing             // time interval between consecutive events
)

func (k Kind) String() string {
	switch k {
	case Energy:
		return "energy"
	case Timing:
		return "timing"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the histogram kind with the provided name.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "", "energy":
		return Energy, nil
	case "timing":
		return Timing, nil
	}
	return -1, fmt.Errorf("caen: unknown histogram kind %q", name)
}

// ReadEnergyHistogram copies the energy histogram of channel ch into dst.
// At most len(dst) bins are copied; a short dst is not an error.
// ReadEnergyHistogram returns the number of copied bins.
func (dev *Device) ReadEnergyHistogram(ch int, dst []uint32) (int, error) {
	return dev.readHisto(ch, Energy, dst)
}

// ReadTimingHistogram copies the timing histogram of channel ch into dst,
// with the same semantics as ReadEnergyHistogram.
func (dev *Device) ReadTimingHistogram(ch int, dst []uint32) (int, error) {
	return dev.readHisto(ch, Timing, dst)
}

func (dev *Device) readHisto(ch int, kind Kind, dst []uint32) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return 0, err
	}
	c, err := dev.channel(ch)
	if err != nil {
		return 0, err
	}
	if !c.enabled {
		return 0, nil
	}

	src, err := c.histo(kind)
	if err != nil {
		return 0, err
	}

	n := copy(dst, src)
	if n < len(src) {
		dev.stats.Truncations++
		dev.msg.Warnf(
			"channel %d: %v histogram truncated (bins=%d, len=%d)",
			ch, kind, len(src), len(dst),
		)
	}
	return n, nil
}

func (c *channel) histo(kind Kind) ([]uint32, error) {
	switch kind {
	case Energy:
		return c.energy, nil
	case Timing:
		return c.timing, nil
	}
	return nil, fmt.Errorf("caen: invalid histogram kind %v", kind)
}

// H1D returns a snapshot of a histogram of channel ch.
func (dev *Device) H1D(ch int, kind Kind) (*hbook.H1D, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return nil, err
	}
	c, err := dev.channel(ch)
	if err != nil {
		return nil, err
	}
	return dev.h1d(ch, c, kind)
}

func (dev *Device) h1d(ch int, c *channel, kind Kind) (*hbook.H1D, error) {
	src, err := c.histo(kind)
	if err != nil {
		return nil, err
	}

	h := hbook.NewH1D(len(src), 0, float64(len(src)))
	for i, n := range src {
		if n == 0 {
			continue
		}
		h.Fill(float64(i)+0.5, float64(n))
	}
	h.Annotation()["name"] = fmt.Sprintf("ch%02d-%v", ch, kind)
	h.Annotation()["serial"] = fmt.Sprintf("%d", dev.info.Serial)
	return h, nil
}

// WriteYODA writes the energy and timing histograms of all enabled
// channels to w, in the YODA format.
func (dev *Device) WriteYODA(w io.Writer) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if err := dev.usable(); err != nil {
		return err
	}

	for i := range dev.chans {
		c := &dev.chans[i]
		if !c.enabled {
			continue
		}
		for _, kind := range []Kind{Energy, Timing} {
			h, err := dev.h1d(i, c, kind)
			if err != nil {
				return err
			}
			raw, err := h.MarshalYODA()
			if err != nil {
				return fmt.Errorf("caen: could not marshal channel %d %v histogram: %w", i, kind, err)
			}
			_, err = w.Write(raw)
			if err != nil {
				return fmt.Errorf("caen: could not write channel %d %v histogram: %w", i, kind, err)
			}
		}
	}
	return nil
}
