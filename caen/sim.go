// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-lpc/mca/caen/internal/regs"
	"github.com/go-lpc/mca/internal/dpp"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Simulator is a software digitizer producing random DPP-PHA data.
//
// Each channel sees a gaussian peak on top of a flat background.
type Simulator struct {
	info BoardInfo
	rnd  *rand.Rand
	rate float64 // mean number of events per readout

	nevts distuv.Poisson     // number of events per readout
	dt    distuv.Exponential // time between events, in clock ticks
	flat  distuv.Uniform     // flat background, in [0,1)
	noise distuv.Normal      // relative peak resolution

	// PileUp is the fraction of events flagged as pile-up.
	PileUp float64

	running bool
	counter uint32
	tt      uint64 // current trigger time tag, in clock ticks
	regs    map[uint32]uint32
	buf     bytes.Buffer
}

// NewSimulator returns a simulated digitizer with the provided
// characteristics.
// rate is the mean number of events returned by each read of the
// raw buffer.
func NewSimulator(info BoardInfo, seed int64, rate float64) (*Simulator, error) {
	err := info.validate()
	if err != nil {
		return nil, err
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("caen: invalid simulation rate %v", rate)
	}
	src := rand.NewSource(uint64(seed))
	return &Simulator{
		info:   info,
		rnd:    rand.New(src),
		rate:   rate,
		nevts:  distuv.Poisson{Lambda: rate, Src: src},
		dt:     distuv.Exponential{Rate: 1e-3, Src: src},
		flat:   distuv.Uniform{Min: 0, Max: 1, Src: src},
		noise:  distuv.Normal{Mu: 0, Sigma: 0.005, Src: src},
		PileUp: 0.02,
		regs:   make(map[uint32]uint32),
	}, nil
}

func (sim *Simulator) Info() (BoardInfo, error) {
	return sim.info, nil
}

func (sim *Simulator) Start() error {
	sim.running = true
	sim.regs[regs.AcqControl] |= regs.AcqRun
	return nil
}

func (sim *Simulator) Stop() error {
	sim.running = false
	sim.regs[regs.AcqControl] &^= regs.AcqRun
	return nil
}

func (sim *Simulator) ReadRawBuffer() ([]byte, error) {
	if !sim.running {
		return nil, nil
	}

	n := sim.poisson()
	if n == 0 {
		return nil, nil
	}

	var (
		bins = 1 << uint(sim.info.ADCBits)
		agg  = dpp.Aggregate{
			Counter: sim.counter,
			TimeTag: uint32(sim.tt),
			Events:  make([]dpp.Event, 0, n),
		}
	)
	sim.counter++

	for i := 0; i < n; i++ {
		sim.tt += 1 + uint64(sim.dt.Rand())
		ch := sim.rnd.Intn(sim.info.Channels)
		evt := dpp.Event{
			Channel: uint8(ch),
			TimeTag: sim.tt,
			Energy:  sim.energy(ch, bins),
		}
		if sim.rnd.Float64() < sim.PileUp {
			evt.Energy = -1
		}
		agg.Events = append(agg.Events, evt)
	}

	sim.buf.Reset()
	err := dpp.NewEncoder(&sim.buf).Encode(&agg)
	if err != nil {
		return nil, &Error{Op: "read-raw-buffer", Code: GenericError, Err: err}
	}
	raw := make([]byte, sim.buf.Len())
	copy(raw, sim.buf.Bytes())
	return raw, nil
}

// poisson returns a number of events drawn from a Poisson distribution
// of mean sim.rate.
func (sim *Simulator) poisson() int {
	if sim.rate <= 0 {
		return 0
	}
	return int(sim.nevts.Rand())
}

func (sim *Simulator) energy(ch, bins int) int32 {
	max := bins - 1
	if max > 0x7fff {
		max = 0x7fff
	}
	var e float64
	switch {
	case sim.rnd.Float64() < 0.3:
		e = sim.flat.Rand() * float64(max)
	default:
		peak := 0.3 + 0.04*float64(ch%8)
		e = (peak + sim.noise.Rand()) * float64(max)
	}
	switch {
	case e < 0:
		e = 0
	case e > float64(max):
		e = float64(max)
	}
	return int32(e)
}

func (sim *Simulator) DecodeEvents(raw []byte) ([]Event, error) {
	return decodeDPP(raw)
}

func (sim *Simulator) ReadTemperature(ch int) (float64, error) {
	if ch < 0 || ch >= sim.info.Channels {
		return 0, &Error{Op: "read-temperature", Code: InvalidChannelNumber}
	}
	return 38 + 0.25*float64(ch), nil
}

func (sim *Simulator) ReadRegister(addr uint32) (uint32, error) {
	if addr >= regs.WindowSize {
		return 0, &Error{Op: "read-register", Code: ReadDeviceRegisterFail}
	}
	return sim.regs[addr], nil
}

func (sim *Simulator) WriteRegister(addr, v uint32) error {
	if addr >= regs.WindowSize {
		return &Error{Op: "write-register", Code: WriteDeviceRegisterFail}
	}
	sim.regs[addr] = v
	return nil
}

func (sim *Simulator) Close() error {
	sim.running = false
	return nil
}

var (
	_ Transport = (*Simulator)(nil)
)
