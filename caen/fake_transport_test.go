// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
)

// fakeHW is an in-memory transport serving pre-loaded batches of events.
type fakeHW struct {
	mu   sync.Mutex
	info BoardInfo

	batches [][]Event // one batch per raw buffer
	pending []Event
	regs    map[uint32]uint32

	infoErr   error
	startErr  error
	stopErr   error
	readErr   error
	decodeErr error
	writeErr  error
	writeOK   int // number of writes succeeding before writeErr applies

	starts int
	stops  int
	reads  int
	closed bool
}

func newFakeHW(nchans, bits int) *fakeHW {
	return &fakeHW{
		info: BoardInfo{
			Model:    "fake",
			Serial:   42,
			Channels: nchans,
			ADCBits:  bits,
		},
		regs: make(map[uint32]uint32),
	}
}

func (hw *fakeHW) push(evts ...Event) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.batches = append(hw.batches, evts)
}

// drained reports whether all the pushed batches have been read.
func (hw *fakeHW) drained() bool {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return len(hw.batches) == 0
}

func (hw *fakeHW) set(f func(hw *fakeHW)) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	f(hw)
}

func (hw *fakeHW) counts() (starts, stops, reads int) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.starts, hw.stops, hw.reads
}

func (hw *fakeHW) Info() (BoardInfo, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.info, hw.infoErr
}

func (hw *fakeHW) Start() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.starts++
	return hw.startErr
}

func (hw *fakeHW) Stop() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.stops++
	return hw.stopErr
}

func (hw *fakeHW) ReadRawBuffer() ([]byte, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.reads++
	if hw.readErr != nil {
		return nil, hw.readErr
	}
	if len(hw.batches) == 0 {
		return nil, nil
	}
	hw.pending = hw.batches[0]
	hw.batches = hw.batches[1:]
	return []byte{0xa0, 0, 0, byte(len(hw.pending))}, nil
}

func (hw *fakeHW) DecodeEvents(raw []byte) ([]Event, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.decodeErr != nil {
		return nil, hw.decodeErr
	}
	evts := hw.pending
	hw.pending = nil
	return evts, nil
}

func (hw *fakeHW) ReadTemperature(ch int) (float64, error) {
	return 40 + float64(ch), nil
}

func (hw *fakeHW) ReadRegister(addr uint32) (uint32, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.regs[addr], nil
}

func (hw *fakeHW) WriteRegister(addr, v uint32) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.writeErr != nil {
		if hw.writeOK <= 0 {
			return hw.writeErr
		}
		hw.writeOK--
	}
	hw.regs[addr] = v
	return nil
}

func (hw *fakeHW) Close() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.closed = true
	return nil
}

var _ Transport = (*fakeHW)(nil)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (clk *fakeClock) Now() time.Time {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	return clk.now
}

func (clk *fakeClock) advance(d time.Duration) {
	clk.mu.Lock()
	defer clk.mu.Unlock()
	clk.now = clk.now.Add(d)
}

func quietMsg() log.MsgStream {
	return log.NewMsgStream("caen", log.LvlError, io.Discard)
}

func newTestDevice(t *testing.T, hw Transport, opts ...Option) *Device {
	t.Helper()
	opts = append([]Option{
		WithMsgStream(quietMsg()),
		WithPollPeriod(time.Millisecond),
	}, opts...)
	dev, err := Open(hw, opts...)
	if err != nil {
		t.Fatalf("could not open device: %+v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-timeout:
			t.Fatalf("timeout waiting for condition")
		case <-time.After(time.Millisecond):
		}
	}
}

// waitPolled waits until the poller consumed all the batches of hw
// and completed the corresponding iterations.
// The device must be acquiring.
func waitPolled(t *testing.T, hw *fakeHW) {
	t.Helper()
	waitFor(t, hw.drained)
	_, _, reads := hw.counts()
	waitFor(t, func() bool {
		_, _, n := hw.counts()
		return n > reads
	})
}
