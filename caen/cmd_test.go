// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"testing"
	"time"
)

func TestDo(t *testing.T) {
	hw := newFakeHW(2, 12)
	dev := newTestDevice(t, hw)

	do := func(req Request) Reply {
		t.Helper()
		rep, err := dev.Do(req)
		if err != nil {
			t.Fatalf("could not run %v: %+v", req.Cmd, err)
		}
		return rep
	}

	do(Request{Cmd: CmdSetPresets, Channel: 1, Presets: Presets{Counts: 10, Real: time.Hour}})
	do(Request{Cmd: CmdSetParam, Channel: 1, Param: ParamPeaking, Value: 16})
	if got := do(Request{Cmd: CmdGetParam, Channel: 1, Param: ParamPeaking}).Value; got != 16 {
		t.Fatalf("invalid param: got=%d, want=16", got)
	}
	if got := do(Request{Cmd: CmdTemperature, Channel: 1}).Temperature; got != 41 {
		t.Fatalf("invalid temperature: got=%v, want=41", got)
	}

	do(Request{Cmd: CmdStartAcquire})
	hw.push(
		Event{Channel: 1, Timestamp: 5, Energy: 7},
		Event{Channel: 1, Timestamp: 9, Energy: 7},
	)
	waitPolled(t, hw)

	st := do(Request{Cmd: CmdReadStatus, Channel: 1}).Status
	if !st.Acquiring || st.Triggers != 2 || st.Valid != 2 {
		t.Fatalf("invalid status: %+v", st)
	}

	data := make([]uint32, 8)
	rep := do(Request{Cmd: CmdReadData, Channel: 1, Kind: Energy, Data: data})
	if rep.N != 8 || data[7] != 2 {
		t.Fatalf("invalid data: n=%d, data=%v", rep.N, data)
	}
	rep = do(Request{Cmd: CmdReadData, Channel: 1, Kind: Timing, Data: data})
	if rep.N != 8 || data[5] != 1 || data[4] != 1 {
		t.Fatalf("invalid timing data: n=%d, data=%v", rep.N, data)
	}

	do(Request{Cmd: CmdErase, Channel: 1})
	st = do(Request{Cmd: CmdReadStatus, Channel: 1}).Status
	if st.Triggers != 0 {
		t.Fatalf("channel not erased: %+v", st)
	}

	do(Request{Cmd: CmdStopAcquire})
	if dev.Acquiring() {
		t.Fatalf("device should be stopped")
	}

	for _, cmd := range []Command{0, Command(42)} {
		_, err := dev.Do(Request{Cmd: cmd})
		if err == nil {
			t.Fatalf("expected an error for command %v", cmd)
		}
	}

	_, err := dev.Do(Request{Cmd: CmdErase, Channel: 5})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestCommandString(t *testing.T) {
	for _, tc := range []struct {
		cmd  Command
		want string
	}{
		{CmdStartAcquire, "start-acquire"},
		{CmdTemperature, "temperature"},
		{Command(0), "Command(0)"},
	} {
		if got := tc.cmd.String(); got != tc.want {
			t.Fatalf("invalid name: got=%q, want=%q", got, tc.want)
		}
	}
}
