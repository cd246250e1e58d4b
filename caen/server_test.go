// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"
)

func TestServerFail(t *testing.T) {
	dev := newTestDevice(t, newFakeHW(1, 12))
	err := Serve(context.Background(), ":invalid", dev)
	if err == nil {
		t.Fatal("expected an error")
	}
}

type srvReply struct {
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func TestServer(t *testing.T) {
	hw := newFakeHW(2, 8)
	dev := newTestDevice(t, hw)

	srv, err := newServer("localhost:0", dev)
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- srv.serve(ctx)
	}()

	conn, err := net.Dial("tcp", srv.ctl.Addr().String())
	if err != nil {
		t.Fatalf("could not dial server: %+v", err)
	}
	defer conn.Close()

	var (
		enc = json.NewEncoder(conn)
		dec = json.NewDecoder(conn)
	)
	send := func(name string, args interface{}) srvReply {
		t.Helper()
		req := struct {
			Name string      `json:"name"`
			Args interface{} `json:"args,omitempty"`
		}{name, args}
		err := enc.Encode(req)
		if err != nil {
			t.Fatalf("could not send %q: %+v", name, err)
		}
		var rep srvReply
		err = dec.Decode(&rep)
		if err != nil {
			t.Fatalf("could not decode %q reply: %+v", name, err)
		}
		return rep
	}
	ok := func(name string, args interface{}) srvReply {
		t.Helper()
		rep := send(name, args)
		if rep.Msg != "ok" {
			t.Fatalf("%q failed: %s", name, rep.Msg)
		}
		return rep
	}

	ok("set", srvArgs{Channel: 0, Param: "threshold", Value: 33})
	rep := ok("get", srvArgs{Channel: 0, Param: "threshold"})
	if got := string(rep.Data); got != "33" {
		t.Fatalf("invalid param value: %s", got)
	}

	ok("presets", srvArgs{Channel: 1, Presets: &Presets{Counts: 100}})
	rep = ok("presets", srvArgs{Channel: 1})
	var p Presets
	_ = json.Unmarshal(rep.Data, &p)
	if p.Counts != 100 {
		t.Fatalf("invalid presets: %+v", p)
	}

	rep = ok("temperature", srvArgs{Channel: 1})
	if got := string(rep.Data); got != "41" {
		t.Fatalf("invalid temperature: %s", got)
	}

	ok("start", nil)
	hw.push(
		Event{Channel: 0, Timestamp: 1, Energy: 3},
		Event{Channel: 0, Timestamp: 2, Energy: 3},
		Event{Channel: 1, Timestamp: 3, Energy: -1},
	)
	waitPolled(t, hw)

	rep = ok("status", srvArgs{Channel: 0})
	var st Status
	_ = json.Unmarshal(rep.Data, &st)
	if !st.Acquiring || st.Triggers != 2 {
		t.Fatalf("invalid status: %+v", st)
	}

	rep = ok("data", srvArgs{Channel: 0, Kind: "energy"})
	var data []uint32
	_ = json.Unmarshal(rep.Data, &data)
	if len(data) != 256 || data[3] != 2 {
		t.Fatalf("invalid data: %v", data)
	}

	rep = ok("data", srvArgs{Channel: 0, Kind: "timing", Bins: 4})
	data = nil
	_ = json.Unmarshal(rep.Data, &data)
	if len(data) != 4 || data[1] != 2 {
		t.Fatalf("invalid timing data: %v", data)
	}

	// oversized buffers are capped to the histogram size.
	rep = ok("data", json.RawMessage(`{"channel":0,"kind":"energy","bins":4611686018427387904}`))
	data = nil
	_ = json.Unmarshal(rep.Data, &data)
	if len(data) != 256 || data[3] != 2 {
		t.Fatalf("invalid capped data: len=%d", len(data))
	}

	rep = ok("yoda", nil)
	var yoda string
	_ = json.Unmarshal(rep.Data, &yoda)
	if !strings.Contains(yoda, "ch01-energy") {
		t.Fatalf("invalid YODA payload:\n%s", yoda)
	}

	ok("erase", srvArgs{Channel: -1})
	rep = ok("status", srvArgs{Channel: 1})
	st = Status{}
	_ = json.Unmarshal(rep.Data, &st)
	if st.Triggers != 0 {
		t.Fatalf("channel not erased: %+v", st)
	}

	ok("stop", nil)
	if dev.Acquiring() {
		t.Fatalf("device should be stopped")
	}

	for _, tc := range []struct {
		name string
		args interface{}
		want string
	}{
		{"not-there", nil, `unknown command "not-there"`},
		{"get", srvArgs{Param: "nope"}, `caen: unknown parameter "nope"`},
		{"data", srvArgs{Kind: "nope"}, `caen: unknown histogram kind "nope"`},
		{"erase", srvArgs{Channel: 5}, "caen: invalid channel 5 (channels=2)"},
		{"status", []int{1}, "json: cannot unmarshal array"},
	} {
		rep := send(tc.name, tc.args)
		if !strings.HasPrefix(rep.Msg, tc.want) {
			t.Fatalf("%q: invalid reply:\ngot= %q\nwant=%q", tc.name, rep.Msg, tc.want)
		}
	}

	ok("quit", nil)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server failed: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not quit")
	}
}

func TestServerCancel(t *testing.T) {
	dev := newTestDevice(t, newFakeHW(1, 12))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- Serve(ctx, "localhost:0", dev)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server failed: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
