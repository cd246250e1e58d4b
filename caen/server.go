// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-daq/tdaq/log"
	"golang.org/x/sync/errgroup"
)

// server allows to control a device over a TCP connection.
type server struct {
	ctl net.Listener
	msg log.MsgStream
	dev *Device

	quit chan struct{}
}

// srvArgs are the arguments of a control request.
type srvArgs struct {
	Channel int      `json:"channel"`
	Kind    string   `json:"kind,omitempty"`
	Bins    int      `json:"bins,omitempty"`
	Param   string   `json:"param,omitempty"`
	Value   uint32   `json:"value,omitempty"`
	Presets *Presets `json:"presets,omitempty"`
}

// Serve serves the device on addr until ctx is done or a client
// sends the quit command.
//
// Requests are JSON objects {"name": ..., "args": {...}};
// replies are JSON objects {"msg": "ok", "data": ...} or {"msg": <error>}.
func Serve(ctx context.Context, addr string, dev *Device) error {
	srv, err := newServer(addr, dev)
	if err != nil {
		return fmt.Errorf("could not create caen server: %w", err)
	}
	return srv.serve(ctx)
}

func newServer(addr string, dev *Device) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not create caen-ctl server on %q: %w", addr, err)
	}

	srv := &server{
		ctl:  ctl,
		msg:  dev.msg,
		dev:  dev,
		quit: make(chan struct{}),
	}
	return srv, nil
}

func (srv *server) serve(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	grp.Go(func() error {
		defer close(done)
		for {
			conn, err := srv.ctl.Accept()
			if err != nil {
				select {
				case <-srv.quit:
					return nil
				case <-ctx.Done():
					return nil
				default:
				}
				return fmt.Errorf("could not accept connection: %w", err)
			}

			err = srv.handle(conn)
			if err != nil {
				srv.msg.Errorf("could not serve %v: %+v", conn.RemoteAddr(), err)
				continue
			}
		}
	})

	grp.Go(func() error {
		select {
		case <-ctx.Done():
		case <-srv.quit:
		case <-done:
		}
		return srv.close()
	})

	return grp.Wait()
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Infof("serving %v...", conn.RemoteAddr())
	defer srv.msg.Infof("serving %v... [done]", conn.RemoteAddr())

	dec := json.NewDecoder(conn)
	for {
		var req struct {
			Name string           `json:"name"`
			Args *json.RawMessage `json:"args"`
		}

		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			srv.msg.Errorf("could not decode command request: %+v", err)
			srv.reply(conn, nil, err)
			return fmt.Errorf("could not decode command request: %w", err)
		}
		srv.msg.Debugf("received request: name=%q", req.Name)

		var args srvArgs
		if req.Args != nil {
			err = json.Unmarshal(*req.Args, &args)
			if err != nil {
				srv.msg.Errorf("could not decode %q payload: %+v", req.Name, err)
				srv.reply(conn, nil, err)
				continue
			}
		}

		name := strings.ToLower(req.Name)
		if name == "quit" {
			srv.reply(conn, nil, nil)
			close(srv.quit)
			return nil
		}

		data, err := srv.exec(name, args)
		if err != nil {
			srv.msg.Errorf("could not run command %q: %+v", req.Name, err)
		}
		srv.reply(conn, data, err)
	}
}

func (srv *server) exec(name string, args srvArgs) (interface{}, error) {
	switch name {
	case "start":
		_, err := srv.dev.Do(Request{Cmd: CmdStartAcquire})
		return nil, err

	case "stop":
		_, err := srv.dev.Do(Request{Cmd: CmdStopAcquire})
		return nil, err

	case "erase":
		if args.Channel < 0 {
			return nil, srv.dev.EraseAll()
		}
		_, err := srv.dev.Do(Request{Cmd: CmdErase, Channel: args.Channel})
		return nil, err

	case "status":
		rep, err := srv.dev.Do(Request{Cmd: CmdReadStatus, Channel: args.Channel})
		if err != nil {
			return nil, err
		}
		return rep.Status, nil

	case "data":
		kind, err := ParseKind(args.Kind)
		if err != nil {
			return nil, err
		}
		n := args.Bins
		if max := srv.dev.Bins(); n <= 0 || n > max {
			n = max
		}
		data := make([]uint32, n)
		rep, err := srv.dev.Do(Request{
			Cmd:     CmdReadData,
			Channel: args.Channel,
			Kind:    kind,
			Data:    data,
		})
		if err != nil {
			return nil, err
		}
		return data[:rep.N], nil

	case "set":
		p, err := ParseParam(args.Param)
		if err != nil {
			return nil, err
		}
		_, err = srv.dev.Do(Request{
			Cmd:     CmdSetParam,
			Channel: args.Channel,
			Param:   p,
			Value:   args.Value,
		})
		return nil, err

	case "get":
		p, err := ParseParam(args.Param)
		if err != nil {
			return nil, err
		}
		rep, err := srv.dev.Do(Request{Cmd: CmdGetParam, Channel: args.Channel, Param: p})
		if err != nil {
			return nil, err
		}
		return rep.Value, nil

	case "presets":
		if args.Presets == nil {
			return srv.dev.Presets(args.Channel)
		}
		_, err := srv.dev.Do(Request{
			Cmd:     CmdSetPresets,
			Channel: args.Channel,
			Presets: *args.Presets,
		})
		return nil, err

	case "temperature":
		rep, err := srv.dev.Do(Request{Cmd: CmdTemperature, Channel: args.Channel})
		if err != nil {
			return nil, err
		}
		return rep.Temperature, nil

	case "yoda":
		buf := new(bytes.Buffer)
		err := srv.dev.WriteYODA(buf)
		if err != nil {
			return nil, err
		}
		return buf.String(), nil

	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func (srv *server) reply(conn net.Conn, data interface{}, err error) {
	rep := struct {
		Msg  string      `json:"msg"`
		Data interface{} `json:"data,omitempty"`
	}{Msg: "ok", Data: data}
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
		rep.Data = nil
	}

	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() error {
	err := srv.ctl.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("could not close caen-ctl server: %w", err)
	}
	return nil
}
