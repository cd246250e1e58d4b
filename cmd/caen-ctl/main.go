// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command caen-ctl is an interactive shell to control a caen-srv server.
//
// Usage: caen-ctl [OPTIONS] [COMMAND [ARGS...]]
//
// Example:
//
//	$> caen-ctl -addr=vme-01:8877
//	caen> set 0 threshold 120
//	caen> presets 0 100000 60s 0
//	caen> start
//	caen> status 0
//	caen> data 0 energy 16
//	caen> yoda run-001.yoda
//	caen> stop
//
//	$> caen-ctl -addr=vme-01:8877 status 0
package main // import "github.com/go-lpc/mca/cmd/caen-ctl"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
)

var cmds = []string{
	"start", "stop", "erase", "status", "data",
	"set", "get", "presets", "temperature", "yoda", "quit",
	"help", "exit",
}

func main() {
	log.SetPrefix("caen-ctl: ")
	log.SetFlags(0)

	var (
		addr = flag.String("addr", ":8877", "[ip]:port of the caen-srv server")
		hist = flag.String("history", filepath.Join(os.TempDir(), ".caen-ctl.history"), "path to the history file")
	)

	flag.Parse()

	cli, err := dial(*addr)
	if err != nil {
		log.Fatalf("could not connect to caen-srv: %+v", err)
	}
	defer cli.Close()

	if flag.NArg() > 0 {
		err = cli.exec(os.Stdout, strings.Join(flag.Args(), " "))
		if err != nil {
			log.Fatalf("%+v", err)
		}
		return
	}

	err = shell(cli, *hist)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func shell(cli *client, hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(func(line string) []string {
		var o []string
		for _, c := range cmds {
			if strings.HasPrefix(c, strings.ToLower(line)) {
				o = append(o, c)
			}
		}
		return o
	})

	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("caen> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		switch line {
		case "exit":
			return nil
		case "help":
			fmt.Println(usage)
			continue
		}

		err = cli.exec(os.Stdout, line)
		if err != nil {
			fmt.Printf("error: %+v\n", err)
			continue
		}
		if line == "quit" {
			return nil
		}
	}
}

const usage = `commands:
  start                              start acquisition
  stop                               stop acquisition
  erase   <ch|all>                   erase histograms and counters
  status  <ch>                       display channel status
  data    <ch> [energy|timing] [n]   display the first n bins of a histogram
  set     <ch> <param> <value>       set a DPP parameter
  get     <ch> <param>               get a DPP parameter
  presets <ch> [counts real live]    get/set the acquisition presets
  temperature <ch>                   display the ADC temperature
  yoda    [file]                     save all histograms in YODA format
  quit                               stop the server
  exit                               leave the shell`

type request struct {
	Name string `json:"name"`
	Args args   `json:"args"`
}

type args struct {
	Channel int      `json:"channel"`
	Kind    string   `json:"kind,omitempty"`
	Bins    int      `json:"bins,omitempty"`
	Param   string   `json:"param,omitempty"`
	Value   uint32   `json:"value,omitempty"`
	Presets *presets `json:"presets,omitempty"`
}

type presets struct {
	Counts uint64        `json:"counts"`
	Real   time.Duration `json:"real"`
	Live   time.Duration `json:"live"`
}

type reply struct {
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// parse parses a shell command line into a request.
// The returned string is the optional output file of the yoda command.
func parse(line string) (request, string, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return request{}, "", fmt.Errorf("empty command")
	}

	var (
		req = request{Name: strings.ToLower(toks[0])}
		out string
	)
	toks = toks[1:]

	nargs := func(min, max int) error {
		if len(toks) < min || len(toks) > max {
			return fmt.Errorf("invalid number of arguments for %q (got=%d)", req.Name, len(toks))
		}
		return nil
	}
	channel := func() error {
		v, err := strconv.Atoi(toks[0])
		if err != nil {
			return fmt.Errorf("invalid channel %q: %w", toks[0], err)
		}
		req.Args.Channel = v
		return nil
	}

	var err error
	switch req.Name {
	case "start", "stop", "quit":
		err = nargs(0, 0)

	case "status", "temperature":
		err = nargs(1, 1)
		if err == nil {
			err = channel()
		}

	case "erase":
		err = nargs(1, 1)
		if err != nil {
			break
		}
		if toks[0] == "all" {
			req.Args.Channel = -1
			break
		}
		err = channel()

	case "data":
		err = nargs(1, 3)
		if err != nil {
			break
		}
		err = channel()
		if err != nil {
			break
		}
		if len(toks) > 1 {
			req.Args.Kind = toks[1]
		}
		if len(toks) > 2 {
			req.Args.Bins, err = strconv.Atoi(toks[2])
			if err != nil {
				err = fmt.Errorf("invalid number of bins %q: %w", toks[2], err)
			}
		}

	case "get":
		err = nargs(2, 2)
		if err != nil {
			break
		}
		err = channel()
		req.Args.Param = toks[1]

	case "set":
		err = nargs(3, 3)
		if err != nil {
			break
		}
		err = channel()
		if err != nil {
			break
		}
		req.Args.Param = toks[1]
		var v uint64
		v, err = strconv.ParseUint(toks[2], 0, 32)
		if err != nil {
			err = fmt.Errorf("invalid value %q: %w", toks[2], err)
			break
		}
		req.Args.Value = uint32(v)

	case "presets":
		if len(toks) != 1 && len(toks) != 4 {
			err = fmt.Errorf("invalid number of arguments for %q (got=%d)", req.Name, len(toks))
			break
		}
		err = channel()
		if err != nil || len(toks) == 1 {
			break
		}
		req.Args.Presets, err = parsePresets(toks[1:])

	case "yoda":
		err = nargs(0, 1)
		if err == nil && len(toks) == 1 {
			out = toks[0]
		}

	default:
		err = fmt.Errorf("unknown command %q", req.Name)
	}

	return req, out, err
}

func parsePresets(toks []string) (*presets, error) {
	var (
		p   presets
		err error
	)
	p.Counts, err = strconv.ParseUint(toks[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid counts preset %q: %w", toks[0], err)
	}
	for i, dst := range []*time.Duration{&p.Real, &p.Live} {
		tok := toks[i+1]
		if tok == "0" {
			continue
		}
		*dst, err = time.ParseDuration(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid time preset %q: %w", tok, err)
		}
	}
	return &p, nil
}

type client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func dial(addr string) (*client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not dial %q: %w", addr, err)
	}
	return &client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

func (cli *client) Close() error {
	return cli.conn.Close()
}

func (cli *client) send(req request) (json.RawMessage, error) {
	err := cli.enc.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request %q: %w", req.Name, err)
	}

	var rep reply
	err = cli.dec.Decode(&rep)
	if err != nil {
		return nil, fmt.Errorf("could not decode reply to %q: %w", req.Name, err)
	}
	if rep.Msg != "ok" {
		return nil, fmt.Errorf("%s: %s", req.Name, rep.Msg)
	}
	return rep.Data, nil
}

func (cli *client) exec(w io.Writer, line string) error {
	req, out, err := parse(line)
	if err != nil {
		return err
	}

	data, err := cli.send(req)
	if err != nil {
		return err
	}

	switch req.Name {
	case "yoda":
		var raw string
		err = json.Unmarshal(data, &raw)
		if err != nil {
			return fmt.Errorf("could not decode YODA payload: %w", err)
		}
		if out == "" {
			_, err = io.WriteString(w, raw)
			return err
		}
		err = os.WriteFile(out, []byte(raw), 0644)
		if err != nil {
			return fmt.Errorf("could not save YODA file: %w", err)
		}
		fmt.Fprintf(w, "saved %q\n", out)

	case "data":
		var bins []uint32
		err = json.Unmarshal(data, &bins)
		if err != nil {
			return fmt.Errorf("could not decode histogram: %w", err)
		}
		for i, v := range bins {
			if v == 0 {
				continue
			}
			fmt.Fprintf(w, "bin[%04d] = %d\n", i, v)
		}

	default:
		if len(data) == 0 {
			fmt.Fprintf(w, "ok\n")
			return nil
		}
		fmt.Fprintf(w, "%s\n", data)
	}
	return nil
}
