// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command caen-boot (re)starts one caen-srv process per digitizer.
//
// Usage: caen-boot [OPTIONS] "SRV-ARGS-1" ["SRV-ARGS-2" [...]]
//
// Example:
//
//	$> caen-boot -pmon \
//	     "-addr=:8877 -base=0x32100000" \
//	     "-addr=:8878 -base=0x32110000"
//
// The output of each process is written to $CAENLOGDIR/caen-srv-<i>.log.
package main // import "github.com/go-lpc/mca/cmd/caen-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

type options struct {
	mon  bool
	freq time.Duration
	kill bool
}

func main() {
	log.SetPrefix("caen-boot: ")
	log.SetFlags(0)

	var (
		opts options
		srv  = flag.String("srv", "caen-srv", "path to the caen-srv command")
		dir  = flag.String("dir", os.Getenv("CAENLOGDIR"), "directory holding the log files")
	)
	flag.BoolVar(&opts.mon, "pmon", false, "enable pmon monitoring")
	flag.DurationVar(&opts.freq, "freq", 1*time.Second, "pmon frequency")
	flag.BoolVar(&opts.kill, "kill", true, "kill already running caen-srv processes")

	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatalf("missing caen-srv arguments")
	}

	cmds := make([]*exec.Cmd, flag.NArg())
	for i, args := range flag.Args() {
		cmds[i] = exec.Command(*srv, strings.Fields(args)...)
	}

	stop := make(chan os.Signal, 1)
	err := run(opts, cmds, *dir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(opts options, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	if opts.kill {
		killall(cmds)
	}

	if dir == "" {
		dir = "/var/log/caen"
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
	)
	for i := range cmds {
		var (
			cmd  = cmds[i]
			name = filepath.Base(cmd.Path) + "-" + strconv.Itoa(i)
		)
		grp.Go(func() error {
			return start(cmd, name, dir, kill, opts)
		})
	}

	go func() {
		<-stop
		close(kill)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot digitizers: %w", err)
	}
	return nil
}

func killall(cmds []*exec.Cmd) {
	done := make(map[string]bool)
	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		if done[name] {
			continue
		}
		done[name] = true

		kill := exec.Command("killall", name)
		kill.Stderr = os.Stderr
		kill.Stdout = os.Stdout
		err := kill.Run()
		if err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
	}
}

func start(cmd *exec.Cmd, name, dir string, kill chan int, opts options) error {
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if opts.mon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			_ = cmd.Process.Kill()
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			_ = cmd.Process.Kill()
			return fmt.Errorf("could not create pmon log file for %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = opts.freq

		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not monitor %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error, 1)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-kill:
		err = cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %w", name, err)
		}
		<-errch
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}
	log.Printf("%q done", name)

	return nil
}
