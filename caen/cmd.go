// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import "fmt"

// Command is a device command.
type Command int

const (
	CmdStartAcquire Command = iota + 1
	CmdStopAcquire
	CmdErase
	CmdReadStatus
	CmdReadData
	CmdSetParam
	CmdGetParam
	CmdSetPresets
	CmdTemperature
)

var cmdNames = map[Command]string{
	CmdStartAcquire: "start-acquire",
	CmdStopAcquire:  "stop-acquire",
	CmdErase:        "erase",
	CmdReadStatus:   "read-status",
	CmdReadData:     "read-data",
	CmdSetParam:     "set-param",
	CmdGetParam:     "get-param",
	CmdSetPresets:   "set-presets",
	CmdTemperature:  "temperature",
}

func (cmd Command) String() string {
	if name, ok := cmdNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(cmd))
}

// Request is a command addressed to a device.
type Request struct {
	Cmd     Command
	Channel int
	Kind    Kind     // histogram to read (CmdReadData)
	Data    []uint32 // destination of the histogram (CmdReadData)
	Param   Param    // CmdSetParam, CmdGetParam
	Value   uint32   // CmdSetParam
	Presets Presets  // CmdSetPresets
}

// Reply is the outcome of a command.
type Reply struct {
	Status      Status  // CmdReadStatus
	N           int     // number of bins copied (CmdReadData)
	Value       uint32  // CmdGetParam
	Temperature float64 // CmdTemperature
}

// Do executes the command req.
func (dev *Device) Do(req Request) (Reply, error) {
	var (
		rep Reply
		err error
	)
	switch req.Cmd {
	case CmdStartAcquire:
		err = dev.Start()
	case CmdStopAcquire:
		err = dev.Stop()
	case CmdErase:
		err = dev.Erase(req.Channel)
	case CmdReadStatus:
		rep.Status, err = dev.ReadStatus(req.Channel)
	case CmdReadData:
		rep.N, err = dev.readHisto(req.Channel, req.Kind, req.Data)
	case CmdSetParam:
		err = dev.SetParam(req.Channel, req.Param, req.Value)
	case CmdGetParam:
		rep.Value, err = dev.Param(req.Channel, req.Param)
	case CmdSetPresets:
		err = dev.SetPresets(req.Channel, req.Presets)
	case CmdTemperature:
		rep.Temperature, err = dev.Temperature(req.Channel)
	default:
		return rep, fmt.Errorf("caen: unknown command %v", req.Cmd)
	}
	return rep, err
}
