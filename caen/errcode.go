// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import "strconv"

// ErrCode is a vendor library return code.
type ErrCode int

const (
	Success                  ErrCode = 0
	CommError                ErrCode = -1
	GenericError             ErrCode = -2
	InvalidParam             ErrCode = -3
	InvalidLinkType          ErrCode = -4
	InvalidHandle            ErrCode = -5
	MaxDevicesError          ErrCode = -6
	BadBoardType             ErrCode = -7
	BadInterruptLev          ErrCode = -8
	BadEventNumber           ErrCode = -9
	ReadDeviceRegisterFail   ErrCode = -10
	WriteDeviceRegisterFail  ErrCode = -11
	InvalidChannelNumber     ErrCode = -13
	ChannelBusy              ErrCode = -14
	FPIOModeInvalid          ErrCode = -15
	WrongAcqMode             ErrCode = -16
	FunctionNotAllowed       ErrCode = -17
	Timeout                  ErrCode = -18
	InvalidBuffer            ErrCode = -19
	EventNotFound            ErrCode = -20
	InvalidEvent             ErrCode = -21
	OutOfMemory              ErrCode = -22
	CalibrationError         ErrCode = -23
	DigitizerNotFound        ErrCode = -24
	DigitizerAlreadyOpen     ErrCode = -25
	DigitizerNotReady        ErrCode = -26
	InterruptNotConfigured   ErrCode = -27
	DigitizerMemoryCorrupted ErrCode = -28
	DPPFirmwareNotSupported  ErrCode = -29
	InvalidLicense           ErrCode = -30
	InvalidDigitizerStatus   ErrCode = -31
	UnsupportedTrace         ErrCode = -32
	InvalidProbe             ErrCode = -33
	UnsupportedBaseAddress   ErrCode = -34
	NotYetImplemented        ErrCode = -99
)

var errCodeNames = map[ErrCode]string{
	Success:                  "success",
	CommError:                "communication error",
	GenericError:             "unspecified error",
	InvalidParam:             "invalid parameter",
	InvalidLinkType:          "invalid link type",
	InvalidHandle:            "invalid device handle",
	MaxDevicesError:          "maximum number of devices exceeded",
	BadBoardType:             "operation not allowed on this type of board",
	BadInterruptLev:          "invalid interrupt level",
	BadEventNumber:           "invalid event number",
	ReadDeviceRegisterFail:   "unable to read the registry",
	WriteDeviceRegisterFail:  "unable to write into the registry",
	InvalidChannelNumber:     "invalid channel number",
	ChannelBusy:              "channel is busy",
	FPIOModeInvalid:          "invalid FPIO mode",
	WrongAcqMode:             "wrong acquisition mode",
	FunctionNotAllowed:       "function not allowed for this module",
	Timeout:                  "communication timeout",
	InvalidBuffer:            "buffer invalid or out of memory",
	EventNotFound:            "event not found",
	InvalidEvent:             "invalid event",
	OutOfMemory:              "out of memory",
	CalibrationError:         "unable to calibrate the board",
	DigitizerNotFound:        "unable to open the digitizer",
	DigitizerAlreadyOpen:     "digitizer already open",
	DigitizerNotReady:        "digitizer not ready to start the acquisition",
	InterruptNotConfigured:   "digitizer has no IRQ configured",
	DigitizerMemoryCorrupted: "digitizer flash memory is corrupted",
	DPPFirmwareNotSupported:  "digitizer DPP firmware not supported",
	InvalidLicense:           "invalid firmware license",
	InvalidDigitizerStatus:   "invalid digitizer status",
	UnsupportedTrace:         "unsupported trace",
	InvalidProbe:             "invalid probe",
	UnsupportedBaseAddress:   "unsupported base address",
	NotYetImplemented:        "function not yet implemented",
}

func (code ErrCode) String() string {
	if name, ok := errCodeNames[code]; ok {
		return name
	}
	return "error code " + strconv.Itoa(int(code))
}
