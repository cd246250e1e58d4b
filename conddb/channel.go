// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import "time"

// Board describes a digitizer.
type Board struct {
	ID     uint32 `json:"identifier"`
	Serial uint32 `json:"serial"`
	Model  string `json:"model"`
	Addr   string `json:"addr"` // address of the caen-srv serving the board
}

// Channel holds the DPP-PHA configuration of one digitizer input.
type Channel struct {
	PrimaryID int32  `json:"identifier"`
	Serial    uint32 `json:"serial"`
	Channel   uint8  `json:"channel"`
	Enabled   bool   `json:"enabled"`

	Threshold uint32 `json:"threshold"` // trigger threshold, in LSB
	InputRise uint32 `json:"input_rise"`
	TrapRise  uint32 `json:"trap_rise"`
	TrapFlat  uint32 `json:"trap_flat"`
	Peaking   uint32 `json:"peaking"`
	Decay     uint32 `json:"decay"`
	HoldOff   uint32 `json:"holdoff"`
	DCOffset  uint32 `json:"dc_offset"`

	PresetCounts uint64  `json:"preset_counts"`
	PresetReal   float64 `json:"preset_real"` // seconds
	PresetLive   float64 `json:"preset_live"` // seconds
}

// RealTime returns the real time preset.
func (ch Channel) RealTime() time.Duration {
	return seconds(ch.PresetReal)
}

// LiveTime returns the live time preset.
func (ch Channel) LiveTime() time.Duration {
	return seconds(ch.PresetLive)
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
