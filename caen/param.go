// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package caen

import (
	"fmt"
	"strings"

	"github.com/go-lpc/mca/caen/internal/regs"
)

// Param is a per-channel DPP-PHA parameter.
type Param int

const (
	ParamThreshold Param = iota // trigger threshold
	ParamInputRise              // input signal rise time
	ParamTrapRise               // trapezoid rise time
	ParamTrapFlat               // trapezoid flat top
	ParamPeaking                // peaking time
	ParamDecay                  // input signal decay time
	ParamHoldOff                // trigger hold-off
	ParamDCOffset
)

var params = []struct {
	name string
	reg  uint32
}{
	ParamThreshold: {"threshold", regs.TriggerThreshold},
	ParamInputRise: {"input-rise", regs.InputRiseTime},
	ParamTrapRise:  {"trap-rise", regs.TrapRiseTime},
	ParamTrapFlat:  {"trap-flat", regs.TrapFlatTop},
	ParamPeaking:   {"peaking", regs.PeakingTime},
	ParamDecay:     {"decay", regs.DecayTime},
	ParamHoldOff:   {"holdoff", regs.TriggerHoldOff},
	ParamDCOffset:  {"dc-offset", regs.DCOffset},
}

func (p Param) valid() bool {
	return p >= 0 && int(p) < len(params)
}

func (p Param) String() string {
	if !p.valid() {
		return fmt.Sprintf("Param(%d)", int(p))
	}
	return params[p].name
}

func (p Param) addr(ch int) uint32 {
	return regs.Chan(ch, params[p].reg)
}

// ParseParam returns the parameter with the provided name.
func ParseParam(name string) (Param, error) {
	name = strings.ToLower(name)
	for i, p := range params {
		if p.name == name {
			return Param(i), nil
		}
	}
	return -1, fmt.Errorf("caen: unknown parameter %q", name)
}
