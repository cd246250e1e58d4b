// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mca

import (
	"runtime/debug"
	"testing"
)

func TestVersion(t *testing.T) {
	for _, tc := range []struct {
		name string
		b    *debug.BuildInfo
		vers string
		sum  string
	}{
		{name: "nil"},
		{
			name: "main",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "github.com/go-lpc/mca", Version: "v0.1.0", Sum: "h1:abc"},
			},
			vers: "v0.1.0",
			sum:  "h1:abc",
		},
		{
			name: "dep",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
				Deps: []*debug.Module{
					{Path: "go-hep.org/x/hep", Version: "v0.32.1"},
					{Path: "github.com/go-lpc/mca", Version: "v0.2.0", Sum: "h1:def"},
				},
			},
			vers: "v0.2.0",
			sum:  "h1:def",
		},
		{
			name: "replace-path",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
				Deps: []*debug.Module{
					{
						Path: "github.com/go-lpc/mca", Version: "v0.2.0",
						Replace: &debug.Module{Path: "../mca"},
					},
				},
			},
			vers: "../mca",
		},
		{
			name: "replace-version",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
				Deps: []*debug.Module{
					{
						Path: "github.com/go-lpc/mca", Version: "v0.2.0",
						Replace: &debug.Module{
							Path: "example.org/mca", Version: "v0.2.1", Sum: "h1:xyz",
						},
					},
				},
			},
			vers: "example.org/mca v0.2.1",
			sum:  "h1:xyz",
		},
		{
			name: "missing",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vers, sum := versionOf(tc.b)
			if vers != tc.vers || sum != tc.sum {
				t.Fatalf("invalid version: got=(%q, %q), want=(%q, %q)", vers, sum, tc.vers, tc.sum)
			}
		})
	}
}
