// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory SQL driver serving canned rows.
//
// The driver is registered under the "fakedb" name.
package fakedb // import "github.com/go-lpc/mca/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
)

var state struct {
	mu   sync.Mutex
	rows Rows
	seq  []Rows // result sets served in order, before rows
	err  error

	query string
	args  []driver.Value
}

// Run runs f while the driver serves rows as the result of any query.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.rows = rows
	state.seq = nil
	state.err = nil
	state.query = ""
	state.args = nil

	return f(ctx)
}

// RunSeq runs f while the driver serves the i-th result set of rows
// as the result of the i-th query.
// Queries past the last result set get an empty one.
func RunSeq(ctx context.Context, rows []Rows, f func(ctx context.Context) error) error {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.rows = Rows{}
	state.seq = append([]Rows(nil), rows...)
	state.err = nil
	state.query = ""
	state.args = nil

	return f(ctx)
}

// Fail runs f while the driver fails every query with err.
func Fail(ctx context.Context, err error, f func(ctx context.Context) error) error {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.rows = Rows{}
	state.seq = nil
	state.err = err

	return f(ctx)
}

// Query returns the last query executed from within Run, together with
// its arguments.
// Query must be called from the function passed to Run.
func Query() (string, []driver.Value) {
	return state.query, state.args
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

func (c *Conn) Close() error { return nil }

func (c *Conn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("fakedb: transactions not supported")
}

type Stmt struct {
	query string
}

func (stmt *Stmt) Close() error  { return nil }
func (stmt *Stmt) NumInput() int { return -1 }

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, fmt.Errorf("fakedb: exec not supported")
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	state.query = stmt.query
	state.args = args
	if state.err != nil {
		return nil, state.err
	}
	if len(state.seq) > 0 {
		rows := state.seq[0]
		state.seq = state.seq[1:]
		return &rows, nil
	}
	return &state.rows, nil
}

// Rows is a canned result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string { return rows.Names }
func (rows *Rows) Close() error      { return nil }

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
