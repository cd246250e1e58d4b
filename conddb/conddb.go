// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the condition and configuration
// database of the CAEN digitizers.
package conddb // import "github.com/go-lpc/mca/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Option configures the connection to the database.
type Option func(*config)

type config struct {
	drv  string
	host string
	usr  string
	pwd  string
}

func newConfig() config {
	return config{
		drv:  "mysql",
		host: "localhost",
		usr:  "username",
		pwd:  "s3cr3t",
	}
}

// WithHost sets the address of the database server.
func WithHost(addr string) Option {
	return func(cfg *config) {
		cfg.host = addr
	}
}

// WithCredentials sets the user name and password used to connect.
func WithCredentials(usr, pwd string) Option {
	return func(cfg *config) {
		cfg.usr = usr
		cfg.pwd = pwd
	}
}

// WithDriver sets the name of the SQL driver.
func WithDriver(name string) Option {
	return func(cfg *config) {
		cfg.drv = name
	}
}

// DB exposes convenience methods to easily retrieve conditions data
// and configuration data from the digitizers database.
type DB struct {
	db   *sql.DB
	name string // name of the database
}

// Open opens a connection to the database dbname.
func Open(dbname string, opts ...Option) (*DB, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open(cfg.drv, cfg.dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func (cfg config) dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", cfg.usr, cfg.pwd, cfg.host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastConfig returns the name of the most recent acquisition configuration.
func (db *DB) LastConfig(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM configs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query last config: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get last config value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for last config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving last config: %w", err)
	}

	return name, nil
}

// Boards returns the list of digitizers known to the database.
func (db *DB) Boards(ctx context.Context) ([]Board, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var boards []Board
	rows, err := db.db.QueryContext(ctx, "SELECT identifier, serial, model, addr FROM boards")
	if err != nil {
		return boards, fmt.Errorf(
			"conddb: could not run boards query: %w",
			err,
		)
	}
	defer rows.Close()

	for rows.Next() {
		var b Board
		err = rows.Scan(&b.ID, &b.Serial, &b.Model, &b.Addr)
		if err != nil {
			return boards, fmt.Errorf(
				"conddb: could not scan boards: %w",
				err,
			)
		}
		boards = append(boards, b)
	}

	if err := rows.Err(); err != nil {
		return boards, fmt.Errorf(
			"conddb: could not scan db for boards: %w",
			err,
		)
	}

	if err := ctx.Err(); err != nil {
		return boards, fmt.Errorf(
			"conddb: context error while retrieving boards: %w",
			err,
		)
	}

	return boards, nil
}

// Channels returns the channels configuration of the digitizer with the
// provided serial number, for the named configuration.
func (db *DB) Channels(ctx context.Context, cfgName string, serial uint32) ([]Channel, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		cfg = make([]Channel, 0, 16)
		err error
	)

	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT channels.* FROM channels
JOIN config_channels ON channels.identifier=config_channels.channel
JOIN configs         ON configs.identifier=config_channels.config
WHERE (
	configs.name=? AND channels.serial=?
)
ORDER BY channels.channel
`,
		cfgName, serial,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not run channels cfg query: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		var ch Channel
		err = rows.Scan(
			&ch.PrimaryID, &ch.Serial, &ch.Channel, &ch.Enabled,
			&ch.Threshold, &ch.InputRise,
			&ch.TrapRise, &ch.TrapFlat, &ch.Peaking, &ch.Decay,
			&ch.HoldOff, &ch.DCOffset,
			&ch.PresetCounts, &ch.PresetReal, &ch.PresetLive,
		)
		if err != nil {
			return cfg, fmt.Errorf("conddb: could not scan row %d for channels cfg: %w", i, err)
		}
		i++

		cfg = append(cfg, ch)
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for channels cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving channels cfg: %w", err)
	}

	return cfg, nil
}
