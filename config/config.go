// Configuration Specification and Management
//
// Copyright (c) 2026  CGLemon
//
// This file is part of cgos-lite.
//
// cgos-lite is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// cgos-lite is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with cgos-lite. If not, see
// <http://www.gnu.org/licenses/>

// Package config loads and reloads the server's TOML configuration
// from a single file. Reload re-reads that file on request; no signal
// handler is installed to trigger it.
package config

import (
	"io"
	"log"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/CGLemon/cgos-lite/match"
)

// TCP holds the listening address for client connections.
type TCP struct {
	Host string `toml:"host"`
	Port uint   `toml:"port"`
}

// Game holds the default settings applied to a match whose operator
// command did not override them.
type Game struct {
	BoardSize       int     `toml:"board_size"`
	Komi            float64 `toml:"komi"`
	MainTimeSeconds int     `toml:"main_time_seconds"`
	Rule            string  `toml:"rule"`
}

// Store holds where finished and in-progress game records are
// written.
type Store struct {
	RecordDirectory string `toml:"record_directory"`
}

// Database holds the path to the rating database.
type Database struct {
	File string `toml:"file"`
}

// Config is the full server configuration.
type Config struct {
	Debug           bool     `toml:"debug"`
	ManagerPassword string   `toml:"manager_password"`
	// Workers is the size of the worker pool. A value <= 0 means
	// "auto": the caller substitutes the logical CPU count.
	Workers  int      `toml:"workers"`
	TCP      TCP      `toml:"tcp"`
	Game     Game     `toml:"game"`
	Store    Store    `toml:"store"`
	Database Database `toml:"database"`

	file string
}

// Default is the configuration used for any key a loaded file leaves
// unset. Workers is left at 0 ("auto") rather than a fixed count, so
// an operator who never sets it gets a pool sized to the machine.
var Default = Config{
	Debug:           false,
	ManagerPassword: "",
	Workers:         0,
	TCP:             TCP{Host: "0.0.0.0", Port: 1919},
	Game: Game{
		BoardSize:       19,
		Komi:            7.5,
		MainTimeSeconds: 1800,
		Rule:            "chinese-like",
	},
	Store:    Store{RecordDirectory: "records"},
	Database: Database{File: "ratings.db"},
}

// Load reads and decodes a TOML file on top of Default, remembering
// its path for a later Reload.
func Load(name string) (*Config, error) {
	conf := Default

	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := toml.NewDecoder(file).Decode(&conf); err != nil {
		return nil, err
	}
	conf.file = name
	return &conf, nil
}

// Reload re-reads the file this Config was loaded from. If it was
// never loaded from a file (e.g. pure defaults), it returns itself
// unchanged.
func (c *Config) Reload() (*Config, error) {
	if c.file == "" {
		return c, nil
	}
	nc, err := Load(c.file)
	if err != nil {
		log.Print(err)
		return c, err
	}
	return nc, nil
}

// Dump writes the effective configuration back out as TOML, for the
// -dump-config flag.
func (c *Config) Dump(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Settings converts the game defaults into the shape the match
// package expects. GID and any per-match overrides (resume path,
// store directory override) are filled in by the caller.
func (c *Config) Settings() match.Settings {
	return match.Settings{
		BoardSize:       c.Game.BoardSize,
		Komi:            c.Game.Komi,
		MainTimeSeconds: c.Game.MainTimeSeconds,
		Rule:            c.Game.Rule,
		StoreDirectory:  c.Store.RecordDirectory,
	}
}
