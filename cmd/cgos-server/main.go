// Entry point
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

// Command cgos-server runs the match dispatcher: it loads a TOML
// configuration, opens the rating database, starts the worker pool,
// and accepts client connections until told to quit.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/CGLemon/cgos-lite/config"
	"github.com/CGLemon/cgos-lite/master"
	"github.com/CGLemon/cgos-lite/ratings"
)

const defaultConfName = "cgos.toml"

func main() {
	confFile := flag.String("conf", defaultConfName, "path to the TOML configuration file")
	dumpConf := flag.Bool("dump-config", false, "print the default configuration and exit")
	flag.Parse()

	if *dumpConf {
		if err := config.Default.Dump(os.Stdout); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}

	conf, err := config.Load(*confFile)
	if err != nil {
		if os.IsNotExist(err) && *confFile == defaultConfName {
			conf = &config.Default
		} else {
			log.Fatal(err)
		}
	}

	master.EnableDebug(conf.Debug)

	store, err := ratings.Open(conf.Database.File)
	if err != nil {
		log.Fatalf("cannot open rating database %s: %v", conf.Database.File, err)
	}
	defer store.Close()

	addr := fmt.Sprintf("%s:%d", conf.TCP.Host, conf.TCP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("listening on %s", addr)

	m := master.New(ln, conf.Workers, conf.ManagerPassword, conf.Settings(), store)
	m.WatchStdin(os.Stdin)
	m.Run()

	// Run only returns once a "quit" command has been processed.
	os.Exit(1)
}
