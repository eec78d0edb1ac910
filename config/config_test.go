// Configuration Tests
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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgos.toml")
	const body = `
workers = 8

[tcp]
port = 9999
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Workers != 8 {
		t.Errorf("Workers = %d, want 8", c.Workers)
	}
	if c.TCP.Port != 9999 {
		t.Errorf("TCP.Port = %d, want 9999", c.TCP.Port)
	}
	if c.TCP.Host != Default.TCP.Host {
		t.Errorf("TCP.Host = %q, want default %q", c.TCP.Host, Default.TCP.Host)
	}
	if c.Game.Rule != Default.Game.Rule {
		t.Errorf("Game.Rule = %q, want default %q", c.Game.Rule, Default.Game.Rule)
	}
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgos.toml")
	if err := os.WriteFile(path, []byte("workers = 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.WriteFile(path, []byte("workers = 6\n"), 0o644); err != nil {
		t.Fatalf("WriteFile (update): %v", err)
	}

	nc, err := c.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if nc.Workers != 6 {
		t.Errorf("Workers after reload = %d, want 6", nc.Workers)
	}
}

func TestDumpProducesParsableTOML(t *testing.T) {
	c := Default
	var buf strings.Builder
	if err := c.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(buf.String(), "workers") {
		t.Errorf("dumped config missing workers key:\n%s", buf.String())
	}
}
