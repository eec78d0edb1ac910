// Master Dispatcher Tests
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

package master

import (
	"net"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/CGLemon/cgos-lite/link"
	"github.com/CGLemon/cgos-lite/match"
	"github.com/CGLemon/cgos-lite/ratings"
	"github.com/CGLemon/cgos-lite/worker"
)

func newTestMaster(t *testing.T, numWorkers int) *Master {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	m := New(ln, numWorkers, "secret", match.Settings{BoardSize: 9, Komi: 7.5, MainTimeSeconds: 60, Rule: "chinese-like", StoreDirectory: t.TempDir()}, nil)
	t.Cleanup(m.Stop)
	return m
}

func addWaitingClient(m *Master, fid int64, name string) {
	l := &link.Link{FID: fid, Name: name, Role: link.Engine}
	m.clients[fid] = &clientEntry{link: l, status: "waiting"}
	m.waiting[fid] = true
}

func TestNewDefaultsWorkerCountToLogicalCPUs(t *testing.T) {
	m := newTestMaster(t, 0)
	if got, want := len(m.workers), runtime.NumCPU(); got != want {
		t.Errorf("len(workers) = %d, want NumCPU() = %d", got, want)
	}
}

func TestIsRatedEndExcludesSocketErrorAndInvalidRule(t *testing.T) {
	cases := []struct {
		end  string
		want bool
	}{
		{"timeout", true},
		{"resign", true},
		{"illegal", true},
		{"double_pass", true},
		{"socket_error", false},
		{"invalid_rule", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isRatedEnd(c.end); got != c.want {
			t.Errorf("isRatedEnd(%q) = %v, want %v", c.end, got, c.want)
		}
	}
}

func TestCompletionIntakeSkipsRatingOnSocketError(t *testing.T) {
	store, err := ratings.Open(filepath.Join(t.TempDir(), "ratings.db"))
	if err != nil {
		t.Fatalf("ratings.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	m := New(ln, 1, "secret", match.Settings{BoardSize: 9, Komi: 7.5, MainTimeSeconds: 60, Rule: "chinese-like"}, store)
	t.Cleanup(m.Stop)

	addWaitingClient(m, 1, "alice")
	addWaitingClient(m, 2, "bob")
	m.clients[1].status, m.clients[2].status = "playing", "playing"
	delete(m.waiting, 1)
	delete(m.waiting, 2)

	// Give the players unequal ratings first: a draw between equal
	// ratings changes neither, so only then would a wrongly rated draw
	// show up as a changed rating.
	store.Record("alice", "bob", 1)
	before := store.Get("alice")

	// A "0" result with an End of socket_error must not be mistaken
	// for a genuine double_pass draw and recorded as a rated draw.
	m.completions <- worker.Completion{
		GID: 1, PID: 0, Black: m.clients[1].link, White: m.clients[2].link,
		Outcome: match.Outcome{End: "socket_error", Result: "0"},
	}
	m.completionIntake()

	if store.Get("alice") != before {
		t.Fatalf("a socket_error result changed alice's rating")
	}

	m.clients[1].status, m.clients[2].status = "playing", "playing"
	delete(m.waiting, 1)
	delete(m.waiting, 2)
	m.completions <- worker.Completion{
		GID: 2, PID: 0, Black: m.clients[1].link, White: m.clients[2].link,
		Outcome: match.Outcome{End: "resign", Result: "B+Resign"},
	}
	m.completionIntake()

	if store.Get("alice") == before {
		t.Errorf("a decisive resign result should have updated alice's rating")
	}
}

func TestPickWorkerChoosesStrictMinimumLoad(t *testing.T) {
	m := newTestMaster(t, 3)
	m.workers[0].load = 5
	m.workers[1].load = 2
	m.workers[2].load = 5

	if got := m.pickWorker(); got != 1 {
		t.Errorf("pickWorker() = %d, want 1 (true minimum, not near-maximum)", got)
	}
}

func TestPickWorkerTiesBreakToLowestID(t *testing.T) {
	m := newTestMaster(t, 4)
	m.workers[0].load = 3
	m.workers[1].load = 1
	m.workers[2].load = 1
	m.workers[3].load = 3

	if got := m.pickWorker(); got != 1 {
		t.Errorf("pickWorker() = %d, want 1 (first of the tied minimum)", got)
	}
}

func TestApplyMatchOverridesSetsRecognizedKeys(t *testing.T) {
	s := match.Settings{BoardSize: 19, Komi: 7.5, MainTimeSeconds: 1800, Rule: "chinese-like"}
	applyMatchOverrides(&s, []string{"bsize", "13", "komi", "6.5", "rule", "japanese", "unknownkey", "ignored"})

	if s.BoardSize != 13 {
		t.Errorf("BoardSize = %d, want 13", s.BoardSize)
	}
	if s.Komi != 6.5 {
		t.Errorf("Komi = %v, want 6.5", s.Komi)
	}
	if s.Rule != "japanese" {
		t.Errorf("Rule = %q, want japanese", s.Rule)
	}
	if s.MainTimeSeconds != 1800 {
		t.Errorf("MainTimeSeconds = %d, want unchanged 1800", s.MainTimeSeconds)
	}
}

func TestDoMatchFidAssignsAndMarksClientsPlaying(t *testing.T) {
	m := newTestMaster(t, 2)
	addWaitingClient(m, 1, "alice")
	addWaitingClient(m, 2, "bob")

	m.doMatch([]string{"match", "fid", "1", "2"})

	if m.clients[1].status != "playing" || m.clients[2].status != "playing" {
		t.Fatalf("clients not marked playing: %+v %+v", m.clients[1], m.clients[2])
	}
	if m.waiting[1] || m.waiting[2] {
		t.Errorf("matched clients should be removed from the waiting set")
	}
	if _, ok := m.games[0]; !ok {
		t.Errorf("games map missing gid 0 after first match")
	}
}

func TestCompletionIntakeRewaitsByOwnFieldsNotStaleVariable(t *testing.T) {
	m := newTestMaster(t, 2)
	addWaitingClient(m, 1, "alice")
	addWaitingClient(m, 2, "bob")
	addWaitingClient(m, 3, "carol")
	addWaitingClient(m, 4, "dave")

	// Two concurrently-finishing games, reported in an order where a
	// stale-outer-variable bug would cross-wire which fid reopens.
	m.clients[1].status, m.clients[2].status = "playing", "playing"
	m.clients[3].status, m.clients[4].status = "playing", "playing"
	delete(m.waiting, 1)
	delete(m.waiting, 2)
	delete(m.waiting, 3)
	delete(m.waiting, 4)

	first := worker.Completion{GID: 10, PID: 0, Black: m.clients[1].link, White: m.clients[2].link, Outcome: match.Outcome{Result: "B+Resign"}}
	second := worker.Completion{GID: 11, PID: 1, Black: m.clients[3].link, White: m.clients[4].link, Outcome: match.Outcome{Result: "W+Resign"}}

	m.completions <- second
	m.completionIntake()
	m.completions <- first
	m.completionIntake()

	for _, fid := range []int64{1, 2, 3, 4} {
		if !m.waiting[fid] {
			t.Errorf("fid %d not returned to waiting set", fid)
		}
		if m.clients[fid].status != "waiting" {
			t.Errorf("fid %d status = %q, want waiting", fid, m.clients[fid].status)
		}
	}
}
