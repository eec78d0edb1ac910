// Client Link Protocol
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

// Package link implements the line-oriented protocol spoken over a
// single client connection: the opening handshake and every
// post-handshake request/response exchange. A Link owns one
// net.Conn. Because the raw socket has to move between the master and
// a worker's match driver, the buffered reader used for line exchanges
// is a separate, detachable piece of state: Detach tears it down and
// returns the bare connection so it can cross an ownership boundary;
// Attach rebuilds it on the other side.
package link

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Role identifies what kind of peer completed the handshake.
type Role int

const (
	Engine Role = iota
	Manager
)

func (r Role) String() string {
	if r == Manager {
		return "manager"
	}
	return "engine"
}

// LinkError wraps an I/O failure on a link with the operation that
// triggered it. Any LinkError latches Crashed on the owning Link.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string { return fmt.Sprintf("link: %s: %v", e.Op, e.Err) }
func (e *LinkError) Unwrap() error { return e.Err }

// Link is one client connection past the handshake.
type Link struct {
	FID              int64
	Name             string
	Role             Role
	SupportsAnalysis bool
	Crashed          bool

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// New wraps an already-accepted connection, attached and ready for the
// handshake.
func New(conn net.Conn) *Link {
	l := &Link{conn: conn}
	l.r = bufio.NewReader(conn)
	return l
}

// Detach tears down the line reader and returns the bare connection,
// making the Link safe to hand across an ownership boundary (e.g. into
// a task record bound for a worker).
func (l *Link) Detach() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	conn := l.conn
	l.r = nil
	l.conn = nil
	return conn
}

// Attach rebuilds the line reader around conn, making exchanges
// possible again after a Detach/transfer.
func (l *Link) Attach(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
	l.r = bufio.NewReader(conn)
}

// Conn returns the underlying connection without detaching, e.g. so a
// caller can Close it.
func (l *Link) Conn() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// Close closes the underlying connection, if attached. It is safe to
// call on an already-detached Link.
func (l *Link) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (l *Link) fail(op string, err error) error {
	l.Crashed = true
	return &LinkError{Op: op, Err: err}
}

func (l *Link) send(line string) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return l.fail("send", fmt.Errorf("not attached"))
	}
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return l.fail("send", err)
	}
	return nil
}

func (l *Link) receive() (string, error) {
	l.mu.Lock()
	r := l.r
	l.mu.Unlock()
	if r == nil {
		return "", l.fail("receive", fmt.Errorf("not attached"))
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return "", l.fail("receive", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (l *Link) exchange(line string) (string, error) {
	if err := l.send(line); err != nil {
		return "", err
	}
	return l.receive()
}

// Handshake runs the server-initiated opening conversation: protocol
// version, username, password. The fixed "protocol genmove_analyze"
// string is sent verbatim before the peer has identified itself as
// engine or manager; this is how the reference wire format works and
// is preserved exactly.
func (l *Link) Handshake(managerPassword string) error {
	resp, err := l.exchange("protocol genmove_analyze")
	if err != nil {
		return err
	}
	fields := strings.Fields(resp)
	if len(fields) == 0 {
		return l.fail("handshake", fmt.Errorf("empty protocol reply"))
	}
	switch fields[0] {
	case "e1":
		l.Role = Engine
		for _, f := range fields[1:] {
			if f == "genmove_analyze" {
				l.SupportsAnalysis = true
			}
		}
	case "m1":
		l.Role = Manager
	default:
		return l.fail("handshake", fmt.Errorf("unsupported client version %q", fields[0]))
	}

	name, err := l.exchange("username")
	if err != nil {
		return err
	}
	l.Name = strings.TrimSpace(name)

	password, err := l.exchange("password")
	if err != nil {
		return err
	}
	if l.Role == Manager && password != managerPassword {
		l.Crashed = true
		return fmt.Errorf("link: bad manager password from %q", l.Name)
	}
	return nil
}

// Probe issues a harmless username exchange purely to detect a silent
// disconnect; any failure already latches Crashed, so the result is
// ignored by design.
func (l *Link) Probe() {
	l.exchange("username")
}

// Info sends a one-way informational line.
func (l *Link) Info(text string) error {
	return l.send("info " + text)
}

// Setup sends the one-way game initialization line.
func (l *Link) Setup(gid int, boardSize int, komi float64, mainTimeMsec int64, nameA, nameB string) error {
	return l.send(fmt.Sprintf("setup %d %d %s %d %s %s",
		gid, boardSize, formatKomi(komi), mainTimeMsec, nameA, nameB))
}

// PlayMove broadcasts a move one-way, telling the peer what was just
// played and how much time the opponent has left.
func (l *Link) PlayMove(color, move string, timeLeftMsec int64) error {
	return l.send(fmt.Sprintf("play %s %s %d", color, move, timeLeftMsec))
}

// Genmove requests a move and returns it, along with a re-serialized
// compact analysis blob when the peer declared analysis support and
// sent one; a malformed analysis tail is silently dropped.
func (l *Link) Genmove(color string, timeLeftMsec int64) (move, analysis string, err error) {
	resp, err := l.exchange(fmt.Sprintf("genmove %s %d", color, timeLeftMsec))
	if err != nil {
		return "", "", err
	}
	move, analysis = splitMoveAnalysis(resp, l.SupportsAnalysis)
	return move, analysis, nil
}

// Gameover reports the match result and waits for the acknowledgement.
func (l *Link) Gameover(date, result, errText string) error {
	_, err := l.exchange(fmt.Sprintf("gameover %s %s %s", date, result, errText))
	return err
}

// Queries is the manager-only request: the peer replies with a JSON
// object of requested server actions. A parse failure drops the query
// silently, per the query-is-best-effort error policy.
func (l *Link) Queries() map[string]interface{} {
	resp, err := l.exchange("queries")
	if err != nil {
		return nil
	}
	var v map[string]interface{}
	if json.Unmarshal([]byte(resp), &v) != nil {
		return nil
	}
	return v
}

// Status pushes the manager-only client-status snapshot.
func (l *Link) Status(payload string) error {
	return l.send("status " + payload)
}

func splitMoveAnalysis(resp string, supportsAnalysis bool) (move, analysis string) {
	resp = strings.TrimSpace(resp)
	parts := strings.SplitN(resp, " ", 2)
	move = parts[0]
	if len(parts) <= 1 || !supportsAnalysis {
		return move, ""
	}
	var v interface{}
	if err := json.Unmarshal([]byte(parts[1]), &v); err != nil {
		return move, ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return move, ""
	}
	return move, string(b)
}

func formatKomi(komi float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", komi), "0"), ".")
}
