// Master Dispatcher
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

// Package master runs the single dispatcher loop that accepts client
// connections, talks to the manager, reads operator commands, hands
// matches out to workers in load order, and reaps their completions.
// The loop is single-threaded by construction: every field it touches
// is only ever read or written from inside Run's own goroutine, so
// none of it needs a lock. The one exception is the worker pool
// itself, which is handed its own goroutines up front and talked to
// exclusively through channels.
package master

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/CGLemon/cgos-lite/link"
	"github.com/CGLemon/cgos-lite/match"
	"github.com/CGLemon/cgos-lite/ratings"
	"github.com/CGLemon/cgos-lite/worker"
)

// Debug is the second, usually-silent logger for chatter that would
// otherwise drown out the user-facing log: discarded by default,
// redirected to stderr by EnableDebug when the operator turns on
// Config.Debug.
var Debug = log.New(io.Discard, "[debug] ", log.LstdFlags)

// EnableDebug toggles where Debug writes. Called once at startup from
// the configured Debug flag; there is no running reload of this
// toggle (config.Config.Reload re-reads the file but does not re-run
// this).
func EnableDebug(enabled bool) {
	if enabled {
		Debug.SetOutput(os.Stderr)
	} else {
		Debug.SetOutput(io.Discard)
	}
}

type clientEntry struct {
	link   *link.Link
	status string // "waiting" or "playing"
	gid    int
	pid    int
}

type workerEntry struct {
	w    *worker.Worker
	load int
}

// Master owns every client connection, the worker pool, and the
// operator command queue.
type Master struct {
	ln              net.Listener
	managerPassword string
	defaults        match.Settings
	ratings         *ratings.Store

	newConns   chan net.Conn
	stdinLines chan string
	stop       chan struct{}

	workers     []*workerEntry
	completions chan worker.Completion

	clients      map[int64]*clientEntry
	waiting      map[int64]bool
	shouldRemove map[int64]bool
	games        map[int]worker.Task
	managerFID   int64
	nextFID      int64
	nextGID      int
	commands     []string
}

// New constructs a master, starts its worker pool, and begins
// accepting connections on ln. numWorkers <= 0 means "auto": the pool
// is sized to the logical CPU count, with a floor of 1. store may be
// nil, in which case ratings are never looked up or updated.
func New(ln net.Listener, numWorkers int, managerPassword string, defaults match.Settings, store *ratings.Store) *Master {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	completions := make(chan worker.Completion, 64)
	m := &Master{
		ln:              ln,
		managerPassword: managerPassword,
		defaults:        defaults,
		ratings:         store,
		newConns:        make(chan net.Conn, 16),
		stdinLines:      make(chan string, 16),
		stop:            make(chan struct{}),
		completions:     completions,
		clients:         make(map[int64]*clientEntry),
		waiting:         make(map[int64]bool),
		shouldRemove:    make(map[int64]bool),
		games:           make(map[int]worker.Task),
	}

	for i := 0; i < numWorkers; i++ {
		w := worker.New(i, completions)
		m.workers = append(m.workers, &workerEntry{w: w})
		go w.Run(m.stop)
	}

	go m.acceptLoop()
	return m
}

func (m *Master) acceptLoop() {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		m.newConns <- conn
	}
}

// WatchStdin starts reading lines from r and feeding them into the
// operator command queue. It is optional: a headless deployment need
// never call it.
func (m *Master) WatchStdin(r io.Reader) {
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			m.stdinLines <- scanner.Text()
		}
	}()
}

// Run drives the accept/manager/local-input/command/completion cycle
// until a "quit" command or Stop is processed.
func (m *Master) Run() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.acceptAndHygiene()
		m.managerIntake()
		m.readLocalInput()
		m.executeOneCommand()
		m.completionIntake()

		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the dispatcher loop after its current cycle.
func (m *Master) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

func (m *Master) acceptAndHygiene() {
	select {
	case conn := <-m.newConns:
		m.register(conn)
	default:
	}

	if fid := m.randomWaitingEngineFID(); fid != 0 {
		Debug.Printf("master: probing waiting fid %d", fid)
		m.clients[fid].link.Probe()
	}

	for fid, c := range m.clients {
		if c.link.Crashed {
			m.shouldRemove[fid] = true
		}
	}
	for fid := range m.shouldRemove {
		Debug.Printf("master: removing fid %d on hygiene pass", fid)
		m.remove(fid)
	}
	m.shouldRemove = make(map[int64]bool)
}

func (m *Master) register(conn net.Conn) {
	l := link.New(conn)
	if err := l.Handshake(m.managerPassword); err != nil {
		log.Printf("master: handshake failed: %v", err)
	}

	m.nextFID++
	l.FID = m.nextFID

	if l.Role == link.Manager && !l.Crashed {
		if m.managerFID != 0 {
			log.Printf("master: rejecting second manager %q", l.Name)
			l.Crashed = true
		} else {
			m.managerFID = l.FID
		}
	}

	m.clients[l.FID] = &clientEntry{link: l, status: "waiting"}
	if !l.Crashed {
		m.waiting[l.FID] = true
	}
	log.Printf("master: connection %d (%q) registered as %s", l.FID, l.Name, l.Role)
}

func (m *Master) remove(fid int64) {
	c, ok := m.clients[fid]
	if !ok {
		return
	}
	c.link.Close()
	delete(m.clients, fid)
	delete(m.waiting, fid)
	if fid == m.managerFID {
		m.managerFID = 0
	}
}

func (m *Master) randomWaitingEngineFID() int64 {
	var candidates []int64
	for fid := range m.waiting {
		if c := m.clients[fid]; c != nil && c.link.Role == link.Engine {
			candidates = append(candidates, fid)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	return candidates[rand.Intn(len(candidates))]
}

func (m *Master) managerIntake() {
	if m.managerFID == 0 {
		return
	}
	c, ok := m.clients[m.managerFID]
	if !ok {
		return
	}

	q := c.link.Queries()
	if q == nil {
		return
	}
	if _, ok := q["client_status"]; ok {
		c.link.Status(m.statusJSON())
	}
	if v, ok := q["command"].(string); ok && v != "" {
		m.commands = append(m.commands, v)
	}
}

func (m *Master) statusJSON() string {
	out := make(map[string]map[string]interface{}, len(m.clients))
	for fid, c := range m.clients {
		entry := map[string]interface{}{
			"name":   c.link.Name,
			"type":   c.link.Role.String(),
			"status": c.status,
		}
		if c.status == "playing" {
			entry["gid"] = c.gid
		}
		if m.ratings != nil {
			entry["rating"] = m.ratings.Get(c.link.Name)
		}
		out[strconv.FormatInt(fid, 10)] = entry
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (m *Master) readLocalInput() {
	select {
	case line := <-m.stdinLines:
		if line != "" {
			m.commands = append(m.commands, line)
		}
	default:
	}
}

func (m *Master) executeOneCommand() {
	if len(m.commands) == 0 {
		return
	}
	cmd := m.commands[0]
	m.commands = m.commands[1:]

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "quit":
		m.doQuit()
	case "close":
		m.doClose(fields[1:])
	case "file":
		m.doFile(fields[1:])
	case "show":
		m.doShow(fields)
	case "match":
		m.doMatch(fields)
	default:
		log.Printf("master: unrecognized command %q", cmd)
	}
}

func (m *Master) doQuit() {
	for _, c := range m.clients {
		c.link.Close()
	}
	log.Print("master: terminating")
	m.Stop()
}

func (m *Master) doClose(args []string) {
	for _, a := range args {
		fid, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			log.Printf("master: close: bad fid %q", a)
			continue
		}
		m.shouldRemove[fid] = true
	}
}

// doFile reads one or more files of newline-separated commands and
// enqueues every non-blank line, letting an operator batch a whole
// script of matches in one request.
func (m *Master) doFile(paths []string) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("master: cannot read command file %s: %v", path, err)
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				m.commands = append(m.commands, line)
			}
		}
	}
}

func (m *Master) doShow(fields []string) {
	if len(fields) < 2 {
		log.Print("master: show: missing parameter")
		return
	}
	switch fields[1] {
	case "client":
		for fid, c := range m.clients {
			rating := "-"
			if m.ratings != nil {
				rating = strconv.FormatFloat(m.ratings.Get(c.link.Name), 'f', 1, 64)
			}
			log.Printf("    fid %d: %s (%s) status=%s gid=%d pid=%d rating=%s", fid, c.link.Name, c.link.Role, c.status, c.gid, c.pid, rating)
		}
	case "process":
		for _, w := range m.workers {
			log.Printf("    pid %d: load=%d", w.w.ID, w.load)
		}
	case "game":
		for gid, t := range m.games {
			log.Printf("    gid %d: pid=%d black=%s white=%s", gid, t.PID, t.Black.Name, t.White.Name)
		}
	default:
		log.Printf("master: show: unknown parameter %q", fields[1])
	}
}

func (m *Master) doMatch(fields []string) {
	if len(fields) < 2 {
		log.Print("master: match: missing parameter")
		return
	}

	settings := m.defaults
	settings.GID = m.nextGID

	var blackFID, whiteFID int64

	switch fields[1] {
	case "random":
		var candidates []int64
		for fid := range m.waiting {
			if c := m.clients[fid]; c != nil && c.link.Role == link.Engine {
				candidates = append(candidates, fid)
			}
		}
		if len(candidates) < 2 {
			log.Print("master: match random: not enough waiting engines")
			return
		}
		rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		blackFID, whiteFID = candidates[0], candidates[1]

	case "fid":
		if len(fields) < 4 {
			log.Print("master: match fid: missing black/white fid")
			return
		}
		bfid, err1 := strconv.ParseInt(fields[2], 10, 64)
		wfid, err2 := strconv.ParseInt(fields[3], 10, 64)
		if err1 != nil || err2 != nil || bfid == wfid {
			log.Print("master: match fid: invalid arguments")
			return
		}
		if !m.waiting[bfid] || !m.waiting[wfid] {
			log.Print("master: match fid: requested clients are not waiting")
			return
		}
		blackFID, whiteFID = bfid, wfid
		applyMatchOverrides(&settings, fields[4:])

	default:
		log.Printf("master: match: unknown parameter %q", fields[1])
		return
	}

	delete(m.waiting, blackFID)
	delete(m.waiting, whiteFID)

	blackLink := m.clients[blackFID].link
	whiteLink := m.clients[whiteFID].link

	pid := m.pickWorker()
	task := worker.Task{GID: settings.GID, PID: pid, Black: blackLink, White: whiteLink, Settings: settings}

	m.workers[pid].load++
	m.workers[pid].w.Ready <- task

	m.clients[blackFID].status, m.clients[blackFID].gid, m.clients[blackFID].pid = "playing", settings.GID, pid
	m.clients[whiteFID].status, m.clients[whiteFID].gid, m.clients[whiteFID].pid = "playing", settings.GID, pid
	m.games[settings.GID] = task

	log.Printf("master: match %d assigned to worker %d: %s(B) vs %s(W)", settings.GID, pid, blackLink.Name, whiteLink.Name)
	m.nextGID++
}

// applyMatchOverrides reads trailing key/value pairs off a "match
// fid" command. An unrecognized key consumes its value but changes
// nothing, matching the best-effort parsing the rest of the command
// surface uses.
func applyMatchOverrides(s *match.Settings, kv []string) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, val := kv[i], kv[i+1]
		switch key {
		case "bsize":
			if n, err := strconv.Atoi(val); err == nil {
				s.BoardSize = n
			}
		case "komi":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				s.Komi = f
			}
		case "mtime":
			if n, err := strconv.Atoi(val); err == nil {
				s.MainTimeSeconds = n
			}
		case "rule":
			s.Rule = val
		case "sgf":
			s.ResumeRecordPath = val
		case "store":
			s.StoreDirectory = val
		}
	}
}

// pickWorker returns the id of the worker with the strictly lowest
// current load, ties broken by the lowest id. The first worker found
// with a strictly smaller load than the incumbent replaces it, so an
// exact tie never displaces the lower-numbered worker already held.
func (m *Master) pickWorker() int {
	best := 0
	for i, w := range m.workers {
		if w.load < m.workers[best].load {
			best = i
		}
	}
	Debug.Printf("master: pickWorker chose pid %d (load=%d)", m.workers[best].w.ID, m.workers[best].load)
	return m.workers[best].w.ID
}

func (m *Master) completionIntake() {
	select {
	case c := <-m.completions:
		for i, w := range m.workers {
			if w.w.ID == c.PID {
				m.workers[i].load--
				break
			}
		}

		m.rewaiting(c.Black, c.BlackConn)
		m.rewaiting(c.White, c.WhiteConn)
		delete(m.games, c.GID)

		if m.ratings != nil && c.Black != nil && c.White != nil && isRatedEnd(c.Outcome.End) {
			if blackScore, ok := ratings.ScoreFromResult(c.Outcome.Result); ok {
				newBlack, newWhite := m.ratings.Record(c.Black.Name, c.White.Name, blackScore)
				Debug.Printf("master: match %d rated: %s=%.1f %s=%.1f", c.GID, c.Black.Name, newBlack, c.White.Name, newWhite)
			}
		}

		log.Printf("master: match %d finished: %s", c.GID, c.Outcome.Result)
	default:
	}
}

// isRatedEnd reports whether a match's terminal condition represents
// a completed, refereed game that should update ratings. socket_error
// and invalid_rule both produce the same literal "0" result string a
// genuine double_pass draw does, but neither is an actual finished
// game, so they are excluded here rather than left for
// ratings.ScoreFromResult to (mis)classify as a draw.
func isRatedEnd(end string) bool {
	switch end {
	case "timeout", "resign", "illegal", "double_pass":
		return true
	default:
		return false
	}
}

// rewaiting returns a just-finished player to the waiting pool,
// indexed strictly by the completion's own fields — never by an
// outer loop variable left over from a previous iteration. conn is
// the player's bare connection, detached by the match driver at
// teardown; it is reattached here so the client is usable again
// (probes, the next match) before it re-enters the waiting set.
func (m *Master) rewaiting(l *link.Link, conn net.Conn) {
	if l == nil {
		return
	}
	ce, ok := m.clients[l.FID]
	if !ok {
		return
	}
	if conn != nil {
		l.Attach(conn)
	}
	ce.status, ce.gid, ce.pid = "waiting", 0, 0
	m.waiting[l.FID] = true
}
