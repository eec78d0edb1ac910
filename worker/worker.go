// Worker Pool Entry
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

// Package worker implements one worker: a private ready-task queue,
// many concurrently running match drivers, and a shared channel back
// to the master for completions. Workers are isolated from each
// other by goroutines and channels rather than separate OS processes,
// the idiomatic Go analogue of that boundary.
package worker

import (
	"net"
	"time"

	"github.com/CGLemon/cgos-lite/link"
	"github.com/CGLemon/cgos-lite/match"
)

// Task is one match assignment, as placed on a worker's ready queue by
// the master.
type Task struct {
	GID      int
	PID      int
	Black    *link.Link
	White    *link.Link
	Settings match.Settings
}

// Completion reports a finished (or defensively bounced) task back to
// the master. Outcome is the zero value for a bounced task, since it
// was never played. BlackConn/WhiteConn are the bare connections
// detached from the line readers at match teardown, nil for a bounced
// task whose players were never attached to this worker in the first
// place; the master reattaches them before either player re-enters
// the waiting pool.
type Completion struct {
	GID       int
	PID       int
	Black     *link.Link
	White     *link.Link
	Outcome   match.Outcome
	BlackConn net.Conn
	WhiteConn net.Conn
}

// Worker owns one ready queue and runs many concurrent matches,
// reporting every completion on a channel shared by every worker.
type Worker struct {
	ID          int
	Ready       chan Task
	completions chan<- Completion
}

// New creates a worker that reports completions on the given shared
// channel.
func New(id int, completions chan<- Completion) *Worker {
	return &Worker{
		ID:          id,
		Ready:       make(chan Task, 32),
		completions: completions,
	}
}

// Run services the ready queue until stop is closed. It never returns
// otherwise: there is no cooperative cancellation of an in-flight
// match, only its own terminal conditions end a game.
func (w *Worker) Run(stop <-chan struct{}) {
	finished := make(chan Completion, 32)

	for {
		select {
		case <-stop:
			return
		case c := <-finished:
			w.completions <- c
			continue
		default:
		}

		select {
		case <-stop:
			return
		case c := <-finished:
			w.completions <- c
		case task := <-w.Ready:
			if task.PID != w.ID {
				// Defensive dispatch: a task that was routed to
				// the wrong worker is bounced back unplayed so the
				// master can free its players and load slot.
				w.completions <- Completion{GID: task.GID, PID: task.PID, Black: task.Black, White: task.White}
				continue
			}
			go func(t Task) {
				outcome, blackConn, whiteConn := match.Play(t.Black, t.White, t.Settings)
				finished <- Completion{
					GID: t.GID, PID: w.ID, Black: t.Black, White: t.White,
					Outcome: outcome, BlackConn: blackConn, WhiteConn: whiteConn,
				}
			}(task)
		case <-time.After(100 * time.Millisecond):
		}
	}
}
