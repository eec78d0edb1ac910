// Rating Management
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

// Package ratings maintains Elo ratings for every name that has ever
// finished a match, serialized through a single action channel the
// way the reference server serializes every write to its SQLite file
// through one database manager.
package ratings

import (
	"database/sql"
	"log"
	"math"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const (
	maxDiff = 400
	eps     = 0.0001
	kFactor = 20
	initial = 1500
)

const createTable = `CREATE TABLE IF NOT EXISTS ratings (
	name  TEXT PRIMARY KEY,
	score REAL NOT NULL,
	games INTEGER NOT NULL DEFAULT 0
)`

const upsert = `INSERT INTO ratings(name, score, games) VALUES (?, ?, 1)
	ON CONFLICT(name) DO UPDATE SET score=excluded.score, games=games+1`

type action func(*sql.DB) error

// Store is an in-memory rating table backed by a SQLite file. Reads
// come straight from the in-memory table; writes are applied in
// memory first, then handed to a single background goroutine that
// owns the database handle.
type Store struct {
	act chan action
	db  *sql.DB

	mu     sync.RWMutex
	scores map[string]float64
}

// Open opens (creating if necessary) the SQLite file at path and
// starts the background writer.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?mode=rwc")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		act:    make(chan action, 16),
		db:     db,
		scores: make(map[string]float64),
	}
	if err := s.preload(); err != nil {
		log.Printf("ratings: could not preload scores: %v", err)
	}
	go s.run()
	return s, nil
}

func (s *Store) preload() error {
	rows, err := s.db.Query("SELECT name, score FROM ratings")
	if err != nil {
		return err
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var name string
		var score float64
		if err := rows.Scan(&name, &score); err != nil {
			return err
		}
		s.scores[name] = score
	}
	return rows.Err()
}

func (s *Store) run() {
	for act := range s.act {
		if err := act(s.db); err != nil {
			log.Printf("ratings: write failed: %v", err)
		}
	}
}

// Get returns name's current rating, defaulting to the initial rating
// for a name that has never played.
func (s *Store) Get(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if score, ok := s.scores[name]; ok {
		return score
	}
	return initial
}

func (s *Store) scoreLocked(name string) float64 {
	if score, ok := s.scores[name]; ok {
		return score
	}
	s.scores[name] = initial
	return initial
}

// Record applies the Elo update for one finished game to both
// players and persists the result, returning the two new ratings.
// blackScore is 1 for a black win, 0 for a white win, 0.5 for a draw.
func (s *Store) Record(black, white string, blackScore float64) (newBlack, newWhite float64) {
	s.mu.Lock()
	b := s.scoreLocked(black)
	w := s.scoreLocked(white)

	diff := math.Max(-maxDiff, math.Min(w-b, maxDiff))
	eb := 1 / (1 + math.Pow(10, diff/maxDiff))
	ew := 1 / (1 + math.Pow(10, -diff/maxDiff))
	if math.Abs((eb+ew)-1) > eps {
		log.Printf("ratings: numerical instability detected: %f + %f != 1.0", eb, ew)
		s.mu.Unlock()
		return b, w
	}

	newBlack = b + kFactor*(blackScore-eb)
	newWhite = w + kFactor*((1-blackScore)-ew)
	s.scores[black] = newBlack
	s.scores[white] = newWhite
	s.mu.Unlock()

	done := make(chan struct{})
	s.act <- func(db *sql.DB) error {
		defer close(done)
		if _, err := db.Exec(upsert, black, newBlack); err != nil {
			return err
		}
		_, err := db.Exec(upsert, white, newWhite)
		return err
	}
	<-done
	return newBlack, newWhite
}

// Close stops the background writer and closes the database handle.
func (s *Store) Close() error {
	close(s.act)
	return s.db.Close()
}

// ScoreFromResult maps a classified match result string ("B+...",
// "W+...", "0") to the black-side score Record expects. ok is false
// for a result string it does not recognize. Note that "0" is also
// the literal result string for a socket_error or invalid_rule
// outcome, neither of which is an actually-finished game; this
// function has no way to tell those apart from a genuine double_pass
// draw by the string alone, so callers must already have filtered out
// socket_error and invalid_rule match ends before calling it (see
// master.isRatedEnd).
func ScoreFromResult(result string) (blackScore float64, ok bool) {
	switch {
	case result == "0":
		return 0.5, true
	case strings.HasPrefix(result, "B+"):
		return 1, true
	case strings.HasPrefix(result, "W+"):
		return 0, true
	default:
		return 0, false
	}
}
