// Match Driver
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

// Package match drives exactly one game between two client links: the
// setup handshake, the alternating genmove/play exchange, the per-side
// clock, and classification into one of the five terminal conditions.
package match

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CGLemon/cgos-lite/board"
	"github.com/CGLemon/cgos-lite/link"
	"github.com/CGLemon/cgos-lite/record"
)

// Settings configures one match. BoardSize and Komi may be overridden
// by a resumed record.
type Settings struct {
	GID              int
	BoardSize        int
	Komi             float64
	MainTimeSeconds  int
	Rule             string
	ResumeRecordPath string
	StoreDirectory   string
}

// Outcome is the classified result of a finished match.
type Outcome struct {
	End    string // timeout, resign, illegal, double_pass, invalid_rule, socket_error
	Result string // e.g. "B+Time", "W+7.5", "0"
}

func colorChar(c board.Color) string {
	if c == board.Black {
		return "b"
	}
	return "w"
}

func colorLetter(c board.Color) string {
	if c == board.Black {
		return "B"
	}
	return "W"
}

func timeoutOutcome(winner board.Color) Outcome {
	return Outcome{End: "timeout", Result: colorLetter(winner) + "+Time"}
}

func resignOutcome(winner board.Color) Outcome {
	return Outcome{End: "resign", Result: colorLetter(winner) + "+Resign"}
}

func illegalOutcome(winner board.Color) Outcome {
	return Outcome{End: "illegal", Result: colorLetter(winner) + "+Illegal"}
}

func scoreOutcome(score float64) Outcome {
	switch {
	case score > 0.001:
		return Outcome{End: "double_pass", Result: "B+" + strconv.FormatFloat(score, 'f', -1, 64)}
	case score < -0.001:
		return Outcome{End: "double_pass", Result: "W+" + strconv.FormatFloat(-score, 'f', -1, 64)}
	default:
		return Outcome{End: "double_pass", Result: "0"}
	}
}

// parseMoveText decodes one genmove reply into its move text, board
// vertex, and (if the peer supports analysis) a re-serialized compact
// analysis blob. An undecodable coordinate is reported as an error so
// the caller can classify it as an illegal move without indexing the
// board with a bogus vertex.
func parseMoveText(b *board.Board, raw string, supportsAnalysis bool) (moveText string, vertex int, analysis string, err error) {
	trimmed := strings.TrimSpace(raw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", 0, "", fmt.Errorf("match: empty genmove reply")
	}
	move := fields[0]

	if supportsAnalysis {
		if rest := strings.TrimSpace(trimmed[len(move):]); rest != "" {
			var v interface{}
			if json.Unmarshal([]byte(rest), &v) == nil {
				if enc, merr := json.Marshal(v); merr == nil {
					analysis = string(enc)
				}
			}
		}
	}

	switch strings.ToLower(move) {
	case "pass":
		return "pass", board.Pass, analysis, nil
	case "resign":
		return "resign", board.Resign, analysis, nil
	default:
		v, perr := b.ParseCoord(move)
		if perr != nil {
			return move, 0, analysis, perr
		}
		return b.FormatCoord(v), v, analysis, nil
	}
}

func atomicWriteFile(path, data string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Play runs one match to completion and returns its classified
// outcome along with both players' bare connections, detached from
// their line readers. The caller (the worker) is responsible for
// carrying these connections back to the master so it can reattach
// them before either player is dispatched again.
func Play(black, white *link.Link, s Settings) (Outcome, net.Conn, net.Conn) {
	rec := &record.Game{
		BoardSize: s.BoardSize,
		Komi:      s.Komi,
		MainTime:  s.MainTimeSeconds,
		Black:     black.Name,
		White:     white.Name,
	}

	if s.ResumeRecordPath != "" {
		if data, err := os.ReadFile(s.ResumeRecordPath); err == nil {
			if g, perr := record.Parse(string(data)); perr == nil {
				s.BoardSize = g.BoardSize
				s.Komi = g.Komi
				rec.BoardSize = g.BoardSize
				rec.Komi = g.Komi
				rec.History = g.History
				log.Printf("match %d: replaying %d prefix moves from %s", s.GID, len(g.History), s.ResumeRecordPath)
			} else {
				log.Printf("match %d: could not parse resume record %s: %v", s.GID, s.ResumeRecordPath, perr)
			}
		}
	}

	b := board.New(s.BoardSize, s.Komi)

	date := time.Now().Format("2006-01-02-15:04:05")
	storeDir := s.StoreDirectory
	if storeDir == "" {
		storeDir = "."
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		log.Printf("match %d: cannot create store directory %s: %v", s.GID, storeDir, err)
	}
	baseName := fmt.Sprintf("%s-%s(B)-%s(W)-g%d", date, black.Name, white.Name, s.GID)
	recordPath := filepath.Join(storeDir, baseName+".sgf")

	players := map[board.Color]*link.Link{board.Black: black, board.White: white}
	timeLeft := map[board.Color]float64{
		board.Black: float64(s.MainTimeSeconds),
		board.White: float64(s.MainTimeSeconds),
	}

	mainTimeMsec := int64(s.MainTimeSeconds) * 1000
	black.Setup(s.GID, s.BoardSize, s.Komi, mainTimeMsec, white.Name, black.Name)
	white.Setup(s.GID, s.BoardSize, s.Komi, mainTimeMsec, white.Name, black.Name)

	for _, mv := range rec.History {
		side := b.ToMove
		_, vertex, _, _ := parseMoveText(b, mv.Text, false)
		b.Play(vertex)
		black.PlayMove(colorChar(side), mv.Text, int64(timeLeft[side]*1000))
		white.PlayMove(colorChar(side), mv.Text, int64(timeLeft[side]*1000))
	}

	var outcome Outcome
	lastCheckpoint := time.Now()

loop:
	for {
		side := b.ToMove
		opp := side.Opponent()
		mover := players[side]

		start := time.Now()
		resp, analysisFromLink, gerr := mover.Genmove(colorChar(side), int64(timeLeft[side]*1000))
		timeLeft[side] -= time.Since(start).Seconds()

		if timeLeft[side] < 0 {
			outcome = timeoutOutcome(opp)
			break
		}
		if gerr != nil {
			outcome = Outcome{End: "socket_error", Result: "0"}
			break
		}

		moveText, vertex, analysis, perr := parseMoveText(b, resp, mover.SupportsAnalysis)
		if analysisFromLink != "" {
			analysis = analysisFromLink
		}

		if perr == nil && vertex == board.Resign {
			outcome = resignOutcome(opp)
			break
		}

		played := perr == nil && b.Play(vertex)
		// Superko is only enforced when the configured rule is
		// anything other than chinese-like; this mirrors the
		// reference scheduler exactly, quirky as it looks.
		superkoViolation := perr == nil && vertex != board.Pass && s.Rule != "chinese-like" && b.Superko()
		if !played || superkoViolation {
			outcome = illegalOutcome(opp)
			break
		}

		rec.History = append(rec.History, record.Move{
			Text:     moveText,
			TimeLeft: int(timeLeft[side]),
			Analysis: analysis,
		})

		if time.Since(lastCheckpoint) > 5*time.Second {
			if err := atomicWriteFile(recordPath, record.Format(rec)); err != nil {
				log.Printf("match %d: checkpoint write failed: %v", s.GID, err)
			}
			lastCheckpoint = time.Now()
		}

		players[opp].PlayMove(colorChar(side), moveText, int64(timeLeft[opp]*1000))

		if b.ConsecutivePasses >= 2 {
			if s.Rule == "chinese-like" {
				outcome = scoreOutcome(b.FinalScore())
			} else {
				outcome = Outcome{End: "invalid_rule", Result: "0"}
			}
			break loop
		}
	}

	rec.Result = outcome.Result
	rec.Date = date

	for _, p := range []*link.Link{black, white} {
		p.Gameover(date, outcome.Result, "")
	}
	blackConn := black.Detach()
	whiteConn := white.Detach()

	if err := atomicWriteFile(recordPath, record.Format(rec)); err != nil {
		log.Printf("match %d: final record write failed: %v", s.GID, err)
	}

	return outcome, blackConn, whiteConn
}
