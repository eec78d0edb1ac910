// Board Representation and Rules
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

// Package board implements the territorial board used by match games:
// legality, stone placement with string merge and capture, positional
// superko detection and Tromp-Taylor area scoring.
//
// The representation follows the mailbox convention: the board is stored
// as a (size+2)x(size+2) grid with a one-cell border of Invalid points, so
// that every orthogonal neighbor lookup is unconditional. Each occupied
// point belongs to a "string" (a maximal group of same-colored, connected
// stones); strings are tracked with a union-find-like structure rooted at
// one member cell (the parent), a cyclic linked list over the member
// cells (next), and a liberty set kept only at the parent.
package board

import (
	"fmt"
	"hash/fnv"
)

// Color is the occupant of a single point.
type Color int8

const (
	Black Color = iota
	White
	Empty
	Invalid
)

func (c Color) String() string {
	switch c {
	case Black:
		return "B"
	case White:
		return "W"
	case Empty:
		return "."
	default:
		return "#"
	}
}

// Opponent returns the other playing color. Only valid for Black/White.
func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

// Pseudo-cells used in the wire protocol and move history; never a real
// board index.
const (
	Pass   = -1
	Resign = -2

	// noCell marks "no ko point" / "no cached atari vertex". Cell 0 is
	// always part of the invalid border, so it can never be a legal
	// target and is safe to use as a sentinel.
	noCell = 0
)

// group tracks the liberties of one string, kept valid only at the
// string's parent (root) cell.
type group struct {
	count int          // number of distinct liberties
	atari int          // most recently added liberty; accurate when count==1
	libs  map[int]struct{}
}

func (g *group) clear() {
	g.count = 0
	g.atari = noCell
	g.libs = nil
}

func (g *group) reset() {
	g.count = 0
	g.atari = noCell
	g.libs = make(map[int]struct{})
}

func (g *group) add(v int) {
	if g.libs == nil {
		g.libs = make(map[int]struct{})
	}
	if _, ok := g.libs[v]; !ok {
		g.libs[v] = struct{}{}
		g.count++
		g.atari = v
	}
}

func (g *group) sub(v int) {
	if _, ok := g.libs[v]; ok {
		delete(g.libs, v)
		g.count--
		if g.count == 1 {
			for l := range g.libs {
				g.atari = l
			}
		}
	}
}

func (g *group) merge(o *group) {
	for v := range o.libs {
		if _, ok := g.libs[v]; !ok {
			g.libs[v] = struct{}{}
		}
	}
	g.count = len(g.libs)
	if g.count == 1 {
		for v := range g.libs {
			g.atari = v
		}
	}
}

// Board is one position of the game, plus enough history to answer
// positional superko queries.
type Board struct {
	size   int
	stride int
	komi   float64

	cells  []Color
	parent []int
	next   []int
	size_  []int // string size, valid at parent
	groups []group

	dir4 [4]int

	ToMove            Color
	MoveNumber        int
	LastMove          int
	ConsecutivePasses int
	koCell            int

	// history holds one hash per played position, in play order,
	// including the position just played; used for positional superko.
	history []uint64
}

// New allocates a board of the given size (no larger than 19) and komi.
func New(size int, komi float64) *Board {
	b := &Board{}
	b.Reset(size, komi)
	return b
}

// Reset wipes all state and reinitializes the padded border for a new
// size and komi.
func (b *Board) Reset(size int, komi float64) {
	if size > 19 {
		size = 19
	}
	b.size = size
	b.stride = size + 2
	b.komi = komi

	n := b.stride * b.stride
	b.cells = make([]Color, n)
	b.parent = make([]int, n)
	b.next = make([]int, n)
	b.size_ = make([]int, n)
	b.groups = make([]group, n)

	b.dir4 = [4]int{1, b.stride, -1, -b.stride}

	for v := 0; v < n; v++ {
		b.cells[v] = Invalid
		b.parent[v] = v
		b.next[v] = v
		b.groups[v].clear()
	}
	for idx := 0; idx < size*size; idx++ {
		b.cells[b.IndexToCell(idx)] = Empty
	}

	b.ToMove = Black
	b.MoveNumber = 0
	b.LastMove = noCell
	b.ConsecutivePasses = 0
	b.koCell = noCell
	b.history = nil
}

// Size returns the board's side length.
func (b *Board) Size() int { return b.size }

// Komi returns the configured komi.
func (b *Board) Komi() float64 { return b.komi }

// KoCell returns the current ko point, or 0 if there is none.
func (b *Board) KoCell() int { return b.koCell }

// --- coordinates ---

func (b *Board) vertex(x, y int) int {
	return (y+1)*b.stride + (x + 1)
}

func (b *Board) x(v int) int { return v%b.stride - 1 }
func (b *Board) y(v int) int { return v/b.stride - 1 }

// IndexToCell converts a flat 0..size*size-1 index into a padded cell.
func (b *Board) IndexToCell(idx int) int {
	return b.vertex(idx%b.size, idx/b.size)
}

// CellToIndex converts a padded cell back into a flat index.
func (b *Board) CellToIndex(v int) int {
	return b.y(v)*b.size + b.x(v)
}

// columnLetter renders a 0-based column as the external letter,
// skipping 'I' the way Go board notation does.
func columnLetter(col int) byte {
	c := byte('A' + col)
	if col >= 8 {
		c++
	}
	return c
}

func columnIndex(ch byte) (int, error) {
	if ch >= 'a' && ch <= 'z' {
		ch -= 'a' - 'A'
	}
	if ch < 'A' || ch > 'T' || ch == 'I' {
		return 0, fmt.Errorf("board: invalid column %q", ch)
	}
	col := int(ch - 'A')
	if ch > 'I' {
		col--
	}
	return col, nil
}

// ParseCoord decodes external "letter+number" text (e.g. "D4", "Q16")
// into a padded cell. "pass" and "resign" are handled by callers that
// know about the move grammar, not here.
func (b *Board) ParseCoord(text string) (int, error) {
	if len(text) < 2 {
		return 0, fmt.Errorf("board: malformed coordinate %q", text)
	}
	col, err := columnIndex(text[0])
	if err != nil {
		return 0, err
	}
	var row int
	if _, err := fmt.Sscanf(text[1:], "%d", &row); err != nil {
		return 0, fmt.Errorf("board: malformed coordinate %q", text)
	}
	if row < 1 || row > b.size || col < 0 || col >= b.size {
		return 0, fmt.Errorf("board: coordinate %q out of range", text)
	}
	return b.vertex(col, row-1), nil
}

// FormatCoord renders a padded cell as external "letter+number" text.
func (b *Board) FormatCoord(v int) string {
	return fmt.Sprintf("%c%d", columnLetter(b.x(v)), b.y(v)+1)
}

// --- legality & play ---

// Legal reports whether the side to move may play at v. Pass is always
// legal. The check mirrors the reference board exactly, including the
// early "any empty neighbor makes the move legal" exit: a placement
// bordering at least one empty point always has a liberty of its own,
// independent of the atari-count comparison used for the remaining
// neighbors.
func (b *Board) Legal(v int) bool {
	if v == Pass {
		return true
	}
	if v == b.koCell || b.cells[v] != Empty {
		return false
	}

	var stoneCnt, atariCnt [2]int
	for _, d := range b.dir4 {
		nv := v + d
		c := b.cells[nv]
		if c == Empty {
			return true
		}
		if c == Black || c == White {
			stoneCnt[c]++
			if b.groups[b.parent[nv]].count == 1 {
				atariCnt[c]++
			}
		}
	}

	me := b.ToMove
	enemy := me.Opponent()
	return atariCnt[enemy] != 0 || atariCnt[me] < stoneCnt[me]
}

func (b *Board) remove(v int) int {
	removed := 0
	cur := v
	for {
		removed++
		b.cells[cur] = Empty
		b.parent[cur] = cur
		for _, d := range b.dir4 {
			nv := cur + d
			b.groups[b.parent[nv]].add(cur)
		}
		nxt := b.next[cur]
		b.next[cur] = cur
		cur = nxt
		if cur == v {
			break
		}
	}
	return removed
}

func (b *Board) merge(v1, v2 int) {
	base := b.parent[v1]
	add := b.parent[v2]
	if b.size_[base] < b.size_[add] {
		base, add = add, base
	}

	b.groups[base].merge(&b.groups[add])
	b.size_[base] += b.size_[add]

	cur := add
	for {
		b.parent[cur] = base
		cur = b.next[cur]
		if cur == add {
			break
		}
	}
	b.next[v1], b.next[v2] = b.next[v2], b.next[v1]
}

func (b *Board) placeStone(v int) int {
	me := b.ToMove
	b.cells[v] = me
	b.parent[v] = v
	b.size_[v] = 1
	b.groups[v].reset()

	for _, d := range b.dir4 {
		nv := v + d
		if b.cells[nv] == Empty {
			b.groups[b.parent[v]].add(nv)
		} else {
			b.groups[b.parent[nv]].sub(v)
		}
	}

	for _, d := range b.dir4 {
		nv := v + d
		if b.cells[nv] == me && b.parent[nv] != b.parent[v] {
			b.merge(v, nv)
		}
	}

	removed := 0
	enemy := me.Opponent()
	for _, d := range b.dir4 {
		nv := v + d
		if b.cells[nv] == enemy && b.groups[b.parent[nv]].count == 0 {
			removed += b.remove(nv)
		}
	}
	return removed
}

// Play applies a move for the side to move if it is legal, updates
// captures, ko, move bookkeeping and the superko history, and flips the
// side to move. It returns false without changing any state if the move
// is illegal.
func (b *Board) Play(v int) bool {
	if !b.Legal(v) {
		return false
	}

	if v == Pass {
		b.ConsecutivePasses++
		b.koCell = noCell
	} else {
		removed := b.placeStone(v)
		root := b.parent[v]
		b.koCell = noCell
		if removed == 1 && b.groups[root].count == 1 && b.size_[root] == 1 {
			b.koCell = b.groups[root].atari
		}
		b.ConsecutivePasses = 0
	}

	b.LastMove = v
	b.ToMove = b.ToMove.Opponent()
	b.MoveNumber++
	b.history = append(b.history, b.hash())

	return true
}

func (b *Board) hash() uint64 {
	h := fnv.New64a()
	buf := make([]byte, len(b.cells))
	for i, c := range b.cells {
		buf[i] = byte(c)
	}
	h.Write(buf)
	return h.Sum64()
}

// Superko reports whether the position just played recreates any prior
// position's whole-board color arrangement.
func (b *Board) Superko() bool {
	n := len(b.history)
	if n == 0 {
		return false
	}
	cur := b.history[n-1]
	for i := 0; i < n-1; i++ {
		if b.history[i] == cur {
			return true
		}
	}
	return false
}

// --- scoring ---

func (b *Board) reach(color Color) int {
	seen := make([]bool, len(b.cells))
	var queue []int
	count := 0

	for v, c := range b.cells {
		if c == color {
			count++
			seen[v] = true
			queue = append(queue, v)
		}
	}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, d := range b.dir4 {
			nv := v + d
			if b.cells[nv] == Empty && !seen[nv] {
				seen[nv] = true
				count++
				queue = append(queue, nv)
			}
		}
	}
	return count
}

// FinalScore computes the Tromp-Taylor area score from Black's
// perspective: cells reachable only by Black, minus cells reachable only
// by White, minus komi. A neutral region reachable from both colors
// contributes equally to both terms and cancels out.
func (b *Board) FinalScore() float64 {
	return float64(b.reach(Black)-b.reach(White)) - b.komi
}

// Grid returns a copy of the color of every in-bounds intersection, in
// row-major order starting at the bottom-left (index 0 = A1).
func (b *Board) Grid() []Color {
	out := make([]Color, b.size*b.size)
	for idx := range out {
		out[idx] = b.cells[b.IndexToCell(idx)]
	}
	return out
}
