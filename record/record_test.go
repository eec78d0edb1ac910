// Game Record Serialization Tests
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

package record

import (
	"reflect"
	"testing"
)

func TestRoundTripCoordinatesAndPasses(t *testing.T) {
	g := &Game{
		BoardSize: 9,
		Komi:      7.5,
		MainTime:  300,
		Black:     "alice",
		White:     "bob",
		Date:      "2026-07-31",
		Result:    "W+7.5",
		History: []Move{
			{Text: "D4", TimeLeft: 298},
			{Text: "Q16", TimeLeft: 295},
			{Text: "pass", TimeLeft: 250},
			{Text: "pass", TimeLeft: 240},
		},
	}
	// Q16 is out of range for a 9x9 board; use a 19x19 board instead
	// so every coordinate is valid.
	g.BoardSize = 19

	text := Format(g)
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.BoardSize != g.BoardSize {
		t.Errorf("BoardSize = %d, want %d", got.BoardSize, g.BoardSize)
	}
	if got.Komi != g.Komi {
		t.Errorf("Komi = %v, want %v", got.Komi, g.Komi)
	}

	want := []Move{
		{Text: "D4", TimeLeft: 298},
		{Text: "Q16", TimeLeft: 295},
		{Text: "pass", TimeLeft: 250},
		{Text: "pass", TimeLeft: 240},
	}
	if !reflect.DeepEqual(got.History, want) {
		t.Errorf("History round trip = %#v, want %#v", got.History, want)
	}
}

func TestRoundTripColumnAcrossTheGap(t *testing.T) {
	// J sits just past the skipped I; both sides of the gap must
	// decode back identically.
	g := &Game{BoardSize: 19, Komi: 0.5, History: []Move{
		{Text: "H9", TimeLeft: 10},
		{Text: "J9", TimeLeft: 9},
	}}
	got, err := Parse(Format(g))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"H9", "J9"}
	for i, mv := range got.History {
		if mv.Text != want[i] {
			t.Errorf("move %d = %q, want %q", i, mv.Text, want[i])
		}
	}
}

func TestAnalysisSurvivesRoundTrip(t *testing.T) {
	g := &Game{BoardSize: 9, Komi: 7.5, History: []Move{
		{Text: "D4", TimeLeft: 100, Analysis: `{"comment":"hi","pv":["D4","Q4"]}`},
	}}
	text := Format(g)
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.History) != 1 {
		t.Fatalf("History = %#v, want 1 entry", got.History)
	}
	if got.History[0].Analysis != g.History[0].Analysis {
		t.Errorf("Analysis = %q, want %q", got.History[0].Analysis, g.History[0].Analysis)
	}
}

func TestEscapingBracketsAndBackslashes(t *testing.T) {
	g := &Game{BoardSize: 9, Komi: 0, History: []Move{
		{Text: "D4", TimeLeft: 1, Analysis: `{"comment":"a] b\\c"}`},
	}}
	got, err := Parse(Format(g))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.History[0].Analysis != g.History[0].Analysis {
		t.Errorf("Analysis = %q, want %q", got.History[0].Analysis, g.History[0].Analysis)
	}
}
