// Rating Management Tests
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

package ratings

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "ratings.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetDefaultsToInitialRating(t *testing.T) {
	s := openTestStore(t)
	if got := s.Get("nobody"); got != initial {
		t.Errorf("Get(unseen) = %v, want %v", got, initial)
	}
}

func TestRecordEqualRatingsWinnerGainsLoserLoses(t *testing.T) {
	s := openTestStore(t)
	newBlack, newWhite := s.Record("alice", "bob", 1)
	if newBlack <= initial {
		t.Errorf("winner rating = %v, want > %v", newBlack, initial)
	}
	if newWhite >= initial {
		t.Errorf("loser rating = %v, want < %v", newWhite, initial)
	}
	if got := s.Get("alice"); got != newBlack {
		t.Errorf("Get(alice) = %v, want %v", got, newBlack)
	}
}

func TestRecordDrawLeavesEqualRatingsUnchanged(t *testing.T) {
	s := openTestStore(t)
	newBlack, newWhite := s.Record("alice", "bob", 0.5)
	if newBlack != initial || newWhite != initial {
		t.Errorf("drawn equal ratings = (%v, %v), want (%v, %v)", newBlack, newWhite, initial, initial)
	}
}

func TestScoreFromResult(t *testing.T) {
	cases := []struct {
		result string
		want   float64
		ok     bool
	}{
		{"B+Resign", 1, true},
		{"W+7.5", 0, true},
		{"0", 0.5, true},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ScoreFromResult(c.result)
		if got != c.want || ok != c.ok {
			t.Errorf("ScoreFromResult(%q) = (%v, %v), want (%v, %v)", c.result, got, ok, c.want, c.ok)
		}
	}
}
