package slots

import (
	"testing"
	"time"
)

func TestCandidates_ThirtyMinuteGrid(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	starts := g.Candidates(day, 30*time.Minute)
	// 09:00 through 16:30 inclusive.
	if len(starts) != 16 {
		t.Fatalf("expected 16 candidates, got %d", len(starts))
	}
	if !starts[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first candidate 09:00, got %s", starts[0].Format(time.RFC3339))
	}
	if !starts[len(starts)-1].Equal(day.Add(16*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last candidate 16:30, got %s", starts[len(starts)-1].Format(time.RFC3339))
	}
}

func TestCandidates_LongDurationStopsEarlier(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	starts := g.Candidates(day, 120*time.Minute)
	// A two hour booking must end by 17:00, so the last start is 15:00.
	if !starts[len(starts)-1].Equal(day.Add(15 * time.Hour)) {
		t.Fatalf("expected last candidate 15:00, got %s", starts[len(starts)-1].Format(time.RFC3339))
	}
	for _, s := range starts {
		if s.Add(120 * time.Minute).After(day.Add(17 * time.Hour)) {
			t.Fatalf("candidate %s runs past closing", s.Format(time.RFC3339))
		}
	}
}

func TestCandidates_Deterministic(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	first := g.Candidates(day, 60*time.Minute)
	second := g.Candidates(day, 60*time.Minute)
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("candidate %d differs: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestContains(t *testing.T) {
	g := DefaultGrid()
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	if !g.Contains(day.Add(9*time.Hour), 30*time.Minute) {
		t.Fatal("09:00+30m should be inside the grid")
	}
	if g.Contains(day.Add(8*time.Hour+30*time.Minute), 30*time.Minute) {
		t.Fatal("08:30 is before opening")
	}
	if g.Contains(day.Add(16*time.Hour+30*time.Minute), 60*time.Minute) {
		t.Fatal("16:30+60m runs past closing")
	}
	if !g.Contains(day.Add(16*time.Hour), 60*time.Minute) {
		t.Fatal("16:00+60m ends exactly at closing and should fit")
	}
}
