package availability

import (
	"testing"
	"time"
)

func TestOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	cases := []struct {
		name                   string
		aStart, aEnd           time.Time
		bStart, bEnd           time.Time
		want                   bool
	}{
		{"disjoint", at(9, 0), at(9, 30), at(10, 0), at(10, 30), false},
		{"identical", at(9, 0), at(9, 30), at(9, 0), at(9, 30), true},
		{"a starts inside b", at(9, 15), at(9, 45), at(9, 0), at(9, 30), true},
		{"a ends inside b", at(8, 45), at(9, 15), at(9, 0), at(9, 30), true},
		{"a contains b", at(8, 0), at(10, 0), at(9, 0), at(9, 30), true},
		{"touching end-to-start is free", at(9, 0), at(9, 30), at(9, 30), at(10, 0), false},
		{"touching start-to-end is free", at(9, 30), at(10, 0), at(9, 0), at(9, 30), false},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
			t.Errorf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSlotStarts_StepsToWindowEnd(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(8 * time.Hour)
	windowEnd := day.Add(10 * time.Hour)

	starts := SlotStarts(windowStart, windowEnd, 30*time.Minute)
	if len(starts) != 4 {
		t.Fatalf("expected 4 starts, got %d", len(starts))
	}
	// The last candidate begins inside the window even though a 30-minute
	// consultation would end exactly at the window boundary.
	if !starts[3].Equal(day.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected last start 09:30, got %s", starts[3].Format(time.RFC3339))
	}
}

func TestSlotStarts_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := SlotStarts(now, now, 30*time.Minute); got != nil {
		t.Fatalf("expected no starts for empty window, got %d", len(got))
	}
	if got := SlotStarts(now, now.Add(time.Hour), 0); got != nil {
		t.Fatalf("expected no starts for zero step, got %d", len(got))
	}
}

func TestClockWithin_HalfOpen(t *testing.T) {
	loc := time.UTC
	start := 9 * time.Hour
	end := 12 * time.Hour

	lastMinute := time.Date(2026, 3, 2, 11, 59, 0, 0, loc)
	if !ClockWithin(lastMinute, start, end) {
		t.Fatal("11:59 should be inside [09:00,12:00)")
	}
	boundary := time.Date(2026, 3, 2, 12, 0, 0, 0, loc)
	if ClockWithin(boundary, start, end) {
		t.Fatal("12:00 should be outside [09:00,12:00)")
	}
}

func TestWindowOnDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	day := time.Date(2026, 3, 2, 15, 4, 5, 0, loc)
	start, end := WindowOnDay(day, 8*time.Hour, 12*time.Hour, loc)
	if start.Hour() != 8 || start.Minute() != 0 {
		t.Fatalf("expected 08:00 local, got %s", start)
	}
	if !end.Equal(start.Add(4 * time.Hour)) {
		t.Fatalf("expected 4h window, got %s..%s", start, end)
	}
}
