package services

import (
	"math/rand"
	"testing"
	"time"
)

func TestRecordedAtStaysInsideWindow(t *testing.T) {
	clock := NewRecordClock(rand.NewSource(1))
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(60 * time.Minute)

	lower := start.Add(-3 * time.Minute)
	upper := end.Add(time.Hour)
	for i := 0; i < 10000; i++ {
		got := clock.RecordedAt(start, end)
		if got.Before(lower) || got.After(upper) {
			t.Fatalf("draw %d = %v outside [%v, %v]", i, got, lower, upper)
		}
	}
}

func TestRecordedAtLateBandFrequency(t *testing.T) {
	clock := NewRecordClock(rand.NewSource(42))
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	const draws = 10000
	late := 0
	afterEnd := 0
	beforeEnd := 0
	for i := 0; i < draws; i++ {
		got := clock.RecordedAt(start, end)
		switch {
		case got.Equal(end.Add(time.Hour)):
			late++
		case got.After(end):
			afterEnd++
		default:
			beforeEnd++
		}
	}

	if late < draws*3/100 || late > draws*7/100 {
		t.Fatalf("late entries = %d of %d, want roughly 5%%", late, draws)
	}
	if beforeEnd == 0 || afterEnd == 0 {
		t.Fatalf("draws never straddled the visit end: before=%d after=%d", beforeEnd, afterEnd)
	}
}

func TestRecordedAtDeterministicWithSeed(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	a := NewRecordClock(rand.NewSource(7))
	b := NewRecordClock(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		if ta, tb := a.RecordedAt(start, end), b.RecordedAt(start, end); !ta.Equal(tb) {
			t.Fatalf("draw %d diverged: %v vs %v", i, ta, tb)
		}
	}
}

func TestPrintedAtBounds(t *testing.T) {
	clock := NewRecordClock(rand.NewSource(3))
	serviceDate := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		got := clock.PrintedAt(serviceDate)
		days := int(got.Sub(serviceDate).Hours() / 24)
		if days < 1 || days > 7 {
			t.Fatalf("printed %v is %d days after service date, want 1..7", got, days)
		}
		if got.Hour() < 9 || got.Hour() > 17 {
			t.Fatalf("printed hour = %d, want office hours 9..17", got.Hour())
		}
		if got.Location() != serviceDate.Location() {
			t.Fatalf("printed location = %v, want %v", got.Location(), serviceDate.Location())
		}
	}
}
