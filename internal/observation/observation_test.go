package observation

import (
	"testing"
	"time"
)

func TestDailyHighExcludesPriorDayTail(t *testing.T) {
	loc, _ := time.LoadLocation("UTC")
	obs := []Observation{
		{Time: time.Date(2025, 11, 15, 23, 50, 0, 0, loc), TempF: 51.8},
		{Time: time.Date(2025, 11, 16, 10, 0, 0, 0, loc), TempF: 50.0},
		{Time: time.Date(2025, 11, 16, 14, 0, 0, 0, loc), TempF: 48.0},
	}
	eventDay := time.Date(2025, 11, 16, 0, 0, 0, 0, loc)

	high, ok := DailyHigh(obs, eventDay, loc, "")
	if !ok {
		t.Fatal("expected a daily high")
	}
	if high != 50.0 {
		t.Fatalf("expected 50.0, got %v", high)
	}
}

func TestDailyHighRoundsForPolymarket(t *testing.T) {
	loc := time.UTC
	obs := []Observation{
		{Time: time.Date(2025, 11, 16, 14, 0, 0, 0, loc), TempF: 50.6},
	}
	eventDay := time.Date(2025, 11, 16, 0, 0, 0, 0, loc)

	high, ok := DailyHigh(obs, eventDay, loc, "polymarket")
	if !ok {
		t.Fatal("expected a daily high")
	}
	if high != 51 {
		t.Fatalf("expected rounded 51, got %v", high)
	}
}

func TestDailyHighNoObservations(t *testing.T) {
	_, ok := DailyHigh(nil, time.Now(), time.UTC, "")
	if ok {
		t.Fatal("expected no daily high for empty observations")
	}
}

func TestTrendComputesSlope(t *testing.T) {
	obs := []Observation{
		{Time: time.Date(2025, 11, 16, 13, 0, 0, 0, time.UTC), TempF: 50},
		{Time: time.Date(2025, 11, 16, 14, 0, 0, 0, time.UTC), TempF: 52},
	}
	if got := Trend(obs); got != 2 {
		t.Fatalf("expected trend 2, got %v", got)
	}
}

func TestParseASOSObservationsSkipsMissing(t *testing.T) {
	body := "KLAX,2025-12-26 14:53,55.0\nKLAX,2025-12-26 15:53,M\n"
	obs := parseASOSObservations(body)
	if len(obs) != 1 {
		t.Fatalf("expected 1 parsed observation, got %d", len(obs))
	}
}
