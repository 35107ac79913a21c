package station

import (
	"testing"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
)

func TestGetKnownStation(t *testing.T) {
	s, err := Get("lax")
	if err != nil {
		t.Fatalf("Get(lax): %v", err)
	}
	if s.Code != "LAX" || s.City != "Los Angeles" {
		t.Fatalf("unexpected station: %+v", s)
	}
}

func TestGetUnknownStation(t *testing.T) {
	_, err := Get("ZZZ")
	if !agenterr.Is(err, agenterr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestByCity(t *testing.T) {
	s, err := ByCity("new york city")
	if err != nil {
		t.Fatalf("ByCity: %v", err)
	}
	if s.Code != "NYC" {
		t.Fatalf("expected NYC, got %s", s.Code)
	}
}

func TestAllStableOrder(t *testing.T) {
	a := All()
	b := All()
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i].Code != b[i].Code {
			t.Fatalf("unstable order at %d: %s vs %s", i, a[i].Code, b[i].Code)
		}
	}
}

func TestLocalMidnight(t *testing.T) {
	s, _ := Get("DEN")
	day := time.Date(2025, 11, 17, 14, 30, 0, 0, time.UTC)
	mid := s.LocalMidnight(day)
	if mid.Hour() != 0 || mid.Minute() != 0 {
		t.Fatalf("expected midnight, got %v", mid)
	}
	if mid.Location().String() != "America/Denver" {
		t.Fatalf("expected station-local zone, got %v", mid.Location())
	}
}

func TestEventTicker(t *testing.T) {
	s, _ := Get("LAX")
	day := time.Date(2025, 12, 27, 0, 0, 0, 0, s.Location())
	ticker := s.EventTicker(day)
	if ticker != "KXHIGHLAX-25Dec27" {
		t.Fatalf("unexpected ticker: %s", ticker)
	}
}
