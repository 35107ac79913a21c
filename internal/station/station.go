// Package station holds the static registry of weather stations the engine
// trades against: code, city, coordinates, IANA timezone, and primary venue.
//
// Grounded on gopher-lab-kalshi-go's pkg/weather/station.go: a compiled Go
// table is the registry's "static tabular file" (the entire example corpus
// uses a source table, not an external config format, for this kind of
// small immutable reference data).
package station

import (
	"fmt"
	"strings"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
)

// Station is an immutable record describing one tradeable weather station.
type Station struct {
	Code         string // short code, e.g. "LAX"
	City         string
	State        string
	Latitude     float64
	Longitude    float64
	Timezone     string // IANA zone name, e.g. "America/Los_Angeles"
	PrimaryVenue string // "zeus", "polymarket", ...
	EventPrefix  string // venue event-ticker prefix, e.g. "KXHIGHLAX"

	// ObservationUpdateMinutes lists the minute-of-hour marks at which the
	// station's observation provider is known to publish a new reading
	// (used by the observation-window-bias adjustment in internal/sizing).
	ObservationUpdateMinutes []int

	loc *time.Location
}

var registry = buildRegistry()

func buildRegistry() map[string]*Station {
	raw := []*Station{
		{
			Code: "LAX", City: "Los Angeles", State: "CA",
			Latitude: 33.9425, Longitude: -118.4081,
			Timezone: "America/Los_Angeles", PrimaryVenue: "zeus",
			EventPrefix: "KXHIGHLAX", ObservationUpdateMinutes: []int{20, 50},
		},
		{
			Code: "NYC", City: "New York City", State: "NY",
			Latitude: 40.6413, Longitude: -73.7781,
			Timezone: "America/New_York", PrimaryVenue: "zeus",
			EventPrefix: "KXHIGHNY", ObservationUpdateMinutes: []int{50},
		},
		{
			Code: "CHI", City: "Chicago", State: "IL",
			Latitude: 41.9742, Longitude: -87.9073,
			Timezone: "America/Chicago", PrimaryVenue: "zeus",
			EventPrefix: "KXHIGHCHI", ObservationUpdateMinutes: []int{50},
		},
		{
			Code: "MIA", City: "Miami", State: "FL",
			Latitude: 25.7959, Longitude: -80.2870,
			Timezone: "America/New_York", PrimaryVenue: "polymarket",
			EventPrefix: "KXHIGHMIA", ObservationUpdateMinutes: []int{20, 50},
		},
		{
			Code: "AUS", City: "Austin", State: "TX",
			Latitude: 30.1975, Longitude: -97.6664,
			Timezone: "America/Chicago", PrimaryVenue: "zeus",
			EventPrefix: "KXHIGHAUS", ObservationUpdateMinutes: []int{50},
		},
		{
			Code: "PHIL", City: "Philadelphia", State: "PA",
			Latitude: 39.8721, Longitude: -75.2411,
			Timezone: "America/New_York", PrimaryVenue: "zeus",
			EventPrefix: "KXHIGHPHIL", ObservationUpdateMinutes: []int{50},
		},
		{
			Code: "DEN", City: "Denver", State: "CO",
			Latitude: 39.8561, Longitude: -104.6737,
			Timezone: "America/Denver", PrimaryVenue: "zeus",
			EventPrefix: "KXHIGHDEN", ObservationUpdateMinutes: []int{20, 50},
		},
	}

	out := make(map[string]*Station, len(raw))
	for _, s := range raw {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			// A bad timezone in the registry is a config_error: it fails
			// the whole process at startup rather than being discovered
			// mid-cycle. Panicking here (during package init, before the
			// engine ever runs) is equivalent to that, since Get/All are
			// the only way to reach this table.
			panic(agenterr.New(agenterr.KindConfig, "station.registry",
				fmt.Errorf("station %s: %w", s.Code, err)))
		}
		s.loc = loc
		out[s.Code] = s
	}
	return out
}

// Get returns the station with the given code, or a not_found error.
func Get(code string) (*Station, error) {
	s, ok := registry[strings.ToUpper(code)]
	if !ok {
		return nil, agenterr.New(agenterr.KindNotFound, "station.Get", fmt.Errorf("unknown station %q", code))
	}
	return s, nil
}

// All returns every registered station, in a stable order.
func All() []*Station {
	out := make([]*Station, 0, len(registry))
	for _, code := range orderedCodes() {
		out = append(out, registry[code])
	}
	return out
}

func orderedCodes() []string {
	codes := make([]string, 0, len(registry))
	for c := range registry {
		codes = append(codes, c)
	}
	// stable, deterministic iteration matters for the engine's
	// at-most-once-per-cycle fairness property.
	for i := 1; i < len(codes); i++ {
		for j := i; j > 0 && codes[j-1] > codes[j]; j-- {
			codes[j-1], codes[j] = codes[j], codes[j-1]
		}
	}
	return codes
}

// ByCity returns the station whose City matches name (case-insensitive), or
// a not_found error.
func ByCity(name string) (*Station, error) {
	for _, s := range registry {
		if strings.EqualFold(s.City, name) {
			return s, nil
		}
	}
	return nil, agenterr.New(agenterr.KindNotFound, "station.ByCity", fmt.Errorf("unknown city %q", name))
}

// Location returns the station's IANA time.Location.
func (s *Station) Location() *time.Location { return s.loc }

// LocalMidnight returns the timezone-aware instant of local midnight on day
// (the calendar date component of day is used; its clock/zone is ignored).
func (s *Station) LocalMidnight(day time.Time) time.Time {
	y, m, d := day.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// EventTicker returns the venue event identifier for this station's high
// temperature market on the given event day.
func (s *Station) EventTicker(eventDay time.Time) string {
	return s.EventPrefix + "-" + eventDay.In(s.loc).Format("06Jan02")
}

// CitySlug returns a filesystem/URL-safe slug for the station's city, used
// in snapshot directory layouts.
func (s *Station) CitySlug() string {
	return strings.ToLower(strings.ReplaceAll(s.City, " ", "-"))
}
