// Package calibration implements the toggle/calibration gate (C11): a
// small, frequently-re-read mutable flag file plus a static per-station
// bias table used to correct forecast temperatures before probability
// mapping.
//
// Grounded on gopher-lab-kalshi-go's internal/config/config.go load pattern
// (env/file loading into a small struct) and on the atomic temp-file-then-
// rename idiom used for durable state replacement elsewhere in the pack
// (stadam23-Eve-flipper's internal/db/config.go performs the same dance for
// its own config file).
package calibration

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
)

// Point is a single timestamped temperature sample, shared between
// internal/forecast (which produces it) and this package (which may adjust
// it in place). Living here rather than in internal/forecast keeps this
// package free of a forecast -> calibration -> forecast import cycle, since
// internal/forecast.Client holds a *Gate.
type Point struct {
	Time              time.Time
	TemperatureKelvin float64
}

// State is the single mutable flag set persisted to the toggle store.
type State struct {
	StationCalibration bool `json:"station_calibration"`
}

// biasKey addresses one (station, month, local hour) correction.
type biasKey struct {
	station string
	month   time.Month
	hour    int
}

// Gate owns the toggle file path and the static bias table. It is re-read
// from disk on every Apply call; there is no in-process cache, so the
// toggle state is checked fresh at the start of every cycle.
type Gate struct {
	path string
	bias map[biasKey]float64

	warnedOnce sync.Map // station code -> struct{}, for the "no bias table" warning
}

// NewGate builds a Gate backed by the toggle file at path. The bias table
// starts empty; corrections are registered with SetBias before startup.
func NewGate(path string) *Gate {
	return &Gate{path: path, bias: map[biasKey]float64{}}
}

// SetBias registers a (month, local-hour)-indexed correction in degrees F
// for a station.
func (g *Gate) SetBias(station string, month time.Month, hour int, correctionF float64) {
	g.bias[biasKey{station, month, hour}] = correctionF
}

// Read loads the current toggle state from disk. A missing file is treated
// as the zero State (calibration off), not an error.
func (g *Gate) Read() (State, error) {
	data, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Read", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Read", fmt.Errorf("decode toggle file: %w", err))
	}
	return s, nil
}

// Set performs an atomic file replace of the toggle state and returns the
// new state.
func (g *Gate) Set(calibrationOn bool) (State, error) {
	s := State{StationCalibration: calibrationOn}

	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".toggles-*.tmp")
	if err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}
	if err := tmp.Close(); err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		return State{}, agenterr.New(agenterr.KindIO, "calibration.Set", err)
	}

	return s, nil
}

// Apply mutates points in place, adding the bias-table correction for each
// point's (month, local-hour) when calibration is active and a table entry
// exists for the station. loc is the station's local timezone: the
// (month, hour) key is always derived from points[i].Time.In(loc), never
// from the point's own embedded zone, since forecast points may arrive
// already expressed in UTC. It is a no-op (with a one-time warning) when
// calibration is on but no bias table is registered for the station.
func (g *Gate) Apply(stationCode string, points []Point, loc *time.Location) {
	state, err := g.Read()
	if err != nil {
		log.Printf("[Calibration] %s: read toggle state: %v", stationCode, err)
		return
	}
	if !state.StationCalibration {
		return
	}

	applied := false
	for i := range points {
		local := points[i].Time.In(loc)
		month := local.Month()
		hour := local.Hour()
		if corrF, ok := g.bias[biasKey{stationCode, month, hour}]; ok {
			points[i].TemperatureKelvin += corrF * 5.0 / 9.0
			applied = true
		}
	}

	if !applied {
		if _, warned := g.warnedOnce.LoadOrStore(stationCode, struct{}{}); !warned {
			log.Printf("[Calibration] warn: station_calibration active but no bias table for %s", stationCode)
		}
	}
}
