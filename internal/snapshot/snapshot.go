// Package snapshot implements the snapshotter (C7): append-only, atomic
// persistence of forecast, market, and decision state for one cycle.
//
// Grounded on the "write intermediate JSON and persist" idiom used
// throughout gopher-lab-kalshi-go's cmd/lahigh-backtest-* tools
// (os.WriteFile/json.Marshal result dumps), generalized here into a
// temp-file-then-rename write per file and a stable three-file-per-cycle
// directory layout.
package snapshot

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
)

// CycleTimeFormat is the sortable filename-prefix format: snapshots for one
// (station, event_day) are totally ordered by this prefix.
const CycleTimeFormat = "2006-01-02_15-04-05"

// Store roots the snapshot directory layout.
type Store struct {
	Root string // e.g. data/snapshots/dynamic (the config default)
}

// NewStore builds a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// ForecastTargetPath returns the snapshot path for the forecast file,
// under the fixed "zeus" provider directory.
func (s *Store) ForecastTargetPath(stationCode, eventDay, cycleTime string) string {
	return filepath.Join(s.Root, "zeus", stationCode, eventDay, cycleTime+".json")
}

// MarketTargetPath returns the snapshot path for the market-state file,
// under the fixed "polymarket" venue directory.
func (s *Store) MarketTargetPath(citySlug, eventDay, cycleTime string) string {
	return filepath.Join(s.Root, "polymarket", citySlug, eventDay, cycleTime+".json")
}

// DecisionsTargetPath returns the snapshot path for the decisions file.
func (s *Store) DecisionsTargetPath(stationCode, eventDay, cycleTime string) string {
	return filepath.Join(s.Root, "decisions", stationCode, eventDay, cycleTime+".json")
}

// SaveCycle writes the forecast, market, and (optionally) decisions
// snapshots for one (station, event_day, cycle_time). The decisions file is
// written only when hasDecisions is true; otherwise decisions is ignored.
// Each of the three writes is independent: a failure on one is logged and
// does not prevent the others from landing.
func (s *Store) SaveCycle(citySlug, stationCode, eventDay, cycleTime string, forecast, market, decisions any, hasDecisions bool) {
	if err := writeAtomicJSON(s.ForecastTargetPath(stationCode, eventDay, cycleTime), forecast); err != nil {
		log.Printf("[Snapshot] %s/%s: forecast write failed: %v", stationCode, eventDay, err)
	}

	if err := writeAtomicJSON(s.MarketTargetPath(citySlug, eventDay, cycleTime), market); err != nil {
		log.Printf("[Snapshot] %s/%s: market write failed: %v", stationCode, eventDay, err)
	}

	if hasDecisions {
		if err := writeAtomicJSON(s.DecisionsTargetPath(stationCode, eventDay, cycleTime), decisions); err != nil {
			log.Printf("[Snapshot] %s/%s: decisions write failed: %v", stationCode, eventDay, err)
		}
	}
}

// StampCycleTime formats t as the sortable cycle-time prefix.
func StampCycleTime(t time.Time) string {
	return t.Format(CycleTimeFormat)
}

func writeAtomicJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}
	if err := tmp.Close(); err != nil {
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}

	if _, err := os.Stat(path); err == nil {
		// Snapshots are append-only: the same cycle_time is never
		// rewritten. A pre-existing file at this exact path is a bug
		// upstream (duplicate cycle_time), not something to silently
		// overwrite.
		return agenterr.New(agenterr.KindIO, "snapshot.write", os.ErrExist)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return agenterr.New(agenterr.KindIO, "snapshot.write", err)
	}
	return nil
}
