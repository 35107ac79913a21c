// Package replay implements the replay index (C13): a derived, rebuildable
// SQLite cache over the append-only ledger files, queried by backtest/
// analysis tooling without re-parsing CSV on every run. The CSV ledger
// remains the sole source of truth; this index is always safe to delete
// and rebuild via Ingest.
//
// Adapted from gopher-lab-kalshi-go's storage/sqlite.go (WAL mode,
// migrate-on-open, typed row scan/insert pattern), re-targeted from the
// system of record to a derived cache: there is no SaveTrade/SettleTrade
// write path here, only Ingest (bulk upsert from CSV) and read queries.
package replay

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
)

// Index is the SQLite-backed derived ledger cache.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the index database at path in WAL
// mode and runs its migration.
func Open(path string) (*Index, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, agenterr.New(agenterr.KindIO, "replay.Open", fmt.Errorf("open database: %w", err))
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, agenterr.New(agenterr.KindIO, "replay.Open", fmt.Errorf("enable WAL: %w", err))
	}
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

func (idx *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_rows (
		row_id         TEXT PRIMARY KEY,
		event_day      TEXT NOT NULL,
		station        TEXT NOT NULL,
		bracket_name   TEXT NOT NULL,
		bracket_lower_f INTEGER NOT NULL,
		bracket_upper_f INTEGER NOT NULL,
		market_id      TEXT NOT NULL,
		edge           REAL NOT NULL,
		kelly_fraction REAL NOT NULL,
		size           REAL NOT NULL,
		p_model        REAL NOT NULL,
		p_market       REAL NOT NULL,
		sigma          REAL NOT NULL,
		reason         TEXT NOT NULL,
		outcome        TEXT NOT NULL,
		realized_pnl   REAL NOT NULL,
		venue          TEXT NOT NULL,
		resolved_at    DATETIME,
		winner_bracket TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_rows_event_day ON ledger_rows(event_day);
	CREATE INDEX IF NOT EXISTS idx_ledger_rows_station ON ledger_rows(station);
	CREATE INDEX IF NOT EXISTS idx_ledger_rows_edge ON ledger_rows(edge);
	`
	_, err := idx.db.Exec(schema)
	if err != nil {
		return agenterr.New(agenterr.KindIO, "replay.migrate", err)
	}
	return nil
}

// Ingest upserts every row of a single event day's ledger, keyed by row id.
// Re-running Ingest over the same file is idempotent.
func (idx *Index) Ingest(eventDay string, rows []paperbroker.Row) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return agenterr.New(agenterr.KindIO, "replay.Ingest", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO ledger_rows (
			row_id, event_day, station, bracket_name, bracket_lower_f, bracket_upper_f,
			market_id, edge, kelly_fraction, size, p_model, p_market, sigma, reason,
			outcome, realized_pnl, venue, resolved_at, winner_bracket
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(row_id) DO UPDATE SET
			outcome = excluded.outcome,
			realized_pnl = excluded.realized_pnl,
			resolved_at = excluded.resolved_at,
			winner_bracket = excluded.winner_bracket
	`)
	if err != nil {
		tx.Rollback()
		return agenterr.New(agenterr.KindIO, "replay.Ingest", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		size, _ := r.Size.Float64()
		pnl, _ := r.RealizedPnl.Float64()
		if _, err := stmt.Exec(
			r.ID, eventDay, r.Station, r.BracketName, r.BracketLowerF, r.BracketUpperF,
			r.MarketID, r.Edge, r.KellyFraction, size, r.PModel, r.PMarket, r.Sigma, r.Reason,
			r.Outcome, pnl, r.Venue, r.ResolvedAt, r.WinnerBracket,
		); err != nil {
			tx.Rollback()
			return agenterr.New(agenterr.KindIO, "replay.Ingest", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return agenterr.New(agenterr.KindIO, "replay.Ingest", err)
	}
	return nil
}

// Row is a query result row from the index.
type Row struct {
	RowID       string
	EventDay    string
	Station     string
	BracketName string
	Edge        float64
	Size        float64
	Outcome     string
	RealizedPnl float64
}

// QueryByEdgeMin returns every row with edge >= min, most recent event_day first.
func (idx *Index) QueryByEdgeMin(min float64) ([]Row, error) {
	rows, err := idx.db.Query(`
		SELECT row_id, event_day, station, bracket_name, edge, size, outcome, realized_pnl
		FROM ledger_rows WHERE edge >= ? ORDER BY event_day DESC`, min)
	if err != nil {
		return nil, agenterr.New(agenterr.KindIO, "replay.QueryByEdgeMin", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryByStation returns every row for a station within [from, to] (inclusive,
// YYYY-MM-DD), most recent event_day first.
func (idx *Index) QueryByStation(stationCode, from, to string) ([]Row, error) {
	rows, err := idx.db.Query(`
		SELECT row_id, event_day, station, bracket_name, edge, size, outcome, realized_pnl
		FROM ledger_rows WHERE station = ? AND event_day BETWEEN ? AND ?
		ORDER BY event_day DESC`, stationCode, from, to)
	if err != nil {
		return nil, agenterr.New(agenterr.KindIO, "replay.QueryByStation", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RowID, &r.EventDay, &r.Station, &r.BracketName, &r.Edge, &r.Size, &r.Outcome, &r.RealizedPnl); err != nil {
			return nil, agenterr.New(agenterr.KindIO, "replay.scanRows", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return agenterr.New(agenterr.KindIO, "replay.Open", err)
	}
	return nil
}
