// Package paperbroker implements the paper broker (C8): simulated order
// acceptance that appends trade rows to a per-event-day CSV ledger.
//
// Grounded on gopher-lab-kalshi-go's storage.SaveTrade row shape
// (storage/sqlite.go), re-expressed here as a CSV ledger in the spirit of
// its own CSV backtest trade logs (cmd/lahigh-backtest-full/main.go).
// Concurrency uses an in-process mutex per ledger path plus a
// golang.org/x/sys/unix advisory file lock so a second OS process sees the
// same serialization.
package paperbroker

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/sizing"
)

// Header is the fixed CSV column order written to every ledger file.
var Header = []string{
	"id", "timestamp", "station", "bracket_name", "bracket_lower_f", "bracket_upper_f", "market_id",
	"edge", "kelly_fraction", "size", "p_model", "p_market", "sigma", "reason",
	"outcome", "realized_pnl", "venue", "resolved_at", "winner_bracket",
}

// Row is one ledger row, pre- and post-resolution.
type Row struct {
	ID             string
	Timestamp      time.Time
	Station        string
	BracketName    string
	BracketLowerF  int
	BracketUpperF  int
	MarketID       string
	Edge           float64
	KellyFraction  float64
	Size           decimal.Decimal
	PModel         float64
	PMarket        float64
	Sigma          float64
	Reason         string

	Outcome       string // "win" | "loss" | "pending"
	RealizedPnl   decimal.Decimal
	Venue         string
	ResolvedAt    *time.Time
	WinnerBracket string
}

// Broker owns the ledger root directory and serializes ledger access.
type Broker struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBroker builds a Broker rooted at root (e.g. data/trades).
func NewBroker(root string) *Broker {
	return &Broker{root: root, locks: map[string]*sync.Mutex{}}
}

// LedgerPath returns the ledger path for an event day.
func (b *Broker) LedgerPath(eventDay string) string {
	return filepath.Join(b.root, eventDay, "paper_trades.csv")
}

func (b *Broker) lockFor(path string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.locks[path]
	if !ok {
		m = &sync.Mutex{}
		b.locks[path] = m
	}
	return m
}

// Lock takes both the in-process mutex and the OS advisory file lock for
// eventDay's ledger, so a caller outside this package (the resolver) can
// safely read-modify-write the whole file. The returned func releases both.
func (b *Broker) Lock(eventDay string) (func(), error) {
	path := b.LedgerPath(eventDay)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, agenterr.New(agenterr.KindIO, "paperbroker.Lock", err)
	}

	lock := b.lockFor(path)
	lock.Lock()

	unflock, err := flockExclusive(path)
	if err != nil {
		lock.Unlock()
		return nil, agenterr.New(agenterr.KindIO, "paperbroker.Lock", err)
	}

	return func() {
		unflock()
		lock.Unlock()
	}, nil
}

// Place appends one row per non-skipped, sized decision to the event day's
// ledger, in the order given (which matches C6's edge-descending output).
// Returns the ledger path written.
func (b *Broker) Place(stationCode, eventDay, venue string, decisions []sizing.Decision) (string, error) {
	path := b.LedgerPath(eventDay)
	lock := b.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", agenterr.New(agenterr.KindIO, "paperbroker.Place", err)
	}

	unlock, err := flockExclusive(path)
	if err != nil {
		return "", agenterr.New(agenterr.KindIO, "paperbroker.Place", err)
	}
	defer unlock()

	needsHeader := false
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", agenterr.New(agenterr.KindIO, "paperbroker.Place", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(Header); err != nil {
			return "", agenterr.New(agenterr.KindIO, "paperbroker.Place", err)
		}
	}

	now := time.Now().UTC()
	for _, d := range decisions {
		if d.Size.IsZero() || d.Reason != sizing.ReasonOK && d.Reason != sizing.ReasonKellyCapped &&
			d.Reason != sizing.ReasonMarketCapped && d.Reason != sizing.ReasonLiquidityCapped {
			continue
		}
		row := []string{
			uuid.New().String(),
			now.Format(time.RFC3339),
			stationCode,
			d.Bracket.Bracket.Name,
			fmt.Sprintf("%d", d.Bracket.Bracket.LowerF),
			fmt.Sprintf("%d", d.Bracket.Bracket.UpperF),
			d.Bracket.Bracket.MarketID,
			fmt.Sprintf("%.6f", d.Edge),
			fmt.Sprintf("%.6f", d.KellyFraction),
			d.Size.StringFixed(2),
			fmt.Sprintf("%.6f", d.PModel),
			fmt.Sprintf("%.6f", d.PMarket),
			fmt.Sprintf("%.4f", d.Bracket.Sigma),
			string(d.Reason),
			"pending", "", venue, "", "",
		}
		if err := w.Write(row); err != nil {
			return "", agenterr.New(agenterr.KindIO, "paperbroker.Place", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", agenterr.New(agenterr.KindIO, "paperbroker.Place", err)
	}
	return path, nil
}

// ReadLedger parses an existing ledger file into Rows. A missing file
// returns an empty slice, not an error.
func ReadLedger(path string) ([]Row, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, agenterr.New(agenterr.KindIO, "paperbroker.ReadLedger", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, agenterr.New(agenterr.KindIO, "paperbroker.ReadLedger", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(Header) {
			continue
		}
		rows = append(rows, rowFromRecord(rec))
	}
	return rows, nil
}

// WriteLedger overwrites path with header plus one record per row, via an
// atomic temp-file-then-rename. Used by the resolver's read-modify-write of
// a whole ledger after filling in outcomes.
func WriteLedger(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*.tmp")
	if err != nil {
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}
	for _, r := range rows {
		if err := w.Write(toRecord(r)); err != nil {
			tmp.Close()
			return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}
	if err := tmp.Close(); err != nil {
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return agenterr.New(agenterr.KindIO, "paperbroker.WriteLedger", err)
	}
	return nil
}
