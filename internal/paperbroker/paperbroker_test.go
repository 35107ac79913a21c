package paperbroker

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/probability"
	"github.com/weatherdesk/dynamic-trader/internal/sizing"
)

func decision(size int64, reason sizing.Reason) sizing.Decision {
	return sizing.Decision{
		Bracket: probability.BracketProbability{
			Bracket: marketdata.Bracket{MarketID: "m1", Name: "60-61", LowerF: 60, UpperF: 61},
			Sigma:   2,
		},
		Edge:          0.1,
		KellyFraction: 0.2,
		Size:          decimal.NewFromInt(size),
		Reason:        reason,
		PModel:        0.6,
		PMarket:       0.5,
	}
}

func TestPlaceWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	b := NewBroker(dir)

	path, err := b.Place("LAX", "2025-12-27", "zeus", []sizing.Decision{decision(100, sizing.ReasonOK)})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	rows, err := ReadLedger(path)
	if err != nil {
		t.Fatalf("ReadLedger: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Outcome != "pending" {
		t.Fatalf("expected pending outcome, got %s", rows[0].Outcome)
	}
	if !rows[0].Size.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected size 100, got %v", rows[0].Size)
	}
}

func TestPlaceSkipsZeroSizeDecisions(t *testing.T) {
	dir := t.TempDir()
	b := NewBroker(dir)

	path, err := b.Place("LAX", "2025-12-27", "zeus", []sizing.Decision{
		decision(0, sizing.ReasonBelowEdgeMin),
		decision(50, sizing.ReasonOK),
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	rows, _ := ReadLedger(path)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row (zero-size skipped), got %d", len(rows))
	}
}

func TestPlaceAppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	b := NewBroker(dir)

	b.Place("LAX", "2025-12-27", "zeus", []sizing.Decision{decision(10, sizing.ReasonOK)})
	path, _ := b.Place("LAX", "2025-12-27", "zeus", []sizing.Decision{decision(20, sizing.ReasonOK)})

	rows, err := ReadLedger(path)
	if err != nil {
		t.Fatalf("ReadLedger: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows across appends, got %d", len(rows))
	}
}

func TestReadLedgerMissingFileIsEmpty(t *testing.T) {
	rows, err := ReadLedger("/nonexistent/path/paper_trades.csv")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rows != nil {
		t.Fatalf("expected nil rows, got %v", rows)
	}
}
