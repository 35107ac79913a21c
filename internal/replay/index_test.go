package replay

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
)

func TestIngestAndQueryByEdgeMin(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rows := []paperbroker.Row{
		{ID: "r1", Station: "LAX", BracketName: "60-61", Edge: 0.12, Size: decimal.NewFromInt(100), Outcome: "pending"},
		{ID: "r2", Station: "LAX", BracketName: "61-62", Edge: 0.03, Size: decimal.NewFromInt(50), Outcome: "pending"},
	}
	if err := idx.Ingest("2025-12-27", rows); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := idx.QueryByEdgeMin(0.10)
	if err != nil {
		t.Fatalf("QueryByEdgeMin: %v", err)
	}
	if len(got) != 1 || got[0].RowID != "r1" {
		t.Fatalf("expected only r1 to clear edge_min 0.10, got %+v", got)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rows := []paperbroker.Row{
		{ID: "r1", Station: "LAX", BracketName: "60-61", Edge: 0.12, Size: decimal.NewFromInt(100), Outcome: "pending"},
	}
	if err := idx.Ingest("2025-12-27", rows); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	rows[0].Outcome = "win"
	rows[0].RealizedPnl = decimal.NewFromInt(400)
	if err := idx.Ingest("2025-12-27", rows); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	got, err := idx.QueryByStation("LAX", "2025-12-01", "2025-12-31")
	if err != nil {
		t.Fatalf("QueryByStation: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != "win" || got[0].RealizedPnl != 400 {
		t.Fatalf("expected single updated row, got %+v", got)
	}
}
