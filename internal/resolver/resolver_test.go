package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/probability"
	"github.com/weatherdesk/dynamic-trader/internal/sizing"
)

func settledServer(t *testing.T, winnerTicker string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		yes, no := "0", "1"
		winnerPrices := fmt.Sprintf(`["%s","%s"]`, no, yes)
		loserPrices := fmt.Sprintf(`["%s","%s"]`, yes, no)
		fmt.Fprintf(w, `{"markets":[
			{"ticker":"%s","outcome_prices":%s},
			{"ticker":"m-loser","outcome_prices":%s}
		]}`, winnerTicker, winnerPrices, loserPrices)
	}))
}

func TestResolveWinningTradePnL(t *testing.T) {
	srv := settledServer(t, "m-winner")
	defer srv.Close()

	dir := t.TempDir()
	broker := paperbroker.NewBroker(dir)

	decisions := []sizing.Decision{{
		Bracket: probability.BracketProbability{
			Bracket: marketdata.Bracket{MarketID: "m-winner", Name: "51-52", LowerF: 51, UpperF: 52},
			Sigma:   3,
		},
		Edge:          0.1,
		KellyFraction: 0.1,
		Size:          decimal.NewFromInt(100),
		Reason:        sizing.ReasonOK,
		PModel:        0.6,
		PMarket:       0.20,
	}}

	path, err := broker.Place("LAX", "2025-12-27", "zeus", decisions)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	market := marketdata.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := Resolve(ctx, broker, market, "2025-12-27", "LAX")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if report.RowsResolved != 1 {
		t.Fatalf("expected 1 row resolved, got %d", report.RowsResolved)
	}

	rows, _ := paperbroker.ReadLedger(path)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Outcome != "win" {
		t.Fatalf("expected win, got %s", rows[0].Outcome)
	}
	if rows[0].WinnerBracket != "51-52" {
		t.Fatalf("expected winner_bracket %q, got %q", "51-52", rows[0].WinnerBracket)
	}
	want := decimal.NewFromFloat(400.00)
	if !rows[0].RealizedPnl.Equal(want) {
		t.Fatalf("expected realized_pnl 400.00, got %s", rows[0].RealizedPnl)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	srv := settledServer(t, "m-winner")
	defer srv.Close()

	dir := t.TempDir()
	broker := paperbroker.NewBroker(dir)
	decisions := []sizing.Decision{{
		Bracket: probability.BracketProbability{
			Bracket: marketdata.Bracket{MarketID: "m-winner", Name: "51-52", LowerF: 51, UpperF: 52},
			Sigma:   3,
		},
		Edge: 0.1, KellyFraction: 0.1,
		Size: decimal.NewFromInt(100), Reason: sizing.ReasonOK,
		PModel: 0.6, PMarket: 0.20,
	}}
	broker.Place("LAX", "2025-12-27", "zeus", decisions)

	market := marketdata.New(srv.URL)
	ctx := context.Background()

	if _, err := Resolve(ctx, broker, market, "2025-12-27", "LAX"); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	report, err := Resolve(ctx, broker, market, "2025-12-27", "LAX")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if report.RowsUnchanged != 1 || report.RowsResolved != 0 {
		t.Fatalf("expected resolve to be a no-op on the second pass, got %+v", report)
	}
}

func TestResolvePendingWhenEventStillOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"markets":[{"ticker":"m-winner","outcome_prices":[]}]}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	broker := paperbroker.NewBroker(dir)
	decisions := []sizing.Decision{{
		Bracket: probability.BracketProbability{
			Bracket: marketdata.Bracket{MarketID: "m-winner", Name: "51-52", LowerF: 51, UpperF: 52},
		},
		Size: decimal.NewFromInt(50), Reason: sizing.ReasonOK, PMarket: 0.2,
	}}
	broker.Place("LAX", "2025-12-27", "zeus", decisions)

	market := marketdata.New(srv.URL)
	report, err := Resolve(context.Background(), broker, market, "2025-12-27", "LAX")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if report.RowsPending != 1 {
		t.Fatalf("expected 1 pending row, got %+v", report)
	}
}
