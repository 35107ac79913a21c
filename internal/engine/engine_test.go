package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/calibration"
	"github.com/weatherdesk/dynamic-trader/internal/forecast"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/observation"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/snapshot"
	"github.com/weatherdesk/dynamic-trader/internal/sizing"
	"github.com/weatherdesk/dynamic-trader/internal/station"
)

// testVenueServer fakes the forecast and market endpoints with a single
// bracket priced well below the forecast's implied probability, so one
// decision with a non-zero size always comes out the other end.
func testVenueServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{
				"series": []map[string]any{
					{"time": "2026-07-30T14:00:00-07:00", "temperature_kelvin": 303.15},
					{"time": "2026-07-30T15:00:00-07:00", "temperature_kelvin": 304.15},
				},
			},
		})
	})

	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"markets":[
			{"ticker":"KXHIGHLAX-26JUL30-B88","title":"87-89°F","status":"active","yes_bid":20,"yes_ask":22}
		]}`)
	})

	mux.HandleFunc("/markets/KXHIGHLAX-26JUL30-B88", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"market":{"ticker":"KXHIGHLAX-26JUL30-B88","status":"active","yes_bid":20,"yes_ask":22}}`)
	})

	mux.HandleFunc("/observations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	return httptest.NewServer(mux)
}

func testEngine(t *testing.T, srv *httptest.Server, dataDir string) *Engine {
	t.Helper()

	gate := calibration.NewGate(filepath.Join(dataDir, "toggle.json"))
	forecastClient := forecast.New(srv.URL, gate, forecast.WithHTTPClient(srv.Client()))
	marketClient := marketdata.New(srv.URL, marketdata.WithHTTPClient(srv.Client()))
	observationClient := observation.New(srv.URL)
	snapshots := snapshot.NewStore(filepath.Join(dataDir, "snapshots"))
	broker := paperbroker.NewBroker(filepath.Join(dataDir, "trades"))

	lax, err := station.Get("LAX")
	if err != nil {
		t.Fatalf("station.Get: %v", err)
	}

	cfg := Config{
		IntervalSeconds: 60,
		LookaheadDays:   1,
		Bankroll:        decimal.NewFromInt(500),
		Sizing: sizing.Config{
			EdgeMin:          0.01,
			FeeBP:            100,
			SlippageBP:       50,
			KellyCap:         0.5,
			PerMarketCap:     decimal.NewFromInt(200),
			LiquidityMin:     decimal.NewFromInt(10),
			DailyBankrollCap: decimal.NewFromInt(500),
		},
	}

	return New(cfg, forecastClient, marketClient, observationClient, gate, snapshots, broker, []*station.Station{lax})
}

func TestRunCycleOnceSizesAndPlacesATrade(t *testing.T) {
	srv := testVenueServer(t)
	defer srv.Close()

	dir := t.TempDir()
	eng := testEngine(t, srv, dir)

	var decided int
	eng.OnDecision(func(stationCode, eventDay string, d sizing.Decision) {
		decided++
		if stationCode != "LAX" {
			t.Errorf("expected LAX, got %s", stationCode)
		}
	})

	var gotErr error
	eng.OnError(func(stationCode, eventDay string, err error) {
		gotErr = err
	})

	report := eng.runCycle(context.Background())

	if gotErr != nil {
		t.Fatalf("unexpected station error: %v", gotErr)
	}
	if report.StationsRun != 1 {
		t.Errorf("expected 1 station run, got %d", report.StationsRun)
	}
	if decided == 0 || report.DecisionsPlaced == 0 {
		t.Fatalf("expected at least one decision placed, got %d (report=%d)", decided, report.DecisionsPlaced)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "trades"))
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected a ledger directory to be written, err=%v entries=%v", err, entries)
	}
}

func TestRunCycleSkipsStationOnNotFoundMarket(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/observations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	eng := testEngine(t, srv, dir)

	errs := 0
	eng.OnError(func(stationCode, eventDay string, err error) { errs++ })

	report := eng.runCycle(context.Background())

	if report.DecisionsPlaced != 0 {
		t.Errorf("expected no decisions, got %d", report.DecisionsPlaced)
	}
	if errs != 0 {
		t.Errorf("a not_found market discovery should be treated as a skip, not an error; got %d errors", errs)
	}
}

func TestStateTransitionsDuringRun(t *testing.T) {
	srv := testVenueServer(t)
	defer srv.Close()

	dir := t.TempDir()
	eng := testEngine(t, srv, dir)
	eng.cfg.IntervalSeconds = 3600

	ctx, cancel := context.WithCancel(context.Background())
	eng.OnCycleComplete(func(r CycleReport) { cancel() })

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if eng.State() != StateStopped {
		t.Errorf("expected state %s after Run returns, got %s", StateStopped, eng.State())
	}
}
