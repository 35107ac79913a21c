package forecast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/calibration"
)

func TestFetchPreservesOffsetAndParsesSeries(t *testing.T) {
	var gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start_time")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{
				"series": []map[string]any{
					{"time": "2025-11-17T00:00:00-05:00", "temperature_kelvin": 280.15},
					{"time": "2025-11-17T01:00:00-05:00", "temperature_kelvin": 281.0},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, WithHTTPClient(srv.Client()))

	loc, _ := time.LoadLocation("America/New_York")
	start := time.Date(2025, 11, 17, 0, 0, 0, 0, loc)

	f, err := c.Fetch(context.Background(), "NYC", 40.6413, -73.7781, start, 24)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(f.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(f.Points))
	}
	if !strings.HasSuffix(gotStart, "-05:00") {
		t.Fatalf("expected offset preserved in outbound request, got %s", gotStart)
	}
}

func TestFetchRejectsZeroStart(t *testing.T) {
	c := New("http://example.invalid", nil)
	_, err := c.Fetch(context.Background(), "NYC", 0, 0, time.Time{}, 24)
	if !agenterr.Is(err, agenterr.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}

func TestFetchAppliesCalibration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{
				"series": []map[string]any{
					{"time": "2025-11-17T14:00:00Z", "temperature_kelvin": 280.0},
				},
			},
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	gate := calibration.NewGate(dir + "/toggles.json")
	gate.SetBias("NYC", time.November, 14, 1.5)
	if _, err := gate.Set(true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c := New(srv.URL, gate, WithHTTPClient(srv.Client()))
	start := time.Date(2025, 11, 17, 0, 0, 0, 0, time.UTC)

	f, err := c.Fetch(context.Background(), "NYC", 0, 0, start, 24)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := 280.0 + 1.5*5.0/9.0
	if f.Points[0].TemperatureKelvin != want {
		t.Fatalf("expected calibrated temperature %v, got %v", want, f.Points[0].TemperatureKelvin)
	}
}
