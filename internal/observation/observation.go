// Package observation implements the observation client (C4): actual
// hourly temperature readings per station per event day, used both for
// resolution (C9, via daily_high) and for the sizing microstructure inputs
// (C6).
//
// Grounded on gopher-lab-kalshi-go's cmd/dualside-bot/production/feeds/metar.go
// (ASOS-style polling with a per-station mutex-guarded cache) and
// pkg/weather/metar.go's comma-delimited ASOS parser, generalized from a
// background-polling feed into the on-demand observations(...)/daily_high(...)
// contract. There is no background refresh: the engine calls Invalidate
// once per cycle and re-fetches on demand.
package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/retry"
	"github.com/weatherdesk/dynamic-trader/internal/station"
)

// Observation is a single timestamped reading.
type Observation struct {
	Time  time.Time
	TempF float64
}

// Client fetches and caches hourly observations per station.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string][]Observation // station code -> observations, most recent fetch
}

// New builds an observation Client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		cache:      map[string][]Observation{},
	}
}

type providerObservation struct {
	TimeUTC string  `json:"time_utc"`
	TempF   float64 `json:"temp_f"`
}

// Observations returns every observation the provider reports for the
// station, fetching only when the station has no cache entry. eventDay is
// neither sent to the provider nor used to filter the result, and a cached
// entry is returned regardless of its age until Invalidate drops it.
func (c *Client) Observations(ctx context.Context, s *station.Station, eventDay time.Time) ([]Observation, error) {
	c.mu.Lock()
	cached, ok := c.cache[s.Code]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var obs []Observation
	err := retry.Do(ctx, retry.Default, "observation.Observations", func(attempt int) error {
		url := fmt.Sprintf("%s/observations?station=%s", c.baseURL, s.Code)
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if rerr != nil {
			return rerr
		}
		resp, rerr := c.httpClient.Do(req)
		if rerr != nil {
			return &retry.Transient{Err: rerr}
		}
		defer resp.Body.Close()

		body, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return &retry.Transient{Err: rerr}
		}
		if resp.StatusCode == http.StatusNotFound {
			return agenterr.New(agenterr.KindNotFound, "observation.Observations", fmt.Errorf("no observations for %s", s.Code))
		}
		if resp.StatusCode >= 500 {
			return &retry.Transient{Err: fmt.Errorf("observation provider %d", resp.StatusCode)}
		}
		if resp.StatusCode >= 400 {
			return agenterr.New(agenterr.KindProvider, "observation.Observations", fmt.Errorf("observation provider %d: %s", resp.StatusCode, body))
		}

		parsed, perr := parseObservations(string(body))
		if perr != nil {
			return agenterr.New(agenterr.KindProvider, "observation.Observations", perr)
		}
		obs = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[s.Code] = obs
	c.mu.Unlock()
	return obs, nil
}

// Invalidate drops the cached observations for a station, forcing a
// re-fetch on the next call. The engine calls this once per cycle so each
// cycle observes fresh data.
func (c *Client) Invalidate(stationCode string) {
	c.mu.Lock()
	delete(c.cache, stationCode)
	c.mu.Unlock()
}

// DailyHigh returns the maximum observed temperature whose instant falls
// within eventDay's local 24-hour window in loc. Observations timestamped
// just before local midnight of the event day are excluded. When
// venue is "polymarket" the result is rounded to the nearest whole degree.
func DailyHigh(obs []Observation, eventDay time.Time, loc *time.Location, venue string) (float64, bool) {
	y, m, d := eventDay.In(loc).Date()
	windowStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	windowEnd := windowStart.Add(24 * time.Hour)

	found := false
	high := math.Inf(-1)
	for _, o := range obs {
		local := o.Time.In(loc)
		if local.Before(windowStart) || !local.Before(windowEnd) {
			continue
		}
		found = true
		if o.TempF > high {
			high = o.TempF
		}
	}
	if !found {
		return 0, false
	}
	if venue == "polymarket" {
		high = math.Round(high)
	}
	return high, true
}

// MostRecent returns the most recent observation by Time, or false if obs is empty.
func MostRecent(obs []Observation) (Observation, bool) {
	if len(obs) == 0 {
		return Observation{}, false
	}
	best := obs[0]
	for _, o := range obs[1:] {
		if o.Time.After(best.Time) {
			best = o
		}
	}
	return best, true
}

// Trend estimates the signed °F/hour slope over the last two observations
// (by time). Returns 0 if fewer than two observations are present.
func Trend(obs []Observation) float64 {
	if len(obs) < 2 {
		return 0
	}
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Time.After(sorted[j].Time); j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	last := sorted[len(sorted)-1]
	prev := sorted[len(sorted)-2]
	hours := last.Time.Sub(prev.Time).Hours()
	if hours <= 0 {
		return 0
	}
	return (last.TempF - prev.TempF) / hours
}

// parseObservations accepts either the provider's JSON array shape or a
// comma-delimited ASOS fallback (station,time,tempF per line).
func parseObservations(body string) ([]Observation, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "[") {
		return parseJSONObservations(trimmed)
	}
	return parseASOSObservations(trimmed), nil
}

func parseJSONObservations(body string) ([]Observation, error) {
	var raw []providerObservation
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339, r.TimeUTC)
		if err != nil {
			continue
		}
		out = append(out, Observation{Time: t, TempF: r.TempF})
	}
	return out, nil
}

func parseASOSObservations(body string) []Observation {
	var out []Observation
	for _, line := range strings.Split(body, "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		t, err := time.Parse("2006-01-02 15:04", strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		temp, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || parts[2] == "M" {
			continue
		}
		out = append(out, Observation{Time: t, TempF: temp})
	}
	return out
}
