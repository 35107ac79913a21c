// Package forecast fetches hourly temperature forecasts keyed by station
// coordinates and a timezone-aware local-midnight instant, and applies the
// calibration gate (internal/calibration) before returning.
//
// Grounded on gopher-lab-kalshi-go's pkg/weather/forecast.go (FetchNWSForecast)
// for the fetch/parse shape, and on phenomenon0-polymarket-agents's
// pkg/polymarket/gamma/client.go for the rate-limited, functional-option
// HTTP client pattern.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/calibration"
	"github.com/weatherdesk/dynamic-trader/internal/retry"
)

// Point is a single hourly forecast sample.
type Point = calibration.Point

// Forecast is an ordered sequence of hourly Points plus provenance metadata.
type Forecast struct {
	StationCode string
	EventDay    time.Time // calendar date, station-local
	StartLocal  time.Time // local-midnight instant passed to the provider, offset preserved
	FetchTime   time.Time
	Points      []Point

	// Raw is the unparsed provider response body, retained long enough to
	// be snapshotted by internal/snapshot without a second fetch.
	Raw json.RawMessage
}

// Client fetches hourly forecasts from a weather-forecast provider.
type Client struct {
	baseURL    string
	bearer     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	gate       *calibration.Gate
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider base URL.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

// WithBearerToken sets the bearer-auth token sent with every request.
func WithBearerToken(tok string) Option { return func(c *Client) { c.bearer = tok } }

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithRateLimit overrides the outbound request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New builds a forecast Client. gate is consulted on every Fetch to apply
// the optional calibration bias table (C11); it may be nil to disable
// calibration entirely.
func New(baseURL string, gate *calibration.Gate, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(5, 3),
		now:        time.Now,
		gate:       gate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type providerEnvelope struct {
	Hourly struct {
		Series []struct {
			Time        string  `json:"time"`
			TempKelvin  float64 `json:"temperature_kelvin"`
		} `json:"series"`
	} `json:"hourly"`
}

// Fetch retrieves an hourly forecast for stationCode starting at startLocal
// (a timezone-aware instant; a zero time is rejected as invalid_argument)
// for the given number of hours.
func (c *Client) Fetch(ctx context.Context, stationCode string, lat, lon float64, startLocal time.Time, hours int) (*Forecast, error) {
	if startLocal.IsZero() {
		return nil, agenterr.New(agenterr.KindInvalidArgument, "forecast.Fetch", fmt.Errorf("start_local is zero"))
	}

	// Go's time.Time always carries a zone, so there is no "naive" value to
	// reject outright; what a naive-argument check maps to here
	// is emitting the instant with its offset intact rather than normalizing
	// to Z, which the "-07:00" format verb below guarantees. The value is
	// query-escaped so a "+" offset is not decoded as a space.
	startParam := url.QueryEscape(startLocal.Format("2006-01-02T15:04:05-07:00"))

	var raw json.RawMessage
	err := retry.Do(ctx, retry.Default, "forecast.Fetch", func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		url := fmt.Sprintf("%s/forecast?latitude=%f&longitude=%f&start_time=%s&predict_hours=%d",
			c.baseURL, lat, lon, startParam, hours)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if c.bearer != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &retry.Transient{Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &retry.Transient{Err: err}
		}

		if resp.StatusCode >= 500 {
			return &retry.Transient{Err: fmt.Errorf("forecast provider %d: %s", resp.StatusCode, body)}
		}
		if resp.StatusCode >= 400 {
			return agenterr.New(agenterr.KindProvider, "forecast.Fetch", fmt.Errorf("forecast provider %d: %s", resp.StatusCode, body))
		}

		raw = json.RawMessage(body)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var envelope providerEnvelope
	if jerr := json.Unmarshal(raw, &envelope); jerr != nil {
		return nil, agenterr.New(agenterr.KindProvider, "forecast.Fetch", fmt.Errorf("decode forecast response: %w", jerr))
	}

	f := &Forecast{
		StationCode: stationCode,
		EventDay:    startLocal,
		StartLocal:  startLocal,
		FetchTime:   c.now(),
		Raw:         raw,
	}
	for _, s := range envelope.Hourly.Series {
		t, terr := time.Parse(time.RFC3339, s.Time)
		if terr != nil {
			continue
		}
		f.Points = append(f.Points, Point{Time: t, TemperatureKelvin: s.TempKelvin})
	}

	if c.gate != nil {
		c.gate.Apply(stationCode, f.Points, startLocal.Location())
	}

	return f, nil
}
