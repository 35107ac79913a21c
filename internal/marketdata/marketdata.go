// Package marketdata implements the market client (C3): event/bracket
// discovery, mid-price lookup, and outcome-price resolution for a
// temperature-bracket prediction market venue.
//
// Grounded on gopher-lab-kalshi-go's pkg/market/temperature.go for the
// ticker-to-bracket parsing grammar (KXHIGH<CITY>-<date>-B<mid> and
// -T<threshold>) and pkg/rest/{client,markets}.go for the discovery/price
// HTTP surface, generalized away from Kalshi's RSA-signed auth (not needed
// here: this venue's market provider is bearer-token, read-only for this
// engine) and enriched with the golang.org/x/time/rate limiter pattern from
// phenomenon0-polymarket-agents's pkg/polymarket/gamma/client.go.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/retry"
	"github.com/weatherdesk/dynamic-trader/internal/station"
)

// Bracket is one temperature-bracket contract offered for a (city, event_day).
type Bracket struct {
	MarketID       string
	Name           string
	LowerF         int
	UpperF         int
	UnboundedBelow bool // true for "<N" threshold brackets
	UnboundedAbove bool // true for ">N" threshold brackets
	Closed         bool
}

// Unbounded reports whether the bracket has no finite upper edge.
func (b Bracket) Unbounded() bool { return b.UnboundedAbove }

// BracketSet is the ordered (by LowerF) sequence of brackets for one event.
type BracketSet struct {
	EventID  string
	Brackets []Bracket
}

// Client discovers events, prices brackets, and reads settlement outcomes.
type Client struct {
	baseURL    string
	bearer     string
	httpClient *http.Client
	limiter    *rate.Limiter
	live       *LiveFeed
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(url string) Option      { return func(c *Client) { c.baseURL = url } }
func WithBearerToken(tok string) Option  { return func(c *Client) { c.bearer = tok } }
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLiveFeed attaches an optional websocket price cache that Midprob
// consults before falling back to REST.
func WithLiveFeed(f *LiveFeed) Option {
	return func(c *Client) { c.live = f }
}

// New builds a market Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(8, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type venueMarket struct {
	Ticker       string   `json:"ticker"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	YesBid       int      `json:"yes_bid"`
	YesAsk       int      `json:"yes_ask"`
	OutcomePrices []string `json:"outcome_prices"`
}

type venueMarketsResponse struct {
	Markets []venueMarket `json:"markets"`
}

// Discover finds the bracket set for a (station, event_day) pair, probing
// the station's event-ticker pattern. Returns KindNotFound when no event is
// currently known for the day.
func (c *Client) Discover(ctx context.Context, s *station.Station, eventDay time.Time) (*BracketSet, error) {
	eventID := s.EventTicker(eventDay)

	var markets []venueMarket
	err := retry.Do(ctx, retry.Default, "marketdata.Discover", func(attempt int) error {
		url := fmt.Sprintf("%s/markets?event_ticker=%s", c.baseURL, eventID)
		body, status, err := c.get(ctx, url)
		if err != nil {
			return &retry.Transient{Err: err}
		}
		if status == http.StatusNotFound {
			return agenterr.New(agenterr.KindNotFound, "marketdata.Discover", fmt.Errorf("no event for %s", eventID))
		}
		if status >= 500 {
			return &retry.Transient{Err: fmt.Errorf("market provider %d", status)}
		}
		if status >= 400 {
			return agenterr.New(agenterr.KindProvider, "marketdata.Discover", fmt.Errorf("market provider %d: %s", status, body))
		}

		var resp venueMarketsResponse
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			return agenterr.New(agenterr.KindProvider, "marketdata.Discover", fmt.Errorf("decode markets response: %w", jerr))
		}
		markets = resp.Markets
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(markets) == 0 {
		return nil, agenterr.New(agenterr.KindNotFound, "marketdata.Discover", fmt.Errorf("no markets for %s", eventID))
	}

	bs := &BracketSet{EventID: eventID}
	for _, m := range markets {
		if b, ok := parseBracket(m); ok {
			bs.Brackets = append(bs.Brackets, b)
		}
	}
	sortBrackets(bs.Brackets)
	return bs, nil
}

// AnyOpen reports whether at least one bracket in the set is still open.
func (bs *BracketSet) AnyOpen() bool {
	for _, b := range bs.Brackets {
		if !b.Closed {
			return true
		}
	}
	return false
}

// Midprob returns the market-implied YES probability for a bracket, derived
// from the bid/ask midpoint. Closed or unpriced markets return KindNoPrice.
// When a live feed is attached and holds a fresher tick for marketID, that
// mid is preferred over issuing a REST call.
func (c *Client) Midprob(ctx context.Context, marketID string) (float64, error) {
	if c.live != nil {
		if mid, ok := c.live.Mid(marketID); ok {
			return mid, nil
		}
	}

	var yesBid, yesAsk int
	var status string

	err := retry.Do(ctx, retry.Default, "marketdata.Midprob", func(attempt int) error {
		url := fmt.Sprintf("%s/markets/%s", c.baseURL, marketID)
		body, code, err := c.get(ctx, url)
		if err != nil {
			return &retry.Transient{Err: err}
		}
		if code >= 500 {
			return &retry.Transient{Err: fmt.Errorf("market provider %d", code)}
		}
		if code >= 400 {
			return agenterr.New(agenterr.KindProvider, "marketdata.Midprob", fmt.Errorf("market provider %d", code))
		}
		var resp struct {
			Market venueMarket `json:"market"`
		}
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			return agenterr.New(agenterr.KindProvider, "marketdata.Midprob", fmt.Errorf("decode market response: %w", jerr))
		}
		yesBid, yesAsk, status = resp.Market.YesBid, resp.Market.YesAsk, resp.Market.Status
		return nil
	})
	if err != nil {
		return 0, err
	}

	if status != "active" || (yesBid == 0 && yesAsk == 0) {
		return 0, agenterr.New(agenterr.KindNoPrice, "marketdata.Midprob", fmt.Errorf("no usable price for %s", marketID))
	}

	mid := float64(yesBid+yesAsk) / 2.0 / 100.0
	return mid, nil
}

// OutcomePrices returns, for every market in eventID, whether its YES side
// resolved to "1". Returns KindUnresolved while the event is still open.
func (c *Client) OutcomePrices(ctx context.Context, eventID string) (map[string]bool, error) {
	var markets []venueMarket
	err := retry.Do(ctx, retry.Default, "marketdata.OutcomePrices", func(attempt int) error {
		url := fmt.Sprintf("%s/markets?event_ticker=%s", c.baseURL, eventID)
		body, code, err := c.get(ctx, url)
		if err != nil {
			return &retry.Transient{Err: err}
		}
		if code >= 500 {
			return &retry.Transient{Err: fmt.Errorf("market provider %d", code)}
		}
		if code >= 400 {
			return agenterr.New(agenterr.KindProvider, "marketdata.OutcomePrices", fmt.Errorf("market provider %d", code))
		}
		var resp venueMarketsResponse
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			return agenterr.New(agenterr.KindProvider, "marketdata.OutcomePrices", fmt.Errorf("decode markets response: %w", jerr))
		}
		markets = resp.Markets
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(markets))
	anyResolved := false
	for _, m := range markets {
		if len(m.OutcomePrices) < 1 {
			continue
		}
		if m.OutcomePrices[0] == "1" {
			out[m.Ticker] = true
			anyResolved = true
		} else if m.OutcomePrices[0] == "0" {
			out[m.Ticker] = false
			anyResolved = true
		}
	}

	if !anyResolved {
		return nil, agenterr.New(agenterr.KindUnresolved, "marketdata.OutcomePrices", fmt.Errorf("event %s not yet settled", eventID))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// parseBracket parses a venue ticker into a Bracket, following the
// KXHIGH<CITY>-<date>-B<mid> (closed bracket, width 1) and
// KXHIGH<CITY>-<date>-T<threshold> (open-ended) grammars.
func parseBracket(m venueMarket) (Bracket, bool) {
	b := Bracket{
		MarketID: m.Ticker,
		Name:     m.Title,
		Closed:   m.Status != "active",
	}

	parts := strings.Split(m.Ticker, "-")
	if len(parts) < 3 {
		return Bracket{}, false
	}
	spec := parts[len(parts)-1]

	switch {
	case strings.HasPrefix(spec, "B"):
		mid, err := strconv.ParseFloat(spec[1:], 64)
		if err != nil {
			return Bracket{}, false
		}
		b.LowerF = int(mid - 0.5)
		b.UpperF = int(mid + 0.5)
		if b.Name == "" {
			b.Name = fmt.Sprintf("%d-%d°F", b.LowerF, b.UpperF)
		}
	case strings.HasPrefix(spec, "T"):
		threshold, err := strconv.ParseFloat(spec[1:], 64)
		if err != nil {
			return Bracket{}, false
		}
		title := strings.ToLower(m.Title)
		if strings.Contains(title, ">") || strings.Contains(title, "above") || strings.Contains(title, "over") {
			b.LowerF = int(threshold) + 1
			b.UnboundedAbove = true
			if b.Name == "" {
				b.Name = fmt.Sprintf(">%d°F", int(threshold))
			}
		} else {
			b.UpperF = int(threshold)
			b.UnboundedBelow = true
			if b.Name == "" {
				b.Name = fmt.Sprintf("<%d°F", int(threshold))
			}
		}
	default:
		return Bracket{}, false
	}

	return b, true
}

func sortBrackets(bs []Bracket) {
	for i := 1; i < len(bs); i++ {
		for j := i; j > 0 && bs[j-1].LowerF > bs[j].LowerF; j-- {
			bs[j-1], bs[j] = bs[j], bs[j-1]
		}
	}
}
