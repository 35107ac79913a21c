// Optional live price cache fed by a gorilla/websocket subscription to the
// venue's ticker channel. Midprob prefers a fresh live mid over REST; a
// disconnect degrades silently back to REST-only after one warn log.
//
// Grounded on gopher-lab-kalshi-go's pkg/ws/client.go: the same
// dial/read-loop/ping-loop shape, generalized from Kalshi's command/
// subscription protocol to a single ticker-channel feed with a plain
// {market_ticker, yes_bid, yes_ask} tick payload.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weatherdesk/dynamic-trader/internal/metrics"
)

// liveTick is the venue's ticker-channel push message.
type liveTick struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
}

type livePrice struct {
	mid float64
	at  time.Time
}

// LiveFeed maintains a best-effort, in-memory cache of the freshest mids
// seen over a websocket subscription. It is never a source of truth: a
// missing or stale entry simply falls back to REST.
type LiveFeed struct {
	url        string
	bearer     string
	maxAge     time.Duration
	httpHeader http.Header

	mu       sync.RWMutex
	prices   map[string]livePrice
	warned   bool
	conn     *websocket.Conn
	connMu   sync.Mutex
}

// NewLiveFeed builds a LiveFeed that will dial wsURL once Start is called.
// maxAge bounds how old a cached tick may be before Mid refuses it.
func NewLiveFeed(wsURL, bearer string, maxAge time.Duration) *LiveFeed {
	return &LiveFeed{
		url:    wsURL,
		bearer: bearer,
		maxAge: maxAge,
		prices: make(map[string]livePrice),
	}
}

// Start dials the feed and subscribes to ticker updates for marketIDs. It
// returns once the connection is established; the read loop continues in
// the background until ctx is cancelled or the connection drops.
func (f *LiveFeed) Start(ctx context.Context, marketIDs []string) error {
	header := http.Header{}
	if f.bearer != "" {
		header.Set("Authorization", "Bearer "+f.bearer)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("livefeed dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	sub := struct {
		Cmd     string   `json:"cmd"`
		Channel string   `json:"channel"`
		Markets []string `json:"market_tickers"`
	}{Cmd: "subscribe", Channel: "ticker", Markets: marketIDs}

	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("livefeed subscribe: %w", err)
	}

	go f.readLoop(conn)
	go f.pingLoop(ctx, conn)

	return nil
}

func (f *LiveFeed) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			alreadyWarned := f.warned
			f.warned = true
			f.mu.Unlock()
			if !alreadyWarned {
				log.Printf("[LiveFeed] disconnected, falling back to REST-only: %v", err)
			}
			metrics.Default().LiveFeedActive.Set(0)
			return
		}

		var tick liveTick
		if jerr := json.Unmarshal(msg, &tick); jerr != nil {
			continue
		}
		if tick.MarketTicker == "" || (tick.YesBid == 0 && tick.YesAsk == 0) {
			continue
		}

		mid := float64(tick.YesBid+tick.YesAsk) / 2.0 / 100.0
		f.mu.Lock()
		f.prices[tick.MarketTicker] = livePrice{mid: mid, at: time.Now()}
		f.mu.Unlock()
	}
}

func (f *LiveFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Mid returns the cached mid for marketID if it is present and fresher
// than maxAge.
func (f *LiveFeed) Mid(marketID string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[marketID]
	if !ok || time.Since(p.at) > f.maxAge {
		return 0, false
	}
	return p.mid, true
}
