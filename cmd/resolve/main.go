// Command resolve runs the trade resolver (C9) once for a single event day
// and exits: it joins the paper ledger against the market client's
// settlement outcomes and writes realized P&L back to the ledger file.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/weatherdesk/dynamic-trader/internal/config"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/resolver"
)

func main() {
	date := flag.String("date", "", "event day to resolve, YYYY-MM-DD (required)")
	stationCode := flag.String("station", "", "restrict to one station code (default: every station in the ledger)")
	flag.Parse()

	if *date == "" {
		log.Fatal("[Resolve] --date is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Resolve] config: %v", err)
	}

	broker := paperbroker.NewBroker(cfg.LedgerRoot)
	market := marketdata.New(cfg.MarketBaseURL,
		marketdata.WithBearerToken(cfg.MarketBearer),
		marketdata.WithRateLimit(cfg.ForecastRateLimitRPS, 5))

	report, err := resolver.Resolve(context.Background(), broker, market, *date, *stationCode)
	if err != nil {
		log.Fatalf("[Resolve] %v", err)
	}

	log.Printf("[Resolve] %s: resolved=%d pending=%d unchanged=%d",
		report.EventDay, report.RowsResolved, report.RowsPending, report.RowsUnchanged)
}
