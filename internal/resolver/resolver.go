// Package resolver implements the trade resolver (C9): joins a per-event-day
// ledger against the market client's settlement outcomes and fills in
// realized P&L.
//
// Grounded on gopher-lab-kalshi-go's storage.SettleTrade/GetUnsettledTrades
// pair (storage/sqlite.go) and cmd/check-trades/main.go's reconciliation
// shape, re-targeted here at the CSV ledger and a read-modify-write of the
// whole file.
package resolver

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/metrics"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/station"
)

// Report summarizes one Resolve call.
type Report struct {
	EventDay      string
	RowsResolved  int
	RowsPending   int
	RowsUnchanged int
}

// Resolve reads the ledger for eventDay (optionally scoped to one station
// code; empty means all stations present in the ledger), resolves every
// non-terminal row it can against the market client's outcome prices, and
// writes the ledger back. It is idempotent: rows already in a terminal
// outcome are left untouched and counted as unchanged.
func Resolve(ctx context.Context, broker *paperbroker.Broker, market *marketdata.Client, eventDay string, stationCode string) (Report, error) {
	path := broker.LedgerPath(eventDay)

	unlock, err := broker.Lock(eventDay)
	if err != nil {
		return Report{}, err
	}
	defer unlock()

	rows, err := paperbroker.ReadLedger(path)
	if err != nil {
		return Report{}, err
	}

	report := Report{EventDay: eventDay}
	if len(rows) == 0 {
		return report, nil
	}

	byStation := map[string][]int{}
	for i, r := range rows {
		if stationCode != "" && r.Station != stationCode {
			continue
		}
		byStation[r.Station] = append(byStation[r.Station], i)
	}

	for stCode, idxs := range byStation {
		st, serr := station.Get(stCode)
		if serr != nil {
			log.Printf("[Resolver] %s: %v", stCode, serr)
			continue
		}

		day, perr := time.ParseInLocation("2006-01-02", eventDay, st.Location())
		if perr != nil {
			log.Printf("[Resolver] %s: bad event day %q: %v", stCode, eventDay, perr)
			continue
		}
		eventID := st.EventTicker(day)

		outcomes, oerr := market.OutcomePrices(ctx, eventID)
		if agenterr.Is(oerr, agenterr.KindUnresolved) {
			report.RowsPending += countPending(rows, idxs)
			continue
		}
		if oerr != nil {
			log.Printf("[Resolver] %s/%s: %v", stCode, eventDay, oerr)
			continue
		}

		winner := ""
		for marketID, isYes := range outcomes {
			if isYes {
				winner = marketID
				break
			}
		}

		winnerName := winner
		for _, i := range idxs {
			if rows[i].MarketID == winner {
				winnerName = rows[i].BracketName
				break
			}
		}

		for _, i := range idxs {
			r := &rows[i]
			if r.Outcome != "pending" {
				report.RowsUnchanged++
				continue
			}

			isYes, known := outcomes[r.MarketID]
			if !known {
				report.RowsPending++
				continue
			}

			r.WinnerBracket = winnerName
			now := time.Now().UTC()
			r.ResolvedAt = &now

			if isYes {
				r.Outcome = "win"
				pMarket := r.PMarket
				if pMarket <= 0 {
					pMarket = 0.5
				}
				r.RealizedPnl = r.Size.Mul(decimal.NewFromFloat(1/pMarket - 1)).Round(2)
			} else {
				r.Outcome = "loss"
				r.RealizedPnl = r.Size.Neg()
			}
			report.RowsResolved++
			metrics.Default().TradesResolved.WithLabelValues(stCode, r.Outcome).Inc()
			pnl, _ := r.RealizedPnl.Abs().Float64()
			metrics.Default().RealizedPnL.WithLabelValues(stCode).Add(pnl)
		}
	}

	return report, paperbroker.WriteLedger(path, rows)
}

func countPending(rows []paperbroker.Row, idxs []int) int {
	n := 0
	for _, i := range idxs {
		if rows[i].Outcome == "pending" {
			n++
		}
	}
	return n
}
