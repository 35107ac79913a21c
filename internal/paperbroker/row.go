package paperbroker

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

func rowFromRecord(rec []string) Row {
	row := Row{
		ID:          rec[0],
		Station:     rec[2],
		BracketName: rec[3],
		MarketID:    rec[6],
		Reason:      rec[13],
		Outcome:     rec[14],
		Venue:       rec[16],
		WinnerBracket: rec[18],
	}

	row.Timestamp, _ = time.Parse(time.RFC3339, rec[1])
	row.BracketLowerF, _ = strconv.Atoi(rec[4])
	row.BracketUpperF, _ = strconv.Atoi(rec[5])
	row.Edge, _ = strconv.ParseFloat(rec[7], 64)
	row.KellyFraction, _ = strconv.ParseFloat(rec[8], 64)
	row.Size, _ = decimal.NewFromString(rec[9])
	row.PModel, _ = strconv.ParseFloat(rec[10], 64)
	row.PMarket, _ = strconv.ParseFloat(rec[11], 64)
	row.Sigma, _ = strconv.ParseFloat(rec[12], 64)
	if rec[15] != "" {
		if pnl, err := decimal.NewFromString(rec[15]); err == nil {
			row.RealizedPnl = pnl
		}
	}
	if rec[17] != "" {
		if t, err := time.Parse(time.RFC3339, rec[17]); err == nil {
			row.ResolvedAt = &t
		}
	}

	return row
}

// toRecord renders a Row back into the fixed CSV column order, used by the
// resolver's read-modify-write of the whole ledger file.
func toRecord(r Row) []string {
	resolvedAt := ""
	if r.ResolvedAt != nil {
		resolvedAt = r.ResolvedAt.Format(time.RFC3339)
	}
	realizedPnl := ""
	if r.Outcome != "pending" {
		realizedPnl = r.RealizedPnl.StringFixed(2)
	}

	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Format(time.RFC3339)
	}

	return []string{
		r.ID, ts, r.Station, r.BracketName,
		strconv.Itoa(r.BracketLowerF), strconv.Itoa(r.BracketUpperF), r.MarketID,
		strconv.FormatFloat(r.Edge, 'f', 6, 64),
		strconv.FormatFloat(r.KellyFraction, 'f', 6, 64),
		r.Size.StringFixed(2),
		strconv.FormatFloat(r.PModel, 'f', 6, 64),
		strconv.FormatFloat(r.PMarket, 'f', 6, 64),
		strconv.FormatFloat(r.Sigma, 'f', 4, 64),
		r.Reason,
		r.Outcome, realizedPnl, r.Venue, resolvedAt, r.WinnerBracket,
	}
}
