// Package sizing implements the edge & sizer (C6): microstructure-adjusted
// edge computation and Kelly-capped position sizing.
//
// Grounded on phenomenon0-polymarket-agents's pkg/polymarket/sports/edge.go
// (EdgeCalculator: fee model, Kelly fraction, stake caps) and on the Kelly
// fraction comments scattered through gopher-lab-kalshi-go's
// cmd/lahigh-threshold-optimize/main.go; the cap-resolution/reason-tag
// ordering follows phenomenon0's pkg/trader/policy/limits.go PolicyEngine.
package sizing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/probability"
)

// Reason is the enumerated tag on a Decision.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonBelowEdgeMin     Reason = "below_edge_min"
	ReasonKellyCapped      Reason = "kelly_capped"
	ReasonMarketCapped     Reason = "market_capped"
	ReasonLiquidityCapped  Reason = "liquidity_capped"
	ReasonSkippedClosed    Reason = "skipped_closed"
	ReasonSkippedNoPrice   Reason = "skipped_no_price"
)

// Decision is C6's output for one bracket.
type Decision struct {
	Bracket       probability.BracketProbability
	Edge          float64
	KellyFraction float64
	Size          decimal.Decimal
	Reason        Reason
	PModel        float64 // adjusted model probability used to compute edge
	PMarket       float64
}

// Config holds the tunable sizing parameters.
type Config struct {
	EdgeMin          float64
	FeeBP            float64
	SlippageBP       float64
	KellyCap         float64
	PerMarketCap     decimal.Decimal
	LiquidityMin     decimal.Decimal
	DailyBankrollCap decimal.Decimal
}

// Context carries the microstructure inputs the edge adjustments need.
type Context struct {
	Now              time.Time
	ExpectedHigh     float64 // model's current expected daily-high, °F
	StationUpdateMin []int   // station's observation-update minute marks
	RecentTrend      float64 // signed °F/hour trend of recent observations
	PriorDayHigh       *float64
	MostRecentObserved *float64 // most recent observation.temp_f, for bleed detection
	EventDayStart      time.Time // local midnight of the event day
	LiquidityAvail     decimal.Decimal
}

// Decide returns one Decision per bracket probability. Closed and unpriced
// brackets get a skip reason and zero size; the rest go through
// microstructure adjustment, edge, filter, Kelly fraction, and size with cap
// resolution in edge -> kelly -> per-market -> liquidity order.
func Decide(cfg Config, bankroll decimal.Decimal, probs []probability.BracketProbability, ctx Context) []Decision {
	out := make([]Decision, 0, len(probs))

	for _, bp := range probs {
		if bp.Bracket.Closed {
			out = append(out, Decision{Bracket: bp, Reason: ReasonSkippedClosed})
			continue
		}
		if bp.PMarket == nil {
			out = append(out, Decision{Bracket: bp, Reason: ReasonSkippedNoPrice})
			continue
		}

		pMarket := *bp.PMarket
		pAdjusted := adjust(bp.PModel, bp.Bracket, ctx)

		edge := pAdjusted - pMarket - cfg.FeeBP/10000 - cfg.SlippageBP/10000

		if edge < cfg.EdgeMin {
			out = append(out, Decision{Bracket: bp, Edge: edge, PModel: pAdjusted, PMarket: pMarket, Reason: ReasonBelowEdgeMin})
			continue
		}

		kelly := kellyFraction(pAdjusted, pMarket)
		if kelly <= 0 {
			out = append(out, Decision{Bracket: bp, Edge: edge, PModel: pAdjusted, PMarket: pMarket, KellyFraction: 0, Reason: ReasonBelowEdgeMin})
			continue
		}

		unclipped := bankroll.Mul(decimal.NewFromFloat(kelly))
		kellyCapped := bankroll.Mul(decimal.NewFromFloat(cfg.KellyCap))

		size := unclipped
		reason := ReasonOK
		if size.GreaterThan(kellyCapped) {
			size = kellyCapped
			reason = ReasonKellyCapped
		}
		if !cfg.PerMarketCap.IsZero() && size.GreaterThan(cfg.PerMarketCap) {
			size = cfg.PerMarketCap
			reason = ReasonMarketCapped
		}
		if !ctx.LiquidityAvail.IsZero() && size.GreaterThan(ctx.LiquidityAvail) {
			size = ctx.LiquidityAvail
			reason = ReasonLiquidityCapped
		}
		if !cfg.LiquidityMin.IsZero() && ctx.LiquidityAvail.LessThan(cfg.LiquidityMin) {
			out = append(out, Decision{Bracket: bp, Edge: edge, PModel: pAdjusted, PMarket: pMarket, KellyFraction: kelly, Reason: ReasonLiquidityCapped})
			continue
		}

		out = append(out, Decision{
			Bracket:       bp,
			Edge:          edge,
			KellyFraction: kelly,
			Size:          size,
			Reason:        reason,
			PModel:        pAdjusted,
			PMarket:       pMarket,
		})
	}

	sortByEdgeDescending(out)
	return out
}

// kellyFraction is the binary-contract Kelly formula:
// b = 1/q - 1, f* = (b*p - (1-p)) / b, clamped to >= 0.
func kellyFraction(p, q float64) float64 {
	if q <= 0 || q >= 1 {
		return 0
	}
	b := 1/q - 1
	if b <= 0 {
		return 0
	}
	f := (b*p - (1 - p)) / b
	if f < 0 {
		return 0
	}
	return f
}

// adjust applies the three microstructure corrections to p_model, clamping
// the result back into [0, 1].
func adjust(pModel float64, b probability.BracketProbability, ctx Context) float64 {
	p := pModel
	p += roundingRiskAdjustment(b, ctx)
	p += observationWindowBiasAdjustment(b, ctx)
	p += crossDayBleedAdjustment(ctx)

	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// roundingRiskAdjustment subtracts up to 0.15 when the expected high sits
// within 0.1F of a boundary adjacent to this bracket.
func roundingRiskAdjustment(b probability.BracketProbability, ctx Context) float64 {
	const threshold = 0.1
	const maxPenalty = 0.15

	distToLower := absF(ctx.ExpectedHigh - float64(b.Bracket.LowerF))
	distToUpper := absF(ctx.ExpectedHigh - float64(b.Bracket.UpperF))
	d := distToLower
	if distToUpper < d {
		d = distToUpper
	}
	if d > threshold {
		return 0
	}
	return -maxPenalty * (1 - d/threshold)
}

// observationWindowBiasAdjustment adds up to +-0.15 scaled by trend
// strength when within 5 minutes of the station's next observation update.
func observationWindowBiasAdjustment(b probability.BracketProbability, ctx Context) float64 {
	const windowMin = 5
	const maxAdj = 0.15

	if ctx.Now.IsZero() || len(ctx.StationUpdateMin) == 0 {
		return 0
	}

	minute := ctx.Now.Minute()
	minDist := 61
	for _, mark := range ctx.StationUpdateMin {
		d := mark - minute
		if d < 0 {
			d += 60
		}
		if d < minDist {
			minDist = d
		}
	}
	if minDist > windowMin {
		return 0
	}

	proximity := 1 - float64(minDist)/float64(windowMin)
	trendInterior := trendsTowardInterior(b, ctx.ExpectedHigh, ctx.RecentTrend)
	return maxAdj * proximity * trendInterior
}

// trendsTowardInterior returns a signed strength in [-1, 1]: positive when
// the recent observation trend is carrying the expected high into this
// bracket's interior (warming trend when the bracket sits above the current
// expectation, or cooling trend when it sits below), scaled by trend
// magnitude (capped at 1 degree/hour).
func trendsTowardInterior(b probability.BracketProbability, expectedHigh, trendFPerHour float64) float64 {
	strength := absF(trendFPerHour)
	if strength > 1 {
		strength = 1
	}

	mid := (float64(b.Bracket.LowerF) + float64(b.Bracket.UpperF)) / 2
	switch {
	case mid > expectedHigh && trendFPerHour > 0:
		return strength
	case mid < expectedHigh && trendFPerHour < 0:
		return strength
	default:
		return -strength
	}
}

// crossDayBleedAdjustment adds up to +0.10, scaled by prediction premium and
// inversely by hour, between local 00:00 and 06:00 when the most recent
// observation is within 1F of the prior day's high and the model predicts a
// higher daily high.
func crossDayBleedAdjustment(ctx Context) float64 {
	const maxAdj = 0.10
	if ctx.PriorDayHigh == nil || ctx.EventDayStart.IsZero() || ctx.Now.IsZero() {
		return 0
	}

	localHour := ctx.Now.In(ctx.EventDayStart.Location()).Hour()
	if localHour < 0 || localHour >= 6 {
		return 0
	}

	premium := ctx.ExpectedHigh - *ctx.PriorDayHigh
	if premium <= 0 {
		return 0
	}

	if ctx.MostRecentObserved == nil || absF(*ctx.MostRecentObserved-*ctx.PriorDayHigh) > 1.0 {
		return 0
	}

	hourFactor := 1 - float64(localHour)/6.0
	scaled := premium
	if scaled > 1 {
		scaled = 1
	}
	return maxAdj * scaled * hourFactor
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func sortByEdgeDescending(ds []Decision) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j-1].Edge < ds[j].Edge; j-- {
			ds[j-1], ds[j] = ds[j], ds[j-1]
		}
	}
}
