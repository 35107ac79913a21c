// Package engine implements the dynamic trading engine (C10): the
// cooperative loop that ties every other component together into a
// continuously running per-cycle pipeline.
//
// Grounded on gopher-lab-kalshi-go's cmd/dualside-bot/production/engine
// (Engine.Run's ticker-driven select loop, tick()'s per-station sweep, and
// the onTrade/onError callback pattern), generalized from a single tick()
// over DefaultStations into a bounded-fan-out sweep over
// stations x [today, today+lookahead) event days, bounded by errgroup.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
	"github.com/weatherdesk/dynamic-trader/internal/calibration"
	"github.com/weatherdesk/dynamic-trader/internal/forecast"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/metrics"
	"github.com/weatherdesk/dynamic-trader/internal/observation"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/probability"
	"github.com/weatherdesk/dynamic-trader/internal/sizing"
	"github.com/weatherdesk/dynamic-trader/internal/snapshot"
	"github.com/weatherdesk/dynamic-trader/internal/station"
)

// State is the engine's coarse lifecycle state.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
)

// Config bundles the per-cycle parameters the engine needs beyond what each
// component already owns.
type Config struct {
	IntervalSeconds int
	LookaheadDays   int
	Sizing          sizing.Config
	Bankroll        decimal.Decimal
}

// Engine wires C1-C9, C11 together into the per-cycle sweep.
type Engine struct {
	cfg Config

	forecastClient    *forecast.Client
	marketClient      *marketdata.Client
	observationClient *observation.Client
	gate              *calibration.Gate
	snapshots         *snapshot.Store
	broker            *paperbroker.Broker

	stations []*station.Station
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	state State

	onCycleComplete func(CycleReport)
	onDecision      func(stationCode, eventDay string, d sizing.Decision)
	onError         func(stationCode, eventDay string, err error)

	now func() time.Time
}

// CycleReport summarizes one completed cycle across every (station, day).
type CycleReport struct {
	CycleTime      string
	StationsRun    int
	DecisionsPlaced int
	Errors          int
}

// New builds an Engine. stations defaults to station.All() when nil.
func New(cfg Config, forecastClient *forecast.Client, marketClient *marketdata.Client,
	observationClient *observation.Client, gate *calibration.Gate, snapshots *snapshot.Store,
	broker *paperbroker.Broker, stations []*station.Station) *Engine {
	if stations == nil {
		stations = station.All()
	}
	return &Engine{
		cfg:               cfg,
		forecastClient:    forecastClient,
		marketClient:      marketClient,
		observationClient: observationClient,
		gate:              gate,
		snapshots:         snapshots,
		broker:            broker,
		stations:          stations,
		metrics:           metrics.Default(),
		state:             StateInitialized,
		now:               time.Now,
	}
}

// WithMetrics overrides the engine's metrics collector, for callers that
// want an isolated registry instead of the process-wide default.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// OnCycleComplete registers a callback fired once per completed cycle.
func (e *Engine) OnCycleComplete(fn func(CycleReport)) { e.onCycleComplete = fn }

// OnDecision registers a callback fired once per placed decision.
func (e *Engine) OnDecision(fn func(stationCode, eventDay string, d sizing.Decision)) {
	e.onDecision = fn
}

// OnError registers a callback fired once per recovered per-(station,day) error.
func (e *Engine) OnError(fn func(stationCode, eventDay string, err error)) { e.onError = fn }

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run starts the cycle loop. It runs one cycle immediately, then sleeps
// interval_seconds between cycles, until ctx is cancelled. A cancellation
// mid-sleep wakes immediately; a cancellation mid-cycle lets the current
// (station, day) step finish before the loop exits.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateRunning)
	defer e.setState(StateStopped)

	log.Printf("[Engine] starting: %d stations, interval=%ds, lookahead=%dd",
		len(e.stations), e.cfg.IntervalSeconds, e.cfg.LookaheadDays)

	for {
		report := e.runCycle(ctx)
		if e.onCycleComplete != nil {
			e.onCycleComplete(report)
		}

		if ctx.Err() != nil {
			e.setState(StateStopping)
			return ctx.Err()
		}

		timer := time.NewTimer(time.Duration(e.cfg.IntervalSeconds) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.setState(StateStopping)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runCycle sweeps every (station, event_day) pair once, bounded to at most
// len(stations) concurrent goroutines. Per-(station,day) failures are
// caught, logged, and reported via OnError; they never abort the cycle.
func (e *Engine) runCycle(ctx context.Context) CycleReport {
	cycleStart := e.now()
	cycleTime := snapshot.StampCycleTime(cycleStart)

	var (
		mu       sync.Mutex
		report   = CycleReport{CycleTime: cycleTime}
		placedCt int
		errCt    int
	)

	// Steps run on a context that ignores cancellation of ctx, so a step
	// that has already started runs to completion; a step that has not yet
	// started when ctx is cancelled is skipped.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(maxInt(1, len(e.stations)))

	for _, st := range e.stations {
		st := st
		for day := 0; day < e.cfg.LookaheadDays; day++ {
			day := day
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				eventDay := st.LocalMidnight(e.now().AddDate(0, 0, day))
				placed, err := e.runStationDay(gctx, st, eventDay, cycleTime)
				if err != nil {
					mu.Lock()
					errCt++
					mu.Unlock()
					e.logAndReport(st.Code, eventDay.Format("2006-01-02"), err)
					return nil // recoverable: never cancels siblings
				}
				mu.Lock()
				placedCt += placed
				mu.Unlock()
				return nil
			})
		}
	}

	// errgroup.Wait only returns non-nil if a goroutine returned a non-nil
	// error, which the goroutines above never do (they report and swallow
	// runStationDay's error); this call exists purely to join every
	// goroutine before the cycle ends.
	_ = g.Wait()

	report.StationsRun = len(e.stations)
	report.DecisionsPlaced = placedCt
	report.Errors = errCt

	status := "ok"
	if errCt > 0 {
		status = "partial_error"
	}
	e.metrics.CyclesTotal.WithLabelValues(status).Inc()
	e.metrics.CycleDuration.Observe(e.now().Sub(cycleStart).Seconds())

	return report
}

func (e *Engine) logAndReport(stationCode, eventDay string, err error) {
	log.Printf("[Engine] %s/%s: %v", stationCode, eventDay, err)
	kind := "unknown"
	if ae, ok := err.(*agenterr.Error); ok {
		kind = string(ae.Kind())
	}
	e.metrics.StationErrors.WithLabelValues(stationCode, kind).Inc()
	if e.onError != nil {
		e.onError(stationCode, eventDay, err)
	}
}

// runStationDay executes the full per-(station, day) pipeline: discover,
// fetch forecast, fetch observations, map probability, price brackets,
// decide, place, snapshot. Returns the count of decisions placed.
func (e *Engine) runStationDay(ctx context.Context, st *station.Station, eventDay time.Time, cycleTime string) (int, error) {
	eventDayStr := eventDay.Format("2006-01-02")

	bracketSet, err := e.marketClient.Discover(ctx, st, eventDay)
	if agenterr.Is(err, agenterr.KindNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !bracketSet.AnyOpen() {
		return 0, nil
	}

	fc, err := e.forecastClient.Fetch(ctx, st.Code, st.Latitude, st.Longitude, eventDay, 24)
	if err != nil {
		return 0, err
	}

	e.observationClient.Invalidate(st.Code)
	obs, err := e.observationClient.Observations(ctx, st, eventDay)
	if err != nil && !agenterr.Is(err, agenterr.KindNotFound) {
		return 0, err
	}

	venue := st.PrimaryVenue
	probs := probability.MapDailyHigh(fc, bracketSet.Brackets, venue)

	for i := range probs {
		if probs[i].Bracket.Closed {
			continue
		}
		mid, perr := e.marketClient.Midprob(ctx, probs[i].Bracket.MarketID)
		if perr != nil {
			continue // no_price: that bracket yields no decision, others proceed
		}
		probs[i].PMarket = &mid
	}

	expectedHigh := 0.0
	if len(probs) > 0 {
		expectedHigh = probs[0].ExpectedHigh
	}
	sizingCtx := e.buildSizingContext(st, eventDay, obs, expectedHigh)
	decisions := sizing.Decide(e.cfg.Sizing, e.cfg.Bankroll, probs, sizingCtx)

	placedCount := 0
	hasSized := false
	for _, d := range decisions {
		e.metrics.DecisionsTotal.WithLabelValues(st.Code, string(d.Reason)).Inc()
		if d.Edge > 0 {
			e.metrics.DecisionEdge.WithLabelValues(st.Code).Observe(d.Edge)
		}
		if !d.Size.IsZero() {
			hasSized = true
			placedCount++
			e.metrics.KellyFraction.WithLabelValues(st.Code).Observe(d.KellyFraction)
			if e.onDecision != nil {
				e.onDecision(st.Code, eventDayStr, d)
			}
		}
	}

	if hasSized {
		if _, perr := e.broker.Place(st.Code, eventDayStr, venue, decisions); perr != nil {
			log.Printf("[Engine] %s/%s: place failed: %v", st.Code, eventDayStr, perr)
		}
	}

	e.snapshots.SaveCycle(st.CitySlug(), st.Code, eventDayStr, cycleTime, fc, bracketSet, decisions, hasSized)

	return placedCount, nil
}

func (e *Engine) buildSizingContext(st *station.Station, eventDay time.Time, obs []observation.Observation, expectedHigh float64) sizing.Context {
	ctx := sizing.Context{
		Now:              e.now(),
		ExpectedHigh:     expectedHigh,
		StationUpdateMin: st.ObservationUpdateMinutes,
		EventDayStart:    eventDay,
		LiquidityAvail:   e.cfg.Sizing.LiquidityMin,
	}

	if len(obs) == 0 {
		return ctx
	}

	ctx.RecentTrend = observation.Trend(obs)
	if recent, ok := observation.MostRecent(obs); ok {
		t := recent.TempF
		ctx.MostRecentObserved = &t
	}

	priorDay := eventDay.AddDate(0, 0, -1)
	if high, ok := observation.DailyHigh(obs, priorDay, st.Location(), st.PrimaryVenue); ok {
		ctx.PriorDayHigh = &high
	}

	return ctx
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Stop only marks the engine as stopping; it does not end a running Run
// loop. Cancelling the context passed to Run is the supported shutdown path.
// Kept for interface symmetry with command callers that track a *cancel
// func() under this name.
func (e *Engine) Stop() {
	e.setState(StateStopping)
}
