// Command dynamic-paper runs the dynamic trading engine's continuous
// per-cycle loop against a configurable set of stations until it receives
// SIGINT/SIGTERM.
//
// Grounded on gopher-lab-kalshi-go's cmd/dualside-bot/production/main.go:
// same signal.Notify + context.WithCancel shutdown shape and startHTTPServer
// /health endpoint, generalized to this engine's station sweep and
// Prometheus /metrics mount.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weatherdesk/dynamic-trader/internal/calibration"
	"github.com/weatherdesk/dynamic-trader/internal/config"
	"github.com/weatherdesk/dynamic-trader/internal/engine"
	"github.com/weatherdesk/dynamic-trader/internal/forecast"
	"github.com/weatherdesk/dynamic-trader/internal/marketdata"
	"github.com/weatherdesk/dynamic-trader/internal/metrics"
	"github.com/weatherdesk/dynamic-trader/internal/notify"
	"github.com/weatherdesk/dynamic-trader/internal/observation"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/sizing"
	"github.com/weatherdesk/dynamic-trader/internal/snapshot"
	"github.com/weatherdesk/dynamic-trader/internal/station"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Fatalf("[Main] fatal panic: %v", r)
		}
	}()

	stationsFlag := flag.String("stations", "", "comma-separated station codes to trade (default: all registered stations)")
	httpAddr := flag.String("http-addr", ":8090", "address for the /health, /status, /metrics HTTP surface")
	liveFeed := flag.Bool("live-feed", false, "enable the optional websocket live price cache")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] config: %v", err)
	}

	stations := station.All()
	if *stationsFlag != "" {
		stations = nil
		for _, code := range strings.Split(*stationsFlag, ",") {
			st, serr := station.Get(strings.TrimSpace(code))
			if serr != nil {
				log.Fatalf("[Main] %v", serr)
			}
			stations = append(stations, st)
		}
	}

	gate := calibration.NewGate(cfg.TogglePath)

	forecastClient := forecast.New(cfg.ForecastBaseURL, gate,
		forecast.WithBearerToken(cfg.ForecastBearer),
		forecast.WithRateLimit(cfg.ForecastRateLimitRPS, 3))

	var marketOpts []marketdata.Option
	marketOpts = append(marketOpts, marketdata.WithBearerToken(cfg.MarketBearer))
	marketOpts = append(marketOpts, marketdata.WithRateLimit(cfg.ForecastRateLimitRPS, 5))

	mclient := marketdata.New(cfg.MarketBaseURL, marketOpts...)

	if *liveFeed && cfg.MarketWSURL != "" {
		feed := marketdata.NewLiveFeed(cfg.MarketWSURL, cfg.MarketBearer, 20*time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if ferr := feed.Start(ctx, nil); ferr != nil {
			log.Printf("[Main] live feed disabled: %v", ferr)
		} else {
			mclient = marketdata.New(cfg.MarketBaseURL, append(marketOpts, marketdata.WithLiveFeed(feed))...)
			metrics.Default().LiveFeedActive.Set(1)
		}
	}

	observationClient := observation.New(cfg.ObservationBaseURL)
	snapshots := snapshot.NewStore(cfg.SnapshotRoot)
	broker := paperbroker.NewBroker(cfg.LedgerRoot)

	notifier := notify.New(cfg.SlackWebhookURL, cfg.DiscordWebhookURL)
	notifier.Startup(cfg.DailyBankrollCap, len(stations))

	eng := engine.New(engine.Config{
		IntervalSeconds: cfg.IntervalSeconds,
		LookaheadDays:   cfg.LookaheadDays,
		Bankroll:        cfg.DailyBankrollCap,
		Sizing: sizing.Config{
			EdgeMin:          cfg.EdgeMin,
			FeeBP:            cfg.FeeBP,
			SlippageBP:       cfg.SlippageBP,
			KellyCap:         cfg.KellyCap,
			PerMarketCap:     cfg.PerMarketCap,
			LiquidityMin:     cfg.LiquidityMin,
			DailyBankrollCap: cfg.DailyBankrollCap,
		},
	}, forecastClient, mclient, observationClient, gate, snapshots, broker, stations)

	eng.OnCycleComplete(func(r engine.CycleReport) {
		log.Printf("[Main] cycle %s: %d stations, %d decisions placed, %d errors",
			r.CycleTime, r.StationsRun, r.DecisionsPlaced, r.Errors)
	})
	eng.OnDecision(func(stationCode, eventDay string, d sizing.Decision) {
		notifier.TradeAlert(stationCode, d.Bracket.Bracket.Name, d.Edge, d.PModel, d.PMarket, d.Size)
	})
	eng.OnError(func(stationCode, eventDay string, err error) {
		notifier.Error(stationCode+"/"+eventDay, err.Error())
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := startHTTPServer(*httpAddr, eng)

	go func() {
		if rerr := eng.Run(ctx); rerr != nil && rerr != context.Canceled {
			log.Printf("[Main] engine stopped: %v", rerr)
		}
	}()

	log.Println("[Main] dynamic-paper running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[Main] shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] http shutdown: %v", err)
	}

	notifier.Shutdown("signal")
	log.Println("[Main] goodbye")
}

func startHTTPServer(addr string, eng *engine.Engine) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"state":"%s"}`, eng.State())
	})

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Default().Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Main] http server error: %v", err)
		}
	}()
	return server
}
