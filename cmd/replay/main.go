// Command replay rebuilds the SQLite replay index (C13) by walking every
// per-event-day ledger file under the ledger root and upserting its rows.
// The index is a derived cache: this command is always safe to re-run, and
// the index file is always safe to delete and rebuild from scratch.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/weatherdesk/dynamic-trader/internal/config"
	"github.com/weatherdesk/dynamic-trader/internal/paperbroker"
	"github.com/weatherdesk/dynamic-trader/internal/replay"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Replay] config: %v", err)
	}

	idx, err := replay.Open(cfg.ReplayDBPath)
	if err != nil {
		log.Fatalf("[Replay] open index: %v", err)
	}
	defer idx.Close()

	entries, err := os.ReadDir(cfg.LedgerRoot)
	if err != nil {
		log.Fatalf("[Replay] read ledger root %s: %v", cfg.LedgerRoot, err)
	}

	ingested, rows := 0, 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		eventDay := entry.Name()
		path := filepath.Join(cfg.LedgerRoot, eventDay, "paper_trades.csv")
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}

		ledgerRows, rerr := paperbroker.ReadLedger(path)
		if rerr != nil {
			log.Printf("[Replay] %s: %v", eventDay, rerr)
			continue
		}
		if err := idx.Ingest(eventDay, ledgerRows); err != nil {
			log.Printf("[Replay] %s: ingest failed: %v", eventDay, err)
			continue
		}
		ingested++
		rows += len(ledgerRows)
	}

	log.Printf("[Replay] ingested %d event days, %d rows, into %s", ingested, rows, cfg.ReplayDBPath)
}
