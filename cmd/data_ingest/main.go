// Package main loads bar CSV files into the ClickHouse bars table.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"signal-backtest/services/config"
	"signal-backtest/services/engine"
	"signal-backtest/services/marketdata"
)

func main() {
	csvPath := flag.String("csv", "", "bar CSV: timestamp,open,high,low,close,volume")
	symbol := flag.String("symbol", "BTCUSDT", "symbol the file belongs to")
	interval := flag.String("interval", "1m", "bar timeframe")
	timeout := flag.Duration("timeout", 5*time.Minute, "insert deadline")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		log.Fatal("-csv is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	bars, err := marketdata.ReadBarsCSV(*csvPath, logger)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *csvPath, err)
	}
	// Reject broken files before they reach the table, same rules the
	// engine applies at run time.
	if err := engine.ValidateBars(bars); err != nil {
		log.Fatalf("Rejected %s: %v", *csvPath, err)
	}

	store, err := marketdata.NewStore(cfg.ClickHouse, logger)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.InsertBars(ctx, *symbol, *interval, bars); err != nil {
		log.Fatalf("Failed to insert bars: %v", err)
	}
	log.Printf("Ingested %d bars for %s %s", len(bars), *symbol, *interval)
}
