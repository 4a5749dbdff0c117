// Package main runs a single backtest from CSV files on disk: bars plus
// signals in, a report JSON and a trades CSV out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-backtest/services/engine"
	"signal-backtest/services/marketdata"
)

func main() {
	barsPath := flag.String("bars", "", "bar CSV: timestamp,open,high,low,close,volume")
	signalsPath := flag.String("signals", "", "signal CSV: timestamp,price[,score]")
	reportPath := flag.String("report", "./report.json", "where to write the report JSON")
	tradesPath := flag.String("trades", "./trades.csv", "where to write the trade log CSV")

	capital := flag.String("capital", "10000", "initial capital")
	feeRate := flag.String("fee", "0.001", "fee rate per side")
	slippage := flag.String("slippage", "0.0002", "slippage rate per side")
	minOrder := flag.String("min-order", "10", "minimum order value")
	takeProfit := flag.Float64("tp", 0.05, "take-profit threshold, 0 disables")
	stopLoss := flag.Float64("sl", 0.02, "stop-loss threshold, 0 disables")
	trailActivation := flag.Float64("trail-activation", 0, "trailing-stop arming threshold, 0 disables trailing")
	trailPct := flag.Float64("trail", 0, "trailing-stop distance from peak")
	maxHold := flag.Duration("max-hold", 0, "maximum holding duration, 0 disables")
	verbose := flag.Bool("verbose", false, "log per-trade detail")
	flag.Parse()

	if *barsPath == "" || *signalsPath == "" {
		flag.Usage()
		log.Fatal("both -bars and -signals are required")
	}

	cfg := engine.DefaultRunConfig()
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"capital", *capital, &cfg.InitialCapital},
		{"fee", *feeRate, &cfg.Cost.FeeRate},
		{"slippage", *slippage, &cfg.Cost.SlippageRate},
		{"min-order", *minOrder, &cfg.Cost.MinOrderValue},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			log.Fatalf("invalid -%s %q: %v", f.name, f.raw, err)
		}
		*f.dst = d
	}
	cfg.Exit.TakeProfit = *takeProfit
	cfg.Exit.StopLoss = *stopLoss
	cfg.Exit.Trailing = engine.TrailingConfig{
		Enabled:       *trailActivation > 0 && *trailPct > 0,
		ActivationPct: *trailActivation,
		TrailPct:      *trailPct,
	}
	cfg.Exit.MaxHold = *maxHold

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("logger: %v", err)
		}
		defer logger.Sync()
	}

	bars, err := marketdata.ReadBarsCSV(*barsPath, logger)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}
	signals, err := marketdata.ReadSignalsCSV(*signalsPath, logger)
	if err != nil {
		log.Fatalf("load signals: %v", err)
	}
	log.Printf("Loaded %d bars, %d signals", len(bars), len(signals))

	start := time.Now()
	report, err := engine.NewBacktester(cfg, logger).Run(bars, signals)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	log.Printf("Run finished in %s", time.Since(start))

	fmt.Println("=== Backtest Summary ===")
	fmt.Printf("Capital: %.2f -> %.2f (%.4f%%)\n", report.InitialCapital, report.FinalCapital, report.TotalReturnPct)
	fmt.Printf("Trades: %d, WinRate: %.2f%%, ProfitFactor: %.2f\n",
		report.TotalTrades, report.WinRate*100, report.ProfitFactor)
	fmt.Printf("Sharpe: %.4f, MaxDrawdown: %.4f%%\n", report.SharpeRatio, report.MaxDrawdownPct)
	fmt.Printf("Signals skipped: %d busy, %d below minimum\n",
		report.SignalsSkippedBusy, report.SignalsSkippedCapital)

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("encode report: %v", err)
	}
	if err := os.WriteFile(*reportPath, payload, 0o644); err != nil {
		log.Fatalf("write report: %v", err)
	}
	if err := marketdata.WriteTradesCSV(*tradesPath, report.Trades); err != nil {
		log.Fatalf("write trades: %v", err)
	}
	log.Printf("Wrote %s and %s", *reportPath, *tradesPath)
}
