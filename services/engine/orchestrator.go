package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Backtester drives one simulation run. It is the only component that talks
// to both the sizer and the ledger; the exit policy is consulted once per bar
// while a position is open. A Backtester holds per-run state and must not be
// shared across runs.
type Backtester struct {
	ledger *CapitalLedger
	sizer  *PositionSizer
	policy ExitPolicy
	logger *zap.Logger

	skippedBusy    int
	skippedCapital int
}

func NewBacktester(cfg RunConfig, logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backtester{
		ledger: NewCapitalLedger(cfg.InitialCapital, cfg.Cost),
		sizer:  NewPositionSizer(cfg.Sizing),
		policy: NewExitPolicy(cfg.Exit),
		logger: logger,
	}
}

// Run simulates the signal list against the bar series and aggregates the
// result. Bars must be strictly ordered; signals are sorted and de-duplicated
// here (documented behavior, matching the loaders). The run either produces a
// complete report or fails with the violated invariant.
func (b *Backtester) Run(bars []Bar, signals []Signal) (*Report, error) {
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	signals, dropped, err := NormalizeSignals(signals)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		b.logger.Warn("dropped duplicate signal timestamps", zap.Int("count", dropped))
	}

	var trades []Trade
	activation := b.policy.ActivationPct()
	sigIdx := 0

	for i, bar := range bars {
		// Exits first, so a due signal can re-enter later in the same bar.
		if pos := b.ledger.Open(); pos != nil && i > pos.EntryBarIndex {
			pos.Track(bar, activation)
			if d := b.policy.Evaluate(pos, bar); d.Exit {
				trade, err := b.ledger.Exit(bar.Timestamp, d.Price, d.Reason)
				if err != nil {
					return nil, fmt.Errorf("exit at bar %d: %w", i, err)
				}
				b.sizer.Observe(trade.ReturnPct.InexactFloat64())
				trades = append(trades, trade)
				b.logger.Debug("position closed",
					zap.String("reason", string(d.Reason)),
					zap.String("exit_price", d.Price.String()),
					zap.String("return_pct", trade.ReturnPct.StringFixed(4)),
				)
			}
		}

		// Entries: every signal whose timestamp this bar has reached is
		// consumed now. Signals arriving while a position is open are
		// ignored by policy (single-position constraint), but counted.
		for sigIdx < len(signals) && signals[sigIdx].Timestamp <= bar.Timestamp {
			sig := signals[sigIdx]
			sigIdx++

			if b.ledger.Open() != nil {
				b.skippedBusy++
				b.logger.Debug("signal skipped, position open", zap.Int64("ts", sig.Timestamp))
				continue
			}

			fraction := b.sizer.Fraction()
			pos, err := b.ledger.Enter(sig.Timestamp, sig.Price, fraction)
			if err != nil {
				var ice *InsufficientCapitalError
				if errors.As(err, &ice) {
					b.skippedCapital++
					b.logger.Debug("signal skipped, below minimum order value",
						zap.Int64("ts", sig.Timestamp),
						zap.String("committed", ice.Committed.StringFixed(2)),
					)
					continue
				}
				return nil, fmt.Errorf("enter at bar %d: %w", i, err)
			}
			pos.EntryBarIndex = i
			b.logger.Debug("position opened",
				zap.Int64("ts", sig.Timestamp),
				zap.String("price", sig.Price.String()),
				zap.String("fraction", fraction.StringFixed(4)),
			)
		}
	}

	// An open position at end of data is force-closed at the final close,
	// otherwise its capital stays trapped and every downstream statistic is
	// wrong.
	if b.ledger.Open() != nil {
		last := bars[len(bars)-1]
		trade, err := b.ledger.Exit(last.Timestamp, last.Close, ReasonEndOfPeriod)
		if err != nil {
			return nil, fmt.Errorf("end-of-period exit: %w", err)
		}
		b.sizer.Observe(trade.ReturnPct.InexactFloat64())
		trades = append(trades, trade)
	}

	report := Aggregate(b.ledger.InitialCapital(), b.ledger.Capital(), trades, b.ledger.EquityCurve())
	report.SignalsSkippedBusy = b.skippedBusy
	report.SignalsSkippedCapital = b.skippedCapital

	b.logger.Info("run complete",
		zap.Int("trades", report.TotalTrades),
		zap.Float64("total_return_pct", report.TotalReturnPct),
		zap.Int("signals_skipped_busy", b.skippedBusy),
		zap.Int("signals_skipped_capital", b.skippedCapital),
	)
	return report, nil
}
