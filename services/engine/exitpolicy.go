package engine

import (
	"github.com/shopspring/decimal"
)

// ExitPolicy evaluates the configured exit triggers once per bar for the open
// position. Evaluation is pure: it never touches capital and never mutates
// the position (peak/arm tracking is done by Position.Track before the call).
//
// Trigger arbitration is fixed and deterministic. Take-profit and stop-loss
// are checked against the intrabar high/low; when both thresholds fall inside
// the same bar the stop-loss wins, since downside protection is the
// safety-critical contract. Trailing stop and timeout exit at the bar close.
type ExitPolicy struct {
	cfg ExitConfig

	takeProfit decimal.Decimal
	stopLoss   decimal.Decimal
	activation decimal.Decimal
	trail      decimal.Decimal
	one        decimal.Decimal
}

func NewExitPolicy(cfg ExitConfig) ExitPolicy {
	return ExitPolicy{
		cfg:        cfg,
		takeProfit: decimal.NewFromFloat(cfg.TakeProfit),
		stopLoss:   decimal.NewFromFloat(cfg.StopLoss),
		activation: decimal.NewFromFloat(cfg.Trailing.ActivationPct),
		trail:      decimal.NewFromFloat(cfg.Trailing.TrailPct),
		one:        decimal.NewFromInt(1),
	}
}

// ActivationPct is the trailing-stop arming threshold, zero when trailing is
// disabled.
func (p ExitPolicy) ActivationPct() decimal.Decimal {
	if !p.cfg.Trailing.Enabled {
		return decimal.Zero
	}
	return p.activation
}

// Evaluate returns the exit decision for one bar of an open position.
func (p ExitPolicy) Evaluate(pos *Position, bar Bar) ExitDecision {
	entry := pos.EntryPrice

	// Threshold triggers use intrabar extremes; fills are assumed at the
	// threshold price, not the close.
	hitTP := false
	if p.cfg.TakeProfit > 0 {
		hitTP = bar.High.Sub(entry).Div(entry).GreaterThanOrEqual(p.takeProfit)
	}
	hitSL := false
	if p.cfg.StopLoss > 0 {
		hitSL = entry.Sub(bar.Low).Div(entry).GreaterThanOrEqual(p.stopLoss)
	}

	// Same-bar double trigger resolves to the stop, always.
	if hitSL {
		return ExitDecision{
			Exit:   true,
			Reason: ReasonStopLoss,
			Price:  entry.Mul(p.one.Sub(p.stopLoss)),
		}
	}
	if hitTP {
		return ExitDecision{
			Exit:   true,
			Reason: ReasonTakeProfit,
			Price:  entry.Mul(p.one.Add(p.takeProfit)),
		}
	}

	if p.cfg.Trailing.Enabled && pos.TrailingArmed {
		retrace := pos.PeakPrice.Sub(bar.Close).Div(entry)
		if retrace.GreaterThanOrEqual(p.trail) {
			return ExitDecision{Exit: true, Reason: ReasonTrailingStop, Price: bar.Close}
		}
	}

	if p.cfg.MaxHold > 0 && bar.Timestamp-pos.EntryTime >= p.cfg.MaxHold.Milliseconds() {
		return ExitDecision{Exit: true, Reason: ReasonTimeout, Price: bar.Close}
	}

	return ExitDecision{}
}
