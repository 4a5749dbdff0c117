package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// maxProfitFactor stands in for +Inf when there are winning trades but no
// losing ones, keeping the report JSON-serializable.
const maxProfitFactor = 1e6

// Report is the final output of a run. Field names are part of the external
// contract and must remain stable.
type Report struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgReturnPct   float64 `json:"avg_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	ProfitFactor   float64 `json:"profit_factor"`

	SignalsSkippedBusy    int `json:"signals_skipped_busy"`
	SignalsSkippedCapital int `json:"signals_skipped_capital"`

	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}

// Aggregate reduces a completed trade log and equity curve to the final
// report. It is stateless and safe to call on any run's output. Numerical
// edge cases (no trades, zero stdev, no losing trades) produce the defined
// fallbacks below; NaN or Inf never reach the report.
func Aggregate(initial, final decimal.Decimal, trades []Trade, equity []EquityPoint) *Report {
	r := &Report{
		InitialCapital: initial.InexactFloat64(),
		FinalCapital:   final.InexactFloat64(),
		TotalTrades:    len(trades),
		Trades:         trades,
		EquityCurve:    equity,
	}
	if initial.IsPositive() {
		// Total return compounds; summing per-trade returns would be wrong.
		r.TotalReturnPct = final.Sub(initial).Div(initial).Mul(hundred).InexactFloat64()
	}
	if len(trades) == 0 {
		return r
	}

	var wins int
	var grossProfit, grossLoss decimal.Decimal
	returns := make([]float64, len(trades))
	for i, t := range trades {
		pnl := t.NetProceeds.Sub(t.CapitalCommitted)
		if pnl.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(pnl)
		} else {
			grossLoss = grossLoss.Add(pnl.Abs())
		}
		returns[i] = t.ReturnPct.InexactFloat64()
	}

	r.WinRate = float64(wins) / float64(len(trades))
	r.AvgReturnPct = mean(returns)
	r.SharpeRatio = sharpe(returns)
	r.MaxDrawdownPct = maxDrawdownPct(equity)

	switch {
	case grossLoss.IsPositive():
		r.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()
	case grossProfit.IsPositive():
		r.ProfitFactor = maxProfitFactor
	}
	return r
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sharpe is mean over sample stdev of per-trade returns, 0 when fewer than
// two trades exist or the returns do not vary.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var ss float64
	for _, r := range returns {
		d := r - m
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(returns)-1))
	if sd == 0 {
		return 0
	}
	return m / sd
}

// maxDrawdownPct walks the realized equity curve (trade-close events only;
// the engine does not track intrabar equity).
func maxDrawdownPct(equity []EquityPoint) float64 {
	var peak, maxDD decimal.Decimal
	for _, p := range equity {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if peak.IsPositive() {
			dd := peak.Sub(p.Equity).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD.Mul(hundred).InexactFloat64()
}
