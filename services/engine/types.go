// Package engine implements the backtest simulation and capital-accounting
// core: it turns a signal list, a bar series and an exit configuration into a
// trade log and a performance report. The package does no I/O; data loading
// lives in services/marketdata.
package engine

import (
	"github.com/shopspring/decimal"
)

// Bar is a single OHLCV bar. Timestamps are Unix milliseconds, UTC.
type Bar struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Signal is a discrete entry signal produced by an external signal source.
type Signal struct {
	Timestamp int64
	Price     decimal.Decimal
	Score     float64
	Metadata  map[string]string
}

// ExitReason identifies which trigger closed a position. The values are part
// of the report contract and must stay stable.
type ExitReason string

const (
	ReasonTakeProfit   ExitReason = "TAKE_PROFIT"
	ReasonStopLoss     ExitReason = "STOP_LOSS"
	ReasonTrailingStop ExitReason = "TRAILING_STOP"
	ReasonTimeout      ExitReason = "TIMEOUT"
	ReasonEndOfPeriod  ExitReason = "END_OF_PERIOD"
)

// Position is the mutable state of the single open trade. It is created by
// CapitalLedger.Enter, mutated bar-by-bar by the orchestrator (peak price and
// trailing arm state only) and destroyed by CapitalLedger.Exit.
type Position struct {
	EntryTime        int64
	EntryPrice       decimal.Decimal
	Quantity         decimal.Decimal
	CapitalCommitted decimal.Decimal
	EntryFee         decimal.Decimal
	PeakPrice        decimal.Decimal
	TrailingArmed    bool

	// EntryBarIndex is the index of the bar that covered the entry; exits
	// are evaluated only on later bars.
	EntryBarIndex int
}

// Track updates the peak price seen since entry and arms the trailing stop
// once unrealized profit reaches activationPct of the entry price. It is the
// only Position mutation performed outside the ledger.
func (p *Position) Track(bar Bar, activationPct decimal.Decimal) {
	if bar.High.GreaterThan(p.PeakPrice) {
		p.PeakPrice = bar.High
	}
	if !p.TrailingArmed && activationPct.IsPositive() {
		gain := p.PeakPrice.Sub(p.EntryPrice).Div(p.EntryPrice)
		if gain.GreaterThanOrEqual(activationPct) {
			p.TrailingArmed = true
		}
	}
}

// Trade is one immutable record of the append-only trade log.
// HoldingMs is exit time minus entry time in milliseconds.
type Trade struct {
	EntryTime        int64           `json:"entry_time"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	ExitTime         int64           `json:"exit_time"`
	ExitPrice        decimal.Decimal `json:"exit_price"`
	Quantity         decimal.Decimal `json:"quantity"`
	CapitalBefore    decimal.Decimal `json:"capital_before"`
	CapitalAfter     decimal.Decimal `json:"capital_after"`
	CapitalCommitted decimal.Decimal `json:"capital_committed"`
	NetProceeds      decimal.Decimal `json:"net_proceeds"`
	Fees             decimal.Decimal `json:"fees"`
	ReturnPct        decimal.Decimal `json:"return_pct"`
	ExitReason       ExitReason      `json:"exit_reason"`
	HoldingMs        int64           `json:"holding_duration"`
}

// EquityPoint is realized capital sampled at a trade-close event. The engine
// does not mark open positions to market.
type EquityPoint struct {
	Timestamp int64           `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// ExitDecision is the verdict of one per-bar exit evaluation. Zero value
// means hold.
type ExitDecision struct {
	Exit   bool
	Reason ExitReason
	Price  decimal.Decimal
}
