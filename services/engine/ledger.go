package engine

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CapitalLedger is the single source of truth for cash. It owns the current
// capital scalar and performs every fee- and slippage-adjusted buy/sell
// computation. Nothing else in the engine mutates capital.
type CapitalLedger struct {
	cost CostConfig

	initial     decimal.Decimal
	capital     decimal.Decimal
	peak        decimal.Decimal
	maxDrawdown decimal.Decimal // fraction of peak

	open   *Position
	equity []EquityPoint
}

func NewCapitalLedger(initial decimal.Decimal, cost CostConfig) *CapitalLedger {
	return &CapitalLedger{
		cost:    cost,
		initial: initial,
		capital: initial,
		peak:    initial,
	}
}

// Capital returns the cash not committed to an open position.
func (l *CapitalLedger) Capital() decimal.Decimal { return l.capital }

func (l *CapitalLedger) InitialCapital() decimal.Decimal { return l.initial }

// Open returns the open position, or nil when flat.
func (l *CapitalLedger) Open() *Position { return l.open }

// MaxDrawdown is the largest peak-to-trough decline of realized capital seen
// so far, as a fraction of the peak.
func (l *CapitalLedger) MaxDrawdown() decimal.Decimal { return l.maxDrawdown }

// EquityCurve returns realized capital sampled at each trade close.
func (l *CapitalLedger) EquityCurve() []EquityPoint { return l.equity }

// Enter commits fraction of the currently available capital at entryPrice.
// The friction fee is taken out of the committed amount before the asset
// quantity is computed; quantity is therefore (committed - fee) / price,
// never committed / price.
func (l *CapitalLedger) Enter(ts int64, entryPrice, fraction decimal.Decimal) (*Position, error) {
	if l.open != nil {
		return nil, ErrDoubleEntry
	}

	committed := l.capital.Mul(fraction)
	if committed.LessThan(l.cost.MinOrderValue) {
		return nil, &InsufficientCapitalError{Committed: committed, Minimum: l.cost.MinOrderValue}
	}

	fee := committed.Mul(l.cost.frictionRate())
	quantity := committed.Sub(fee).Div(entryPrice)

	l.capital = l.capital.Sub(committed)
	l.open = &Position{
		EntryTime:        ts,
		EntryPrice:       entryPrice,
		Quantity:         quantity,
		CapitalCommitted: committed,
		EntryFee:         fee,
		PeakPrice:        entryPrice,
		EntryBarIndex:    -1,
	}
	return l.open, nil
}

// Exit liquidates the open position at exitPrice, returns the realized
// proceeds to capital and converts the position into a Trade. Capital after
// the exit is the uncommitted remainder plus net proceeds; it is never reset
// from the initial capital.
func (l *CapitalLedger) Exit(ts int64, exitPrice decimal.Decimal, reason ExitReason) (Trade, error) {
	if l.open == nil {
		return Trade{}, ErrNoPosition
	}
	pos := l.open

	gross := pos.Quantity.Mul(exitPrice)
	exitFee := gross.Mul(l.cost.frictionRate())
	net := gross.Sub(exitFee)

	capitalBefore := l.capital.Add(pos.CapitalCommitted)
	l.capital = l.capital.Add(net)

	returnPct := net.Sub(pos.CapitalCommitted).Div(pos.CapitalCommitted).Mul(hundred)

	trade := Trade{
		EntryTime:        pos.EntryTime,
		EntryPrice:       pos.EntryPrice,
		ExitTime:         ts,
		ExitPrice:        exitPrice,
		Quantity:         pos.Quantity,
		CapitalBefore:    capitalBefore,
		CapitalAfter:     l.capital,
		CapitalCommitted: pos.CapitalCommitted,
		NetProceeds:      net,
		Fees:             pos.EntryFee.Add(exitFee),
		ReturnPct:        returnPct,
		ExitReason:       reason,
		HoldingMs:        ts - pos.EntryTime,
	}

	l.open = nil
	l.markEquity(ts)
	return trade, nil
}

// markEquity records a realized-equity point and updates peak capital and the
// running max drawdown. Called once per exit.
func (l *CapitalLedger) markEquity(ts int64) {
	if l.capital.GreaterThan(l.peak) {
		l.peak = l.capital
	}
	drawdown := decimal.Zero
	if l.peak.IsPositive() {
		drawdown = l.peak.Sub(l.capital).Div(l.peak)
	}
	if drawdown.GreaterThan(l.maxDrawdown) {
		l.maxDrawdown = drawdown
	}
	l.equity = append(l.equity, EquityPoint{Timestamp: ts, Equity: l.capital, Drawdown: drawdown})
}
